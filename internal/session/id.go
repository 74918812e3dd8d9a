package session

import "strings"

// notApplicable is the sentinel value for an unset optional SessionID
// component (BeginString/SenderCompID/TargetCompID are always set;
// the Sub/Location/Qualifier components use this sentinel when absent).
const notApplicable = "N/A"

// ID is the immutable identity tuple of a FIX session: the registry key.
// Two IDs are equal iff every field compares equal, so an optional
// component left as the empty string and one set to notApplicable make
// different keys even though String renders them the same way.
type ID struct {
	BeginString string

	SenderCompID     string
	SenderSubID      string
	SenderLocationID string

	TargetCompID     string
	TargetSubID      string
	TargetLocationID string

	// Qualifier distinguishes otherwise-identical SessionIDs, e.g. when
	// a single counterparty is reached over more than one physical
	// connection.
	Qualifier string
}

// withDefaults returns id with every unset optional field set to the
// "N/A" sentinel, matching the convention spec.md §3 describes.
func (id ID) withDefaults() ID {
	def := func(s string) string {
		if s == "" {
			return notApplicable
		}
		return s
	}
	id.SenderSubID = def(id.SenderSubID)
	id.SenderLocationID = def(id.SenderLocationID)
	id.TargetSubID = def(id.TargetSubID)
	id.TargetLocationID = def(id.TargetLocationID)
	id.Qualifier = def(id.Qualifier)
	return id
}

// String renders the session ID in QuickFIX's conventional colon-joined
// form, e.g. "FIX.4.4:SERVER->CLIENT". Optional components are appended
// only when set, in Sender(Sub,Location)/Target(Sub,Location)/Qualifier
// order, so two differently-constructed but equal IDs render the same.
func (id ID) String() string {
	id = id.withDefaults()

	var b strings.Builder
	b.WriteString(id.BeginString)
	b.WriteByte(':')
	writeCompound(&b, id.SenderCompID, id.SenderSubID, id.SenderLocationID)
	b.WriteString("->")
	writeCompound(&b, id.TargetCompID, id.TargetSubID, id.TargetLocationID)
	if id.Qualifier != notApplicable {
		b.WriteByte(':')
		b.WriteString(id.Qualifier)
	}
	return b.String()
}

func writeCompound(b *strings.Builder, compID, subID, locID string) {
	b.WriteString(compID)
	if subID != notApplicable {
		b.WriteByte('/')
		b.WriteString(subID)
	}
	if locID != notApplicable {
		b.WriteByte('/')
		b.WriteString(locID)
	}
}

// Counterparty returns the SessionID with Sender and Target reversed,
// i.e. the ID the peer sees this session as. Used to build the reply
// identity stamped on outbound messages.
func (id ID) Counterparty() ID {
	id = id.withDefaults()
	id.SenderCompID, id.TargetCompID = id.TargetCompID, id.SenderCompID
	id.SenderSubID, id.TargetSubID = id.TargetSubID, id.SenderSubID
	id.SenderLocationID, id.TargetLocationID = id.TargetLocationID, id.SenderLocationID
	return id
}

// IsFIXT reports whether the session uses the FIXT.1.1 transport
// dialect, which decouples the session BeginString from the
// application-level ApplVerID.
func (id ID) IsFIXT() bool {
	return id.BeginString == BeginStringFIXT11
}
