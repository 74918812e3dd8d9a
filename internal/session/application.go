package session

// Application is the callback sink a Session delivers protocol and
// business events to (spec.md §6). Implementations must be reentrant:
// calls may arrive concurrently from I/O, timer, and application
// threads.
//
// fromAdmin/fromApp may return one of the typed errors in errors.go
// (RejectLogon, FieldException, IncorrectDataFormat, IncorrectTagValue,
// UnsupportedMessageType) to signal a protocol fault; toApp may return
// *DoNotSend to veto transmission. Any other error is logged and
// otherwise ignored.
//
// UnsupportedMessageType is the application's signal that it doesn't
// recognize a MsgType at all: fromAdmin for an admin-looking message it
// declines to support, fromApp for a business MsgType outside its own
// dictionary. The session converts either into BusinessMessageReject
// (FIX.4.2+) or a session-level Reject (spec.md §7).
type Application interface {
	// ToAdmin is called before every outbound administrative message is
	// sent, with the opportunity to enrich it. Errors are logged and
	// swallowed; they never block the send.
	ToAdmin(id ID, msg *Message) error
	// FromAdmin is called after an inbound administrative message
	// passes verify, before the session applies its own state update.
	// A returned error is converted into the outbound Reject/Logout/
	// BusinessMessageReject the taxonomy specifies and aborts that
	// update.
	FromAdmin(id ID, msg *Message) error
	// ToApp is called before every outbound application message is
	// sent, and again (on a cloned copy) when replaying a persisted
	// message for a peer resend request. Returning *DoNotSend vetoes
	// the send/replay.
	ToApp(id ID, msg *Message) error
	// FromApp delivers an inbound application message that has passed
	// verify.
	FromApp(id ID, msg *Message) error
	// OnLogon fires once a session completes the logon handshake in
	// both directions.
	OnLogon(id ID)
	// OnLogout fires when the session processes an inbound Logout. A
	// connection torn down without a Logout exchange does not fire it.
	OnLogout(id ID)
}

// ApplicationExtended is the optional capability set spec.md §6 and §9
// describe: implementations that also satisfy this interface get
// additional hooks during logon and reset. Applications that only
// implement Application are treated as always-allow / no-op for these.
type ApplicationExtended interface {
	Application
	// CanLogon is consulted before an initiator generates its Logon;
	// returning false defers logon generation to the next liveness
	// tick.
	CanLogon(id ID) bool
	// OnBeforeSessionReset fires immediately before the state reset that
	// an inbound reset-carrying Logon triggers, while the prior counters
	// and flags are still visible. Resets from ResetOnLogout,
	// ResetOnError, the session schedule or an outbound ResetSeqNumFlag
	// Logon do not fire it.
	OnBeforeSessionReset(id ID)
}

// noopExtended adapts a plain Application to ApplicationExtended with
// always-allow defaults, so the state machine can treat every attached
// application uniformly.
type noopExtended struct {
	Application
}

func (noopExtended) CanLogon(ID) bool           { return true }
func (noopExtended) OnBeforeSessionReset(ID) {}

// asExtended returns app as an ApplicationExtended, wrapping it with
// no-op defaults if it does not already implement the extended
// interface.
func asExtended(app Application) ApplicationExtended {
	if ext, ok := app.(ApplicationExtended); ok {
		return ext
	}
	return noopExtended{Application: app}
}
