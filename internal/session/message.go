package session

import "time"

// BeginString values the engine knows how to reason about for
// version-dependent behavior (resend end-sentinel, millisecond
// timestamps, NextExpectedMsgSeqNum). Any other value is accepted as an
// opaque version string; version-dependent branches simply take their
// "else" path.
const (
	BeginStringFIX40  = "FIX.4.0"
	BeginStringFIX41  = "FIX.4.1"
	BeginStringFIX42  = "FIX.4.2"
	BeginStringFIX43  = "FIX.4.3"
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

// Administrative MsgType (tag 35) values the engine dispatches on
// directly (spec.md §1, §6).
const (
	MsgTypeHeartbeat             = "0"
	MsgTypeTestRequest           = "1"
	MsgTypeResendRequest         = "2"
	MsgTypeReject                = "3"
	MsgTypeSequenceReset         = "4"
	MsgTypeLogout                = "5"
	MsgTypeLogon                 = "A"
	MsgTypeBusinessMessageReject = "j"
)

// adminMsgTypes is the set of MsgType values the engine treats as
// session-administrative rather than application traffic.
var adminMsgTypes = map[string]bool{
	MsgTypeHeartbeat:     true,
	MsgTypeTestRequest:   true,
	MsgTypeResendRequest: true,
	MsgTypeReject:        true,
	MsgTypeSequenceReset: true,
	MsgTypeLogout:        true,
	MsgTypeLogon:         true,
}

// IsAdminMsgType reports whether msgType is one of the seven
// session-administrative message types spec.md §1 enumerates.
func IsAdminMsgType(msgType string) bool {
	return adminMsgTypes[msgType]
}

// SessionRejectReason mirrors tag 373 (spec.md §6).
type SessionRejectReason int

// Session-level reject reasons the engine emits. Numeric values follow
// the FIX SessionRejectReason (373) enumeration.
const (
	RejectReasonInvalidTagNumber           SessionRejectReason = 0
	RejectReasonRequiredTagMissing         SessionRejectReason = 1
	RejectReasonValueIncorrect             SessionRejectReason = 5
	RejectReasonIncorrectDataFormat        SessionRejectReason = 6
	RejectReasonCompIDProblem              SessionRejectReason = 9
	RejectReasonSendingTimeAccuracyProblem SessionRejectReason = 10
	RejectReasonInvalidMsgType             SessionRejectReason = 11
	RejectReasonOther                      SessionRejectReason = 99
)

// BusinessRejectReason mirrors tag 380, carried on BusinessMessageReject
// (spec.md §6/§7).
type BusinessRejectReason int

// BusinessRejectReason values the engine emits.
const (
	BusinessRejectReasonOther                  BusinessRejectReason = 0
	BusinessRejectReasonUnsupportedMessageType BusinessRejectReason = 3
)

// Header holds the addressable fields of a FIX message's standard
// header (spec.md §3). Body fields the engine never inspects (order
// quantity, price, ...) stay in the opaque Body codec boundary.
type Header struct {
	BeginString string
	BodyLength  int
	MsgType     string
	MsgSeqNum   int

	SenderCompID     string
	SenderSubID      string
	SenderLocationID string

	TargetCompID     string
	TargetSubID      string
	TargetLocationID string

	SendingTime     time.Time
	OrigSendingTime time.Time

	PossDupFlag bool
	PossResend  bool

	// LastMsgSeqNumProcessed is tag 369 when EnableLastMsgSeqNumProcessed
	// is set (spec.md §6).
	LastMsgSeqNumProcessed int
	HasLastMsgSeqNumProc   bool

	// NextExpectedMsgSeqNum is tag 789, present on Logon when
	// EnableNextExpectedMsgSeqNum is active (spec.md §6).
	NextExpectedMsgSeqNum int
	HasNextExpectedMsgSeq bool
}

// Fields carried on specific admin message types. The engine reads and
// writes these directly instead of threading a generic tag/value body
// through every handler; a real FIX implementation keeps these in Body
// via the data-dictionary codec (out of scope here, spec.md §1).
type Fields struct {
	// HeartBtInt is tag 108 (Logon).
	HeartBtInt int
	// EncryptMethod is tag 98 (Logon). The engine always advertises 0 (NONE).
	EncryptMethod int
	// ResetSeqNumFlag is tag 141 (Logon).
	ResetSeqNumFlag bool
	// TestReqID is tag 112 (TestRequest / Heartbeat echo).
	TestReqID string
	// BeginSeqNo / EndSeqNo are tags 7/16 (ResendRequest).
	BeginSeqNo int
	EndSeqNo   int
	// NewSeqNo is tag 36 (SequenceReset).
	NewSeqNo int
	// GapFillFlag is tag 123 (SequenceReset).
	GapFillFlag bool
	// Text is tag 58, the free-text reason attached to Reject/Logout.
	Text string
	// RefTagID / RefMsgType / SessionRejectReason are tags 371/372/373 (Reject).
	RefTagID            int
	HasRefTagID         bool
	RefMsgType          string
	SessionRejectReason SessionRejectReason
	HasSessionRejectRsn bool
	// BusinessRejectReason is tag 380 (BusinessMessageReject).
	BusinessRejectReason    BusinessRejectReason
	HasBusinessRejectReason bool
	// MemberName is an acceptor-configurable Logon echo field (no standard tag;
	// carried the way the teacher's config carries deployment-local extras).
	MemberName string
}

// Message is the engine's logical view of a single FIX message: an
// addressable Header, the admin Fields the engine itself reads/writes,
// and an opaque application Body. Body is never interpreted by this
// package; it is handed back to the codec/application untouched.
type Message struct {
	Header Header
	Fields Fields
	Body   []byte
}

// Clone returns a deep-enough copy of m suitable for resend: Body is
// copied so mutating the resend copy (PossDupFlag, SendingTime) never
// aliases the stored original.
func (m Message) Clone() Message {
	body := make([]byte, len(m.Body))
	copy(body, m.Body)
	m.Body = body
	return m
}
