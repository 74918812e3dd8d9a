package session

import "fmt"

// RejectLogon indicates a peer's Logon is unacceptable. The session
// emits Logout (optionally with Reason), advances the target sequence,
// and disconnects.
type RejectLogon struct {
	Reason string
}

func (e *RejectLogon) Error() string {
	if e.Reason == "" {
		return "logon rejected"
	}
	return "logon rejected: " + e.Reason
}

// FieldException is a header/body fault detected in an otherwise
// well-formed message. The session replies with a session-level Reject
// carrying Tag and Reason, then (depending on the handler) advances the
// target sequence.
type FieldException struct {
	Reason SessionRejectReason
	Tag    int
	Text   string
}

func (e *FieldException) Error() string {
	return fmt.Sprintf("field exception tag=%d reason=%d: %s", e.Tag, e.Reason, e.Text)
}

// IncorrectDataFormat is a syntactic field error; the session replies
// with Reject(INCORRECT_DATA_FORMAT_FOR_VALUE).
type IncorrectDataFormat struct {
	Tag  int
	Text string
}

func (e *IncorrectDataFormat) Error() string {
	return fmt.Sprintf("incorrect data format tag=%d: %s", e.Tag, e.Text)
}

// IncorrectTagValue is an enumerated-value violation; the session
// replies with Reject(VALUE_IS_INCORRECT).
type IncorrectTagValue struct {
	Tag   int
	Value string
}

func (e *IncorrectTagValue) Error() string {
	return fmt.Sprintf("incorrect tag value tag=%d value=%q", e.Tag, e.Value)
}

// UnsupportedMessageType is raised by fromAdmin or fromApp when the
// application doesn't recognize msg's MsgType. On FIX.4.2 and later it
// is reported via BusinessMessageReject(UNSUPPORTED_MESSAGE_TYPE); on
// earlier versions via a session-level Reject.
type UnsupportedMessageType struct {
	MsgType string
}

func (e *UnsupportedMessageType) Error() string {
	return "unsupported message type: " + e.MsgType
}

// UnsupportedVersion is a BeginString mismatch against the session's
// configured version. The session replies with Logout and disconnects.
type UnsupportedVersion struct {
	Expected string
	Actual   string
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported version: expected %s, got %s", e.Expected, e.Actual)
}

// InvalidMessage is returned by ReceiveRaw when inbound bytes could not
// be decoded. The failure is logged and returned to the caller; the
// session does not disconnect or apply ResetOnError/DisconnectOnError
// for it, whatever the message type.
type InvalidMessage struct {
	Text string
}

func (e *InvalidMessage) Error() string {
	return "invalid message: " + e.Text
}

// DoNotSend is raised by an application callback (toApp / the resend
// path's toApp clone) to veto transmission of a specific message
// without treating it as an error.
type DoNotSend struct{}

func (e *DoNotSend) Error() string { return "application vetoed send" }

// IOError wraps a failure from the MessageStore or the Responder.
// Receive returns it to the caller; the session does not apply
// ResetOnError/DisconnectOnError in response to it.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error during %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
