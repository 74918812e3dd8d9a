// Package session implements the FIX session-layer engine: the
// per-counterparty state machine that enforces sequenced, reliable,
// ordered message exchange over an arbitrary bidirectional byte
// transport.
//
// The package owns the session state machine together with its
// gap-fill / resend protocol (GapFillEngine), its heartbeat / test
// request liveness protocol (LivenessEngine), and its sequence-number
// and persistence discipline (SendPipeline). The wire codec, data
// dictionary, message store, transport, session schedule, and
// application callback sink are all external collaborators, consumed
// here only as interfaces.
package session
