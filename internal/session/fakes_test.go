package session_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nextfix-go/nextfix/internal/session"
)

// fakeCodec round-trips a session.Message through JSON. It carries no
// framing rules and never fails; internal/wire.Codec is the reference
// wire-format implementation these tests intentionally don't depend on,
// to keep session package tests free of the import it would otherwise
// require.
type fakeCodec struct{}

func (fakeCodec) Encode(msg session.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (fakeCodec) Decode(raw []byte) (session.Message, error) {
	var msg session.Message
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// fakeResponder records every raw send in order and reports itself as
// connected until Disconnect is called.
type fakeResponder struct {
	mu           sync.Mutex
	sent         [][]byte
	disconnected bool
	remoteAddr   string
	rejectSend   bool
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{remoteAddr: "127.0.0.1:0"}
}

func (r *fakeResponder) Send(raw []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejectSend {
		return false
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	r.sent = append(r.sent, cp)
	return true
}

func (r *fakeResponder) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func (r *fakeResponder) RemoteAddress() string { return r.remoteAddr }

func (r *fakeResponder) messages(codec session.Codec) []session.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Message, 0, len(r.sent))
	for _, raw := range r.sent {
		msg, err := codec.Decode(raw)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (r *fakeResponder) lastMsgType(codec session.Codec) string {
	msgs := r.messages(codec)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Header.MsgType
}

func (r *fakeResponder) wasDisconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

// fakeApplication is a recording session.ApplicationExtended. Every
// callback is logged by name so tests can assert both occurrence and
// order; CanLogon defaults to true.
type fakeApplication struct {
	mu          sync.Mutex
	calls       []string
	canLogon    bool
	denyApp     bool
	fromAppFn   func(id session.ID, msg *session.Message) error
	fromAdminFn func(id session.ID, msg *session.Message) error
}

func newFakeApplication() *fakeApplication {
	return &fakeApplication{canLogon: true}
}

var _ session.ApplicationExtended = (*fakeApplication)(nil)

func (a *fakeApplication) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, name)
}

func (a *fakeApplication) callCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (a *fakeApplication) ToAdmin(id session.ID, msg *session.Message) error {
	a.record("ToAdmin")
	return nil
}

func (a *fakeApplication) FromAdmin(id session.ID, msg *session.Message) error {
	a.record("FromAdmin")
	if a.fromAdminFn != nil {
		return a.fromAdminFn(id, msg)
	}
	return nil
}

func (a *fakeApplication) ToApp(id session.ID, msg *session.Message) error {
	a.record("ToApp")
	if a.denyApp {
		return &session.DoNotSend{}
	}
	return nil
}

func (a *fakeApplication) FromApp(id session.ID, msg *session.Message) error {
	a.record("FromApp")
	if a.fromAppFn != nil {
		return a.fromAppFn(id, msg)
	}
	return nil
}

func (a *fakeApplication) OnLogon(id session.ID) { a.record("OnLogon") }

func (a *fakeApplication) OnLogout(id session.ID) { a.record("OnLogout") }

func (a *fakeApplication) CanLogon(session.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canLogon
}

func (a *fakeApplication) OnBeforeSessionReset(id session.ID) { a.record("OnBeforeSessionReset") }

// fakeMetrics is a recording session.MetricsReporter.
type fakeMetrics struct {
	mu                sync.Mutex
	heartbeatTimeouts int
	resendCounts      []int
	gapFillsSent      int
	rejects           []session.SessionRejectReason
}

var _ session.MetricsReporter = (*fakeMetrics)(nil)

func (m *fakeMetrics) SessionCreated(session.ID)  {}
func (m *fakeMetrics) SessionLoggedOn(session.ID) {}
func (m *fakeMetrics) SessionLoggedOut(session.ID) {}
func (m *fakeMetrics) MessageSent(session.ID, string) {}
func (m *fakeMetrics) MessageReceived(session.ID, string) {}

func (m *fakeMetrics) ResendRequested(id session.ID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resendCounts = append(m.resendCounts, count)
}

func (m *fakeMetrics) GapFillSent(session.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gapFillsSent++
}

func (m *fakeMetrics) HeartbeatTimeout(session.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatTimeouts++
}

func (m *fakeMetrics) Reject(id session.ID, reason session.SessionRejectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects = append(m.rejects, reason)
}

// inboundLogon builds a well-formed Logon message as the peer identified
// by id.Counterparty() would send it, with seq and heartBtInt filled in.
func inboundLogon(id session.ID, seq, heartBtInt int) session.Message {
	peer := id.Counterparty()
	return session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      session.MsgTypeLogon,
			MsgSeqNum:    seq,
			SenderCompID: peer.SenderCompID,
			TargetCompID: peer.TargetCompID,
			SendingTime:  time.Now(),
		},
		Fields: session.Fields{HeartBtInt: heartBtInt},
	}
}

// markLoggedOnForSend drives sess through a minimal inbound logon
// handshake so IsLoggedOn() is true and the send pipeline will release
// outbound traffic. It assumes sess has a responder attached and has
// never previously exchanged a logon.
func markLoggedOnForSend(t *testing.T, sess *session.Session) {
	t.Helper()
	msg := inboundLogon(sess.ID(), 1, 30)
	if err := sess.Receive(msg); err != nil {
		t.Fatalf("logon handshake failed: %v", err)
	}
	if !sess.IsLoggedOn() {
		t.Fatal("session not logged on after handshake")
	}
}

func testID() session.ID {
	return session.ID{
		BeginString:  session.BeginStringFIX44,
		SenderCompID: "SENDER",
		TargetCompID: "TARGET",
	}
}
