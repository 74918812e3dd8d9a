package session_test

import (
	"testing"
	"time"

	"github.com/nextfix-go/nextfix/internal/session"
)

// logOnSession drives id through a complete logon handshake and returns
// the session ready to exchange application traffic.
func logOnSession(t *testing.T, id session.ID, settings session.Settings) (*session.Session, *fakeResponder, *fakeApplication, *fakeMetrics) {
	t.Helper()
	sess, responder, app, metrics := newTestSessionWithSettings(t, id, settings)
	if err := sess.Receive(inboundLogon(id, 1, 30)); err != nil {
		t.Fatalf("logon handshake failed: %v", err)
	}
	return sess, responder, app, metrics
}

func inboundApp(id session.ID, seq int) session.Message {
	peer := id.Counterparty()
	return session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      "D",
			MsgSeqNum:    seq,
			SenderCompID: peer.SenderCompID,
			TargetCompID: peer.TargetCompID,
			SendingTime:  time.Now(),
		},
		Body: []byte("11=ORDER1"),
	}
}

// TestGapDetectionRequestsResend covers the "peer skips a sequence
// number" scenario: an inbound MsgSeqNum ahead of the expected target
// must queue the message and emit a ResendRequest for the missing
// range, without delivering the skipped-ahead message yet.
func TestGapDetectionRequestsResend(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, app, metrics := logOnSession(t, id, session.DefaultSettings())

	// Target is currently 2 (after the logon). A message at seq 5 skips
	// 2, 3, and 4.
	if err := sess.Receive(inboundApp(id, 5)); err != nil {
		t.Fatalf("Receive(seq 5) error = %v", err)
	}

	msgs := responder.messages(fakeCodec{})
	last := msgs[len(msgs)-1]
	if last.Header.MsgType != session.MsgTypeResendRequest {
		t.Fatalf("last sent msg type = %q, want ResendRequest", last.Header.MsgType)
	}
	// EndSeqNo is the version-dependent open-range sentinel (0 for
	// FIX.4.2+), not the literal gap end, per the default
	// ClosedResendInterval=false policy.
	if last.Fields.BeginSeqNo != 2 || last.Fields.EndSeqNo != 0 {
		t.Errorf("ResendRequest range = [%d,%d], want [2,0]", last.Fields.BeginSeqNo, last.Fields.EndSeqNo)
	}
	if app.callCount("FromApp") != 0 {
		t.Error("FromApp called before the gap was filled, want deferred delivery")
	}
	if len(metrics.resendCounts) != 1 || metrics.resendCounts[0] != 3 {
		t.Errorf("resendCounts = %v, want [3]", metrics.resendCounts)
	}
}

// TestPossDupTooLowAcceptedAsDuplicate covers the idempotence scenario:
// a retransmitted message below the current target sequence, carrying
// PossDupFlag and a valid OrigSendingTime, is silently accepted without
// advancing the target sequence or reaching the application again.
func TestPossDupTooLowAcceptedAsDuplicate(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, app, _ := logOnSession(t, id, session.DefaultSettings())

	// Deliver seq 2 once, advancing target to 3.
	if err := sess.Receive(inboundApp(id, 2)); err != nil {
		t.Fatalf("Receive(seq 2) error = %v", err)
	}
	if app.callCount("FromApp") != 1 {
		t.Fatalf("FromApp called %d times after first delivery, want 1", app.callCount("FromApp"))
	}
	sentBefore := len(responder.messages(fakeCodec{}))

	// Redeliver the same seq 2 as a marked duplicate.
	dup := inboundApp(id, 2)
	dup.Header.PossDupFlag = true
	dup.Header.OrigSendingTime = dup.Header.SendingTime.Add(-time.Second)
	if err := sess.Receive(dup); err != nil {
		t.Fatalf("Receive(dup seq 2) error = %v", err)
	}

	if app.callCount("FromApp") != 1 {
		t.Errorf("FromApp called %d times after duplicate redelivery, want still 1", app.callCount("FromApp"))
	}
	if got := len(responder.messages(fakeCodec{})); got != sentBefore {
		t.Errorf("responder sent %d new messages reacting to the duplicate, want 0", got-sentBefore)
	}
}

// TestSendingTimeTooFarInPastRejectsAndLogsOut covers the SendingTime
// accuracy scenario: a message whose SendingTime falls outside
// MaxLatency triggers a session-level Reject followed by a Logout, and
// is not delivered to the application.
func TestSendingTimeTooFarInPastRejectsAndLogsOut(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, app, _ := logOnSession(t, id, session.DefaultSettings())

	msg := inboundApp(id, 2)
	msg.Header.SendingTime = time.Now().Add(-1 * time.Hour)

	if err := sess.Receive(msg); err == nil {
		t.Fatal("Receive() error = nil for a stale SendingTime, want a FieldException")
	}

	msgs := responder.messages(fakeCodec{})
	if len(msgs) < 2 {
		t.Fatalf("responder recorded %d sends, want at least Reject and Logout", len(msgs))
	}
	if msgs[len(msgs)-2].Header.MsgType != session.MsgTypeReject {
		t.Errorf("second-to-last sent msg type = %q, want Reject", msgs[len(msgs)-2].Header.MsgType)
	}
	if msgs[len(msgs)-1].Header.MsgType != session.MsgTypeLogout {
		t.Errorf("last sent msg type = %q, want Logout", msgs[len(msgs)-1].Header.MsgType)
	}
	if app.callCount("FromApp") != 0 {
		t.Error("FromApp called for a message that failed the SendingTime check")
	}
}

func TestResendRequestAnsweredWithPersistedMessages(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, _, _ := logOnSession(t, id, session.DefaultSettings())

	if !sess.Send(session.Message{Header: session.Header{MsgType: "D"}, Body: []byte("11=A")}) {
		t.Fatal("Send(first app message) = false")
	}
	if !sess.Send(session.Message{Header: session.Header{MsgType: "D"}, Body: []byte("11=B")}) {
		t.Fatal("Send(second app message) = false")
	}

	sentBefore := len(responder.messages(fakeCodec{}))

	peerResend := session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      session.MsgTypeResendRequest,
			MsgSeqNum:    2,
			SenderCompID: id.TargetCompID,
			TargetCompID: id.SenderCompID,
			SendingTime:  time.Now(),
		},
		Fields: session.Fields{BeginSeqNo: 2, EndSeqNo: 3},
	}
	if err := sess.Receive(peerResend); err != nil {
		t.Fatalf("Receive(ResendRequest) error = %v", err)
	}

	replayed := responder.messages(fakeCodec{})[sentBefore:]
	if len(replayed) != 2 {
		t.Fatalf("replayed %d messages, want 2", len(replayed))
	}
	for i, msg := range replayed {
		if !msg.Header.PossDupFlag {
			t.Errorf("replayed message %d missing PossDupFlag", i)
		}
		if msg.Header.OrigSendingTime.IsZero() {
			t.Errorf("replayed message %d missing OrigSendingTime", i)
		}
	}
	if replayed[0].Header.MsgSeqNum != 2 || replayed[1].Header.MsgSeqNum != 3 {
		t.Errorf("replayed seq numbers = [%d,%d], want [2,3]", replayed[0].Header.MsgSeqNum, replayed[1].Header.MsgSeqNum)
	}
}

// TestFromAdminCalledForEveryAdminMessage covers spec.md §4.1.1 step 10:
// every inbound administrative message that passes verify must reach
// application.fromAdmin before the session applies its own state update.
func TestFromAdminCalledForEveryAdminMessage(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, _, app, _ := logOnSession(t, id, session.DefaultSettings())

	heartbeat := session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      session.MsgTypeHeartbeat,
			MsgSeqNum:    2,
			SenderCompID: id.TargetCompID,
			TargetCompID: id.SenderCompID,
			SendingTime:  time.Now(),
		},
	}
	fromAdminBefore := app.callCount("FromAdmin")
	if err := sess.Receive(heartbeat); err != nil {
		t.Fatalf("Receive(Heartbeat) error = %v", err)
	}
	if got := app.callCount("FromAdmin") - fromAdminBefore; got != 1 {
		t.Errorf("FromAdmin called %d times for one Heartbeat, want 1", got)
	}
}

// TestFromAdminRejectLogonSendsLogout covers the fromAdmin error-
// conversion path: a RejectLogon returned from fromAdmin during the
// logon handshake must produce an outbound Logout (spec.md §7).
func TestFromAdminRejectLogonSendsLogout(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, app, _ := newTestSessionWithSettings(t, id, session.DefaultSettings())
	app.fromAdminFn = func(session.ID, *session.Message) error {
		return &session.RejectLogon{Reason: "not on the allowlist"}
	}

	if err := sess.Receive(inboundLogon(id, 1, 30)); err == nil {
		t.Fatal("Receive(Logon) error = nil, want the fromAdmin RejectLogon to propagate")
	}

	if got := responder.lastMsgType(fakeCodec{}); got != session.MsgTypeLogout {
		t.Errorf("last sent msg type = %q, want Logout", got)
	}
}

// TestFromAppUnsupportedMessageTypeSendsBusinessMessageReject covers the
// UnsupportedMessageType error-conversion path on FIX.4.2+: an
// application that doesn't recognize the business MsgType gets a
// BusinessMessageReject in reply, never a bare log line (spec.md §7).
func TestFromAppUnsupportedMessageTypeSendsBusinessMessageReject(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, app, _ := logOnSession(t, id, session.DefaultSettings())
	app.fromAppFn = func(_ session.ID, msg *session.Message) error {
		return &session.UnsupportedMessageType{MsgType: msg.Header.MsgType}
	}

	if err := sess.Receive(inboundApp(id, 2)); err == nil {
		t.Fatal("Receive() error = nil for an unsupported MsgType, want it to propagate")
	}

	msgs := responder.messages(fakeCodec{})
	last := msgs[len(msgs)-1]
	if last.Header.MsgType != session.MsgTypeBusinessMessageReject {
		t.Fatalf("last sent msg type = %q, want BusinessMessageReject", last.Header.MsgType)
	}
	if last.Fields.BusinessRejectReason != session.BusinessRejectReasonUnsupportedMessageType {
		t.Errorf("BusinessRejectReason = %d, want %d", last.Fields.BusinessRejectReason, session.BusinessRejectReasonUnsupportedMessageType)
	}
	if last.Fields.RefMsgType != "D" {
		t.Errorf("RefMsgType = %q, want %q", last.Fields.RefMsgType, "D")
	}
}

// TestSequenceResetValueIncorrectSendsReject covers the SequenceReset
// NewSeqNo-too-low fault: it must produce an outbound session-level
// Reject, not merely a returned error nobody reacts to (spec.md §4.1).
func TestSequenceResetValueIncorrectSendsReject(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, _, _ := logOnSession(t, id, session.DefaultSettings())

	// Target is 2 after logon; NewSeqNo=1 is behind it.
	reset := session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      session.MsgTypeSequenceReset,
			MsgSeqNum:    2,
			SenderCompID: id.TargetCompID,
			TargetCompID: id.SenderCompID,
			SendingTime:  time.Now(),
		},
		Fields: session.Fields{NewSeqNo: 1},
	}
	if err := sess.Receive(reset); err == nil {
		t.Fatal("Receive(SequenceReset NewSeqNo too low) error = nil, want a FieldException")
	}

	if got := responder.lastMsgType(fakeCodec{}); got != session.MsgTypeReject {
		t.Errorf("last sent msg type = %q, want Reject", got)
	}
}
