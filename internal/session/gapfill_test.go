package session_test

import (
	"testing"
	"time"

	"github.com/nextfix-go/nextfix/internal/session"
)

func TestRedundantResendRequestSuppressed(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, responder, _, metrics := logOnSession(t, id, session.DefaultSettings())

	if err := sess.Receive(inboundApp(id, 5)); err != nil {
		t.Fatalf("Receive(seq 5) error = %v", err)
	}
	sentAfterFirstGap := len(responder.messages(fakeCodec{}))

	// A second, still-higher seq arriving while the first resend is
	// outstanding must not emit a second ResendRequest by default
	// (SendRedundantResendRequests is false).
	if err := sess.Receive(inboundApp(id, 6)); err != nil {
		t.Fatalf("Receive(seq 6) error = %v", err)
	}

	if got := len(responder.messages(fakeCodec{})); got != sentAfterFirstGap {
		t.Errorf("responder sent %d additional messages for an overlapping gap, want 0", got-sentAfterFirstGap)
	}
	if len(metrics.resendCounts) != 1 {
		t.Errorf("resendCounts = %v, want exactly one ResendRequest", metrics.resendCounts)
	}
}

func TestGapFillAnswerWithoutPersistence(t *testing.T) {
	t.Parallel()

	id := testID()
	settings := session.DefaultSettings()
	settings.PersistMessages = false
	sess, responder, _, _ := logOnSession(t, id, settings)

	if !sess.Send(session.Message{Header: session.Header{MsgType: "D"}, Body: []byte("11=A")}) {
		t.Fatal("Send() = false")
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
		Fields: session.Fields{BeginSeqNo: 2, EndSeqNo: 2},
	}
	if err := sess.Receive(peerResend); err != nil {
		t.Fatalf("Receive(ResendRequest) error = %v", err)
	}

	after := responder.messages(fakeCodec{})[sentBefore:]
	if len(after) != 1 {
		t.Fatalf("responder sent %d messages answering the resend, want 1", len(after))
	}
	if after[0].Header.MsgType != session.MsgTypeSequenceReset {
		t.Errorf("answer msg type = %q, want SequenceReset (GapFill)", after[0].Header.MsgType)
	}
	if !after[0].Fields.GapFillFlag {
		t.Error("answer missing GapFillFlag")
	}
}

func TestSequenceResetGapFillAdvancesTarget(t *testing.T) {
	t.Parallel()

	id := testID()
	sess, _, _, _ := logOnSession(t, id, session.DefaultSettings())

	// Target is 2 after logon. A GapFill SequenceReset jumps it to 10.
	gapFill := session.Message{
		Header: session.Header{
			BeginString:  id.BeginString,
			MsgType:      session.MsgTypeSequenceReset,
			MsgSeqNum:    2,
			SenderCompID: id.TargetCompID,
			TargetCompID: id.SenderCompID,
			SendingTime:  time.Now(),
			PossDupFlag:  true,
		},
		Fields: session.Fields{NewSeqNo: 10, GapFillFlag: true},
	}
	if err := sess.Receive(gapFill); err != nil {
		t.Fatalf("Receive(SequenceReset-GapFill) error = %v", err)
	}

	if err := sess.Receive(inboundApp(id, 10)); err != nil {
		t.Fatalf("Receive(seq 10) error = %v, want the advanced target to accept it directly", err)
	}
}
