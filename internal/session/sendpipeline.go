package session

import (
	"log/slog"
	"time"
)

// sendPipeline is the single outbound funnel described in spec.md §4.4:
// header stamping, sequence assignment under lock, persistence,
// admin/app routing, and raw transport transmission.
type sendPipeline struct {
	s *Session
}

func newSendPipeline(s *Session) *sendPipeline {
	return &sendPipeline{s: s}
}

// send is the public API: strips PossDupFlag/OrigSendingTime and
// assigns a fresh sequence number.
func (p *sendPipeline) send(msg Message) bool {
	msg.Header.PossDupFlag = false
	msg.Header.OrigSendingTime = time.Time{}
	ok, _ := p.sendRaw(msg, 0)
	return ok
}

// sendRaw implements spec.md §4.4 steps 1-9. overrideSeq > 0 means
// "resend this exact sequence number" (the gap-fill replay path);
// overrideSeq == 0 means "assign the next fresh sender sequence
// number".
func (p *sendPipeline) sendRaw(msg Message, overrideSeq int) (bool, error) {
	s := p.s
	st := s.state

	st.senderSeqMu.Lock()
	defer st.senderSeqMu.Unlock()

	seq := overrideSeq
	fresh := seq == 0
	if fresh {
		n, err := st.store.NextSenderMsgSeqNum()
		if err != nil {
			return false, &IOError{Op: "get next sender seq", Err: err}
		}
		seq = n
	}

	// Step 1: stamp header.
	msg.Header.BeginString = s.id.BeginString
	msg.Header.SenderCompID = s.id.SenderCompID
	msg.Header.SenderSubID = s.id.SenderSubID
	msg.Header.SenderLocationID = s.id.SenderLocationID
	msg.Header.TargetCompID = s.id.TargetCompID
	msg.Header.TargetSubID = s.id.TargetSubID
	msg.Header.TargetLocationID = s.id.TargetLocationID
	msg.Header.MsgSeqNum = seq
	msg.Header.SendingTime = time.Now()

	// Step 2.
	if s.settings.EnableLastMsgSeqNumProcessed && !msg.Header.HasLastMsgSeqNumProc {
		targetSeq, err := st.nextTargetSeq()
		if err != nil {
			return false, &IOError{Op: "get next target seq", Err: err}
		}
		msg.Header.LastMsgSeqNumProcessed = targetSeq - 1
		msg.Header.HasLastMsgSeqNumProc = true
	}

	isAdmin := IsAdminMsgType(msg.Header.MsgType)

	// Step 3.
	if isAdmin {
		if err := s.app.ToAdmin(s.id, &msg); err != nil {
			s.logger.Warn("toAdmin callback error", slog.String("error", err.Error()))
		}
		if msg.Header.MsgType == MsgTypeLogon && !st.resetReceived && msg.Fields.ResetSeqNumFlag {
			if err := st.reset(); err != nil {
				return false, &IOError{Op: "reset state", Err: err}
			}
			n, err := st.store.NextSenderMsgSeqNum()
			if err != nil {
				return false, &IOError{Op: "get next sender seq after reset", Err: err}
			}
			seq = n
			msg.Header.MsgSeqNum = seq
			st.resetSent = true
		}
	} else {
		// Step 4.
		if err := s.app.ToApp(s.id, &msg); err != nil {
			if _, veto := err.(*DoNotSend); veto {
				return false, nil
			}
			s.logger.Warn("toApp callback error", slog.String("error", err.Error()))
		}
	}

	// Step 6: gate by state.
	if !isAdminAlwaysSendable(msg.Header.MsgType) && !st.loggedOn() {
		s.logger.Warn("dropping outbound message, not logged on", slog.String("msgType", msg.Header.MsgType))
		return false, nil
	}

	// Step 5: render.
	raw, err := s.codec.Encode(msg)
	if err != nil {
		return false, &IOError{Op: "encode outbound message", Err: err}
	}

	// Step 7: transmit.
	r := s.getResponder()
	if r == nil {
		return false, nil
	}
	sent := r.Send(raw)
	if sent {
		st.lastSentTime = time.Now()
		s.metrics.MessageSent(s.id, msg.Header.MsgType)
	}

	// Step 8.
	if fresh && sent {
		if s.settings.PersistMessages {
			if err := st.store.Set(seq, raw); err != nil {
				return false, &IOError{Op: "persist sent message", Err: err}
			}
		}
		if err := st.store.IncrNextSenderMsgSeqNum(); err != nil {
			return false, &IOError{Op: "increment next sender seq", Err: err}
		}
	}

	return sent, nil
}

// isAdminAlwaysSendable reports whether msgType may be sent regardless
// of logon state (spec.md §4.4 step 6).
func isAdminAlwaysSendable(msgType string) bool {
	switch msgType {
	case MsgTypeLogon, MsgTypeLogout, MsgTypeResendRequest, MsgTypeSequenceReset:
		return true
	default:
		return false
	}
}
