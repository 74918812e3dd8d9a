package session

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"
)

// dispatch routes msg by MsgType to its handler (spec.md §4.1). Callers
// must hold s.state.mu.
func (s *Session) dispatch(msg Message) error {
	switch msg.Header.MsgType {
	case MsgTypeLogon:
		return s.handleLogon(msg)
	case MsgTypeLogout:
		return s.handleLogout(msg)
	case MsgTypeHeartbeat:
		return s.handleHeartbeat(msg)
	case MsgTypeTestRequest:
		return s.handleTestRequest(msg)
	case MsgTypeResendRequest:
		return s.handleResendRequest(msg)
	case MsgTypeSequenceReset:
		return s.handleSequenceReset(msg)
	case MsgTypeReject:
		return s.handleReject(msg)
	default:
		return s.handleApp(msg)
	}
}

func (s *Session) advanceTargetSeqAndDrain(msg Message) {
	st := s.state
	if err := st.incrNextTargetSeq(); err != nil {
		s.logger.Error("failed to advance target seq", slog.String("error", err.Error()))
		return
	}
	next, err := st.nextTargetSeq()
	if err != nil {
		s.logger.Error("failed to read target seq", slog.String("error", err.Error()))
		return
	}
	for _, queued := range st.drain(next) {
		if err := s.dispatch(queued); err != nil {
			s.logger.Warn("error dispatching queued message", slog.String("error", err.Error()))
		}
	}
}

func (s *Session) handleLogon(msg Message) error {
	st := s.state

	if !s.schedule.IsSessionTime(time.Now()) {
		s.sendLogout("logon outside of session schedule")
		return &RejectLogon{Reason: "outside of session schedule"}
	}

	if s.settings.RefreshOnLogon && !s.isInitiator {
		if err := st.store.Refresh(); err != nil {
			return &IOError{Op: "refresh store on logon", Err: err}
		}
	}

	if msg.Fields.ResetSeqNumFlag {
		st.resetReceived = true
	} else if st.resetSent && msg.Header.MsgSeqNum == 1 {
		st.resetReceived = true
	}

	if st.resetReceived && !st.resetSent {
		s.app.OnBeforeSessionReset(s.id)
		if err := st.reset(); err != nil {
			return &IOError{Op: "reset on logon", Err: err}
		}
	}

	isResponse := s.isInitiator && st.logonSent
	if !isResponse {
		s.pipeline.send(Message{
			Header: Header{MsgType: MsgTypeLogon},
			Fields: Fields{
				EncryptMethod: 0,
				HeartBtInt:    msg.Fields.HeartBtInt,
				MemberName:    msg.Fields.MemberName,
			},
		})
		st.logonSent = true
	}

	if _, err := s.verify(msg, false, s.settings.ValidateSequenceNumbers); err != nil {
		return err
	}

	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}

	st.logonReceived = true
	st.logoutSent = false
	st.logoutReceived = false
	st.heartbeatInterval = time.Duration(msg.Fields.HeartBtInt) * time.Second
	if msg.Header.HasNextExpectedMsgSeq {
		st.testRequestDelayMultiplier = s.settings.TestRequestDelayMultiplier
	}

	nextTarget, terr := st.nextTargetSeq()
	if terr != nil {
		return &IOError{Op: "get next target seq", Err: terr}
	}

	if s.settings.ValidateSequenceNumbers && msg.Header.MsgSeqNum > nextTarget && !s.settings.ResetOnLogon {
		s.gapFill.doTargetTooHigh(msg, nextTarget)
	} else {
		if err := st.incrNextTargetSeq(); err != nil {
			return &IOError{Op: "advance target seq", Err: err}
		}
		next, terr := st.nextTargetSeq()
		if terr != nil {
			return &IOError{Op: "get next target seq", Err: terr}
		}
		for _, queued := range st.drain(next) {
			if err := s.dispatch(queued); err != nil {
				s.logger.Warn("error dispatching queued message", slog.String("error", err.Error()))
			}
		}
	}

	// Proactive gap fill: peer's sequence number is ahead of what we
	// believe we've sent, meaning the peer is missing our messages.
	nextSender, serr := st.nextSenderSeq()
	if serr == nil && msg.Header.MsgSeqNum > nextSender {
		if err := s.gapFill.answer(msg.Header.MsgSeqNum, nextSender-1); err != nil {
			s.logger.Warn("proactive gap fill failed", slog.String("error", err.Error()))
		}
	}

	s.metrics.SessionLoggedOn(s.id)
	s.app.OnLogon(s.id)
	return nil
}

var logoutTooLowRE = regexp.MustCompile(`MsgSeqNum too low, expecting (\d+) but received \d+`)

func (s *Session) handleLogout(msg Message) error {
	st := s.state

	if s.settings.LogonForceSenderMsgSeqNum && !st.logonReceived && st.logonSent {
		if m := logoutTooLowRE.FindStringSubmatch(msg.Fields.Text); m != nil {
			if expected, err := strconv.Atoi(m[1]); err == nil {
				if err := st.store.SetNextSenderMsgSeqNum(expected); err != nil {
					s.logger.Warn("failed to force sender seq from logout text", slog.String("error", err.Error()))
				}
			}
		}
	}

	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}

	if !st.logoutSent {
		s.logger.Info("received logout request")
		s.sendLogout("")
	} else {
		s.logger.Info("received logout response")
	}
	st.logoutReceived = true

	if err := st.incrNextTargetSeq(); err != nil {
		return &IOError{Op: "advance target seq", Err: err}
	}

	wasLoggedOn := st.logoutSent || st.logonReceived
	if s.settings.ResetOnLogout {
		if err := st.reset(); err != nil {
			return &IOError{Op: "reset on logout", Err: err}
		}
	}

	s.Disconnect("logout")
	if wasLoggedOn {
		s.metrics.SessionLoggedOut(s.id)
		s.app.OnLogout(s.id)
	}
	return nil
}

func (s *Session) handleHeartbeat(msg Message) error {
	deliver, err := s.verify(msg, s.settings.ValidateSequenceNumbers, s.settings.ValidateSequenceNumbers)
	if err != nil {
		return err
	}
	if !deliver {
		return nil
	}
	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}
	s.advanceTargetSeqAndDrain(msg)
	return nil
}

func (s *Session) handleTestRequest(msg Message) error {
	deliver, err := s.verify(msg, s.settings.ValidateSequenceNumbers, s.settings.ValidateSequenceNumbers)
	if err != nil {
		return err
	}
	if !deliver {
		return nil
	}
	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}
	s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeHeartbeat},
		Fields: Fields{TestReqID: msg.Fields.TestReqID},
	})
	s.advanceTargetSeqAndDrain(msg)
	return nil
}

func (s *Session) handleResendRequest(msg Message) error {
	deliver, err := s.verify(msg, false, false)
	if err != nil {
		return err
	}
	if !deliver {
		return nil
	}
	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}
	if err := s.gapFill.answer(msg.Fields.BeginSeqNo, msg.Fields.EndSeqNo); err != nil {
		return err
	}
	s.advanceTargetSeqAndDrain(msg)
	return nil
}

func (s *Session) handleSequenceReset(msg Message) error {
	st := s.state
	isGapFill := msg.Fields.GapFillFlag

	deliver, err := s.verify(msg, isGapFill && s.settings.ValidateSequenceNumbers, isGapFill && s.settings.ValidateSequenceNumbers)
	if err != nil {
		return err
	}
	if !deliver && isGapFill {
		return nil
	}

	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}

	nextTarget, terr := st.nextTargetSeq()
	if terr != nil {
		return &IOError{Op: "get next target seq", Err: terr}
	}

	switch {
	case msg.Fields.NewSeqNo > nextTarget:
		r := st.resend
		if r.pending() && msg.Fields.NewSeqNo > r.begin && msg.Fields.NewSeqNo <= r.end {
			st.resend = resendRange{begin: msg.Fields.NewSeqNo, end: r.end, chunkEnd: r.chunkEnd}
			if err := st.setNextTargetSeq(msg.Fields.NewSeqNo); err != nil {
				return &IOError{Op: "set target seq", Err: err}
			}
			s.sendResendRequest(msg.Fields.NewSeqNo, s.chunkEndToWire(st.resend))
		} else {
			st.resend = resendRange{}
			if err := st.setNextTargetSeq(msg.Fields.NewSeqNo); err != nil {
				return &IOError{Op: "set target seq", Err: err}
			}
		}
	case msg.Fields.NewSeqNo < nextTarget:
		fe := &FieldException{
			Reason: RejectReasonValueIncorrect,
			Tag:    36,
			Text:   "SequenceReset NewSeqNo less than expected target sequence number",
		}
		s.sendReject(msg, fe.Reason, fe.Tag, fe.Text)
		return fe
	}

	return nil
}

func (s *Session) handleReject(msg Message) error {
	deliver, err := s.verify(msg, false, s.settings.ValidateSequenceNumbers)
	if err != nil {
		return err
	}
	if !deliver {
		return nil
	}
	if err := s.app.FromAdmin(s.id, &msg); err != nil {
		return s.handleCallbackError(msg, err)
	}
	s.metrics.Reject(s.id, msg.Fields.SessionRejectReason)
	s.advanceTargetSeqAndDrain(msg)
	return nil
}

func (s *Session) handleApp(msg Message) error {
	deliver, err := s.verify(msg, s.settings.ValidateSequenceNumbers, s.settings.ValidateSequenceNumbers)
	if err != nil {
		return err
	}
	if !deliver {
		return nil
	}
	if err := s.state.incrNextTargetSeq(); err != nil {
		return &IOError{Op: "advance target seq", Err: err}
	}
	s.metrics.MessageReceived(s.id, msg.Header.MsgType)
	if err := s.app.FromApp(s.id, &msg); err != nil {
		if cerr := s.handleCallbackError(msg, err); cerr != nil {
			return cerr
		}
	}
	next, terr := s.state.nextTargetSeq()
	if terr == nil {
		for _, queued := range s.state.drain(next) {
			if derr := s.dispatch(queued); derr != nil {
				s.logger.Warn("error dispatching queued message", slog.String("error", derr.Error()))
			}
		}
	}
	return nil
}

// sendReject emits a session-level Reject referencing msg (spec.md
// §7's FieldException/IncorrectDataFormat/IncorrectTagValue recovery).
func (s *Session) sendReject(msg Message, reason SessionRejectReason, refTag int, text string) {
	s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeReject},
		Fields: Fields{
			RefTagID:            refTag,
			HasRefTagID:         refTag != 0,
			RefMsgType:          msg.Header.MsgType,
			SessionRejectReason: reason,
			HasSessionRejectRsn: true,
			Text:                text,
		},
	})
}

// sendLogout emits a Logout carrying reason as Text, and marks
// logoutSent.
func (s *Session) sendLogout(reason string) {
	s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeLogout},
		Fields: Fields{Text: reason},
	})
	s.state.logoutSent = true
	s.state.logoutReason = reason
}

// sendBusinessMessageReject emits a BusinessMessageReject (MsgType j)
// referencing msg's MsgType, per spec.md §7's UnsupportedMessageType
// handling on FIX.4.2 and later.
func (s *Session) sendBusinessMessageReject(refMsgType string, reason BusinessRejectReason, text string) {
	s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeBusinessMessageReject},
		Fields: Fields{
			RefMsgType:              refMsgType,
			BusinessRejectReason:    reason,
			HasBusinessRejectReason: true,
			Text:                    text,
		},
	})
}

// handleCallbackError converts an error an Application callback
// (fromAdmin/fromApp) returned into the outbound Reject/Logout/
// BusinessMessageReject spec.md §7's taxonomy specifies, then returns
// it unchanged so the caller can log or propagate it the same way
// verify's faults are. A nil or unrecognized error is logged and
// swallowed rather than halting the session.
func (s *Session) handleCallbackError(msg Message, err error) error {
	switch e := err.(type) {
	case nil:
		return nil
	case *RejectLogon:
		s.sendLogout(e.Reason)
		return err
	case *FieldException:
		s.sendReject(msg, e.Reason, e.Tag, e.Text)
		return err
	case *IncorrectDataFormat:
		s.sendReject(msg, RejectReasonIncorrectDataFormat, e.Tag, e.Text)
		return err
	case *IncorrectTagValue:
		s.sendReject(msg, RejectReasonValueIncorrect, e.Tag, fmt.Sprintf("value incorrect: %q", e.Value))
		return err
	case *UnsupportedMessageType:
		if msg.Header.BeginString >= BeginStringFIX42 {
			s.sendBusinessMessageReject(e.MsgType, BusinessRejectReasonUnsupportedMessageType, "unsupported message type")
		} else {
			s.sendReject(msg, RejectReasonInvalidMsgType, 35, "unsupported message type")
		}
		return err
	default:
		s.logger.Warn("application callback error", slog.String("error", err.Error()))
		return nil
	}
}
