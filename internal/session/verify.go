package session

import (
	"fmt"
	"time"
)

// verify is the central inbound gate (spec.md §4.1.1). Callers must
// hold s.state.mu. It returns (deliver, err): deliver is true iff the
// message should be handed on to the application callback; err is set
// when a protocol fault was detected and already reacted to (a reply
// sent, a disconnect scheduled).
func (s *Session) verify(msg Message, checkTooHigh, checkTooLow bool) (bool, error) {
	st := s.state
	now := time.Now()

	// Step 1.
	st.lastReceivedTime = now
	st.clearTestRequestCounter()

	// Step 2.
	if !s.validLogonState(msg.Header.MsgType) {
		return false, &FieldException{
			Reason: RejectReasonOther,
			Text:   fmt.Sprintf("logon state does not permit MsgType=%s", msg.Header.MsgType),
		}
	}

	// Step 2b.
	if msg.Header.BeginString != s.id.BeginString {
		s.sendLogout(fmt.Sprintf("BeginString mismatch: expected %s, got %s", s.id.BeginString, msg.Header.BeginString))
		s.Disconnect("BeginString mismatch")
		return false, &UnsupportedVersion{Expected: s.id.BeginString, Actual: msg.Header.BeginString}
	}

	// Step 3.
	if s.settings.CheckLatency && !s.isGoodTime(msg.Header.SendingTime, now) {
		s.sendReject(msg, RejectReasonSendingTimeAccuracyProblem, 52, "SendingTime accuracy problem")
		s.sendLogout("SendingTime accuracy problem")
		return false, &FieldException{Reason: RejectReasonSendingTimeAccuracyProblem, Tag: 52}
	}

	// Step 4.
	if s.settings.CheckCompID && !s.isCorrectCompID(msg.Header) {
		s.sendReject(msg, RejectReasonCompIDProblem, 49, "CompID problem")
		s.sendLogout("CompID problem")
		return false, &FieldException{Reason: RejectReasonCompIDProblem, Tag: 49}
	}

	nextTarget, err := st.nextTargetSeq()
	if err != nil {
		return false, &IOError{Op: "get next target seq", Err: err}
	}

	// Step 5.
	if checkTooHigh && msg.Header.MsgSeqNum > nextTarget {
		s.gapFill.doTargetTooHigh(msg, nextTarget)
		return false, nil
	}

	// Step 6.
	if checkTooLow && msg.Header.MsgSeqNum < nextTarget {
		if !msg.Header.PossDupFlag {
			s.sendLogout(fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", nextTarget, msg.Header.MsgSeqNum))
			return false, &FieldException{
				Reason: RejectReasonValueIncorrect,
				Tag:    34,
				Text:   fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", nextTarget, msg.Header.MsgSeqNum),
			}
		}
		if !s.validatePossDup(msg) {
			return false, &FieldException{Reason: RejectReasonSendingTimeAccuracyProblem, Tag: 122}
		}
		// Accepted duplicate: no increment, no delivery (spec.md
		// scenario 4 / testable property "idempotence").
		return false, nil
	}

	// Step 7 — NextExpectedMsgSeqNum extension.
	if msg.Header.MsgType == MsgTypeLogon && checkTooLow && s.settings.EnableNextExpectedMsgSeqNum && msg.Header.HasNextExpectedMsgSeq {
		nextSender, err := st.nextSenderSeq()
		if err != nil {
			return false, &IOError{Op: "get next sender seq", Err: err}
		}
		if msg.Header.NextExpectedMsgSeqNum > nextSender {
			s.sendLogout("NextExpectedMsgSeqNum too high")
			return false, &RejectLogon{Reason: "NextExpectedMsgSeqNum too high"}
		}
	}

	// Step 8.
	if msg.Header.PossDupFlag && msg.Header.MsgType != MsgTypeSequenceReset {
		if !s.validatePossDup(msg) {
			return false, &FieldException{Reason: RejectReasonSendingTimeAccuracyProblem, Tag: 122}
		}
	}

	// Step 9.
	s.maybeCompleteResend(msg.Header.MsgSeqNum)

	return true, nil
}

// validLogonState implements spec.md §4.1.1 step 2's authoritative
// enumeration (spec.md §9 flags the original's ambiguous predicate as a
// bug candidate; this is the replacement).
func (s *Session) validLogonState(msgType string) bool {
	st := s.state
	switch msgType {
	case MsgTypeLogon:
		return !st.logonReceived || st.resetReceived
	case MsgTypeLogout:
		return st.logonSent
	case MsgTypeSequenceReset, MsgTypeReject:
		return true
	default:
		return st.logonReceived
	}
}

func (s *Session) isGoodTime(sendingTime, now time.Time) bool {
	if sendingTime.IsZero() {
		return false
	}
	delta := now.Sub(sendingTime)
	if delta < 0 {
		delta = -delta
	}
	return delta <= s.settings.MaxLatency
}

func (s *Session) isCorrectCompID(h Header) bool {
	return h.SenderCompID == s.id.TargetCompID && h.TargetCompID == s.id.SenderCompID
}

// validatePossDup implements spec.md §4.1.1 step 8.
func (s *Session) validatePossDup(msg Message) bool {
	if msg.Header.MsgType != MsgTypeSequenceReset {
		if !msg.Header.OrigSendingTime.IsZero() && msg.Header.OrigSendingTime.After(msg.Header.SendingTime) {
			s.sendReject(msg, RejectReasonSendingTimeAccuracyProblem, 122, "OrigSendingTime after SendingTime")
			s.sendLogout("OrigSendingTime after SendingTime")
			return false
		}
		if msg.Header.OrigSendingTime.IsZero() {
			if s.settings.RejectInvalidMessage {
				s.sendReject(msg, RejectReasonRequiredTagMissing, 122, "OrigSendingTime required when PossDupFlag=Y")
				return false
			}
			s.logger.Warn("PossDup message missing OrigSendingTime", "msgType", msg.Header.MsgType)
		}
	}
	return true
}

// maybeCompleteResend implements spec.md §4.1.1 step 9.
func (s *Session) maybeCompleteResend(seq int) {
	st := s.state
	r := st.resend
	if !r.pending() {
		return
	}
	if seq >= r.end {
		st.resend = resendRange{}
		s.logger.Info("resend range completed", "end", r.end)
		return
	}
	if r.chunkEnd > 0 && seq >= r.chunkEnd && r.chunkEnd < r.end {
		next := s.nextChunk(r)
		st.resend = next
		s.sendResendRequest(next.begin, s.chunkEndToWire(next))
	}
}
