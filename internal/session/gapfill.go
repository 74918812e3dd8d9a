package session

import (
	"log/slog"
	"time"
)

// gapFillEngine implements spec.md §4.2: detecting target-too-high,
// requesting resends, and answering peer resend requests.
type gapFillEngine struct {
	s *Session
}

func newGapFillEngine(s *Session) *gapFillEngine {
	return &gapFillEngine{s: s}
}

// doTargetTooHigh implements the "on target-too-high" branch of
// spec.md §4.2. Callers must hold s.state.mu.
func (g *gapFillEngine) doTargetTooHigh(msg Message, nextTarget int) {
	s := g.s
	st := s.state

	st.enqueue(msg)

	if !IsAdminMsgType(msg.Header.MsgType) && st.loggedOn() {
		if s.settings.ResetOnError || s.settings.DisconnectOnError {
			s.logger.Warn("target too high, applying error policy", slog.Int("seq", msg.Header.MsgSeqNum))
			if s.settings.DisconnectOnError {
				s.Disconnect("target sequence too high")
			}
			if s.settings.ResetOnError {
				if err := st.reset(); err != nil {
					s.logger.Error("reset on error failed", slog.String("error", err.Error()))
				}
			}
			return
		}
	}

	r := st.resend
	if r.pending() && msg.Header.MsgSeqNum >= r.begin && !s.settings.SendRedundantResendRequests {
		return
	}

	begin := nextTarget
	end := msg.Header.MsgSeqNum - 1
	chunkEnd := 0
	wireEnd := s.settings.resendEndSentinel(s.id.BeginString, end)
	if s.settings.ResendRequestChunkSize > 0 {
		chunkEnd = begin + s.settings.ResendRequestChunkSize - 1
		if chunkEnd > end {
			chunkEnd = end
		}
		wireEnd = chunkEnd
	}

	st.resend = resendRange{begin: begin, end: end, chunkEnd: chunkEnd}
	s.sendResendRequest(begin, wireEnd)
	s.metrics.ResendRequested(s.id, end-begin+1)
}

func (s *Session) sendResendRequest(begin, end int) {
	s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeResendRequest},
		Fields: Fields{BeginSeqNo: begin, EndSeqNo: end},
	})
}

// nextChunk computes the follow-up chunk for a chunked resend range
// whose current chunk just completed (spec.md §4.1.1 step 9).
func (s *Session) nextChunk(r resendRange) resendRange {
	begin := r.chunkEnd + 1
	chunkSize := s.settings.ResendRequestChunkSize
	chunkEnd := r.end
	if chunkSize > 0 {
		chunkEnd = begin + chunkSize - 1
		if chunkEnd > r.end {
			chunkEnd = r.end
		}
	}
	return resendRange{begin: begin, end: r.end, chunkEnd: chunkEnd}
}

func (s *Session) chunkEndToWire(r resendRange) int {
	if r.chunkEnd > 0 && r.chunkEnd < r.end {
		return r.chunkEnd
	}
	return s.settings.resendEndSentinel(s.id.BeginString, r.end)
}

// answer implements spec.md §4.2's "on incoming ResendRequest" branch.
// Callers must hold s.state.mu.
func (g *gapFillEngine) answer(beginSeq, endSeq int) error {
	s := g.s
	st := s.state

	nextSender, err := st.nextSenderSeq()
	if err != nil {
		return &IOError{Op: "get next sender seq", Err: err}
	}

	if endSeq == 0 || (s.id.BeginString <= BeginStringFIX41 && endSeq == 999999) || endSeq >= nextSender {
		endSeq = nextSender - 1
	}

	if !s.settings.PersistMessages {
		g.sendGapFill(beginSeq, min(endSeq+1, nextSender))
		return nil
	}

	raws, err := st.store.Get(beginSeq, endSeq)
	if err != nil {
		if s.settings.ForceResendWhenCorruptedStore {
			s.logger.Warn("message store read failed, synthesizing heartbeats", slog.String("error", err.Error()))
			return g.synthesizeRange(beginSeq, endSeq)
		}
		return &IOError{Op: "read resend range", Err: err}
	}

	gapBegin := 0
	current := beginSeq

	flush := func(upTo int) {
		if gapBegin != 0 {
			g.sendGapFill(gapBegin, upTo)
			gapBegin = 0
		}
	}

	for _, raw := range raws {
		parsed, err := s.codec.Decode(raw)
		if err != nil {
			s.logger.Warn("failed to decode persisted message during resend", slog.String("error", err.Error()))
			continue
		}
		seq := parsed.Header.MsgSeqNum
		if seq < current {
			continue
		}
		if seq > current {
			if gapBegin == 0 {
				gapBegin = current
			}
		}

		if IsAdminMsgType(parsed.Header.MsgType) {
			if gapBegin == 0 {
				gapBegin = seq
			}
			current = seq + 1
			continue
		}

		clone := parsed.Clone()
		if err := s.app.ToApp(s.id, &clone); err != nil {
			if _, veto := err.(*DoNotSend); veto {
				if gapBegin == 0 {
					gapBegin = seq
				}
				current = seq + 1
				continue
			}
		}

		flush(seq)

		clone.Header.PossDupFlag = true
		clone.Header.OrigSendingTime = clone.Header.SendingTime
		s.pipeline.sendRaw(clone, seq)

		current = seq + 1
	}

	flush(current)
	if endSeq >= current {
		g.sendGapFill(current, min(endSeq+1, nextSender))
	}

	return nil
}

func (g *gapFillEngine) synthesizeRange(begin, end int) error {
	for seq := begin; seq <= end; seq++ {
		g.s.pipeline.sendRaw(Message{Header: Header{MsgType: MsgTypeHeartbeat}}, seq)
	}
	return nil
}

// sendGapFill emits a SequenceReset-GapFill per spec.md §4.2's emission
// rule. It does not advance nextSenderSeq.
func (g *gapFillEngine) sendGapFill(begin, newSeqNo int) {
	s := g.s
	now := time.Now()
	msg := Message{
		Header: Header{
			MsgType:         MsgTypeSequenceReset,
			MsgSeqNum:       begin,
			PossDupFlag:     true,
			SendingTime:     now,
			OrigSendingTime: now,
		},
		Fields: Fields{NewSeqNo: newSeqNo, GapFillFlag: true},
	}
	s.pipeline.sendRaw(msg, begin)
	s.metrics.GapFillSent(s.id)
}
