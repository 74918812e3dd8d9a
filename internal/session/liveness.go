package session

import (
	"log/slog"
	"time"
)

// livenessEngine implements spec.md §4.3: periodic heartbeat emission,
// test-request escalation, and timeout-based disconnect.
type livenessEngine struct {
	s *Session
}

func newLivenessEngine(s *Session) *livenessEngine {
	return &livenessEngine{s: s}
}

// next runs one liveness tick. Callers must hold s.state.mu.
func (l *livenessEngine) next() {
	s := l.s
	st := s.state
	now := time.Now()

	if !st.enabled {
		if !st.loggedOn() {
			return
		}
		if !st.logoutSent {
			s.sendLogout(st.logoutReason)
		}
		return
	}

	if !s.schedule.IsSessionTime(now) {
		if err := st.reset(); err != nil {
			s.logger.Error("schedule reset failed", slog.String("error", err.Error()))
		}
		return
	}

	if !s.hasResponder() {
		return
	}

	if !st.logonReceived {
		if s.isInitiator && !st.logonSent {
			if l.isTimeToGenerateLogon(now) {
				if s.app.CanLogon(s.id) {
					l.generateLogon()
				}
			}
		} else if st.logonSent && l.isLogonTimedOut(now) {
			s.Disconnect("timed out waiting for logon response")
		}
		return
	}

	if st.heartbeatInterval == 0 {
		return
	}

	if l.isLogoutTimedOut(now) {
		s.Disconnect("timed out waiting for logout response")
		return
	}

	if l.isWithinHeartBeat(now) {
		return
	}

	if l.isTimedOut(now) {
		s.metrics.HeartbeatTimeout(s.id)
		if !s.settings.DisableHeartBeatCheck {
			s.Disconnect("peer heartbeat timed out")
		} else {
			s.logger.Warn("peer heartbeat timed out, heartbeat check disabled")
		}
		return
	}

	if l.isTestRequestNeeded(now) {
		s.pipeline.send(Message{
			Header: Header{MsgType: MsgTypeTestRequest},
			Fields: Fields{TestReqID: "TEST"},
		})
		st.testRequestCounter++
		return
	}

	if l.isHeartBeatNeeded(now) {
		s.pipeline.send(Message{Header: Header{MsgType: MsgTypeHeartbeat}})
	}
}

func (l *livenessEngine) isTimeToGenerateLogon(now time.Time) bool {
	st := l.s.state
	if st.logonAttempts == 0 {
		return true
	}
	delay := l.s.settings.logonDelay(st.logonAttempts)
	return now.Sub(st.lastLogonAttempt) >= delay
}

func (l *livenessEngine) generateLogon() {
	s := l.s
	st := s.state
	st.logonAttempts++
	st.lastLogonAttempt = time.Now()
	ok := s.pipeline.send(Message{
		Header: Header{MsgType: MsgTypeLogon},
		Fields: Fields{
			EncryptMethod: 0,
			HeartBtInt:    s.settings.HeartBtInt,
		},
	})
	if ok {
		st.logonSent = true
	}
}

func (l *livenessEngine) isLogonTimedOut(now time.Time) bool {
	return now.Sub(l.s.state.lastLogonAttempt) > l.s.settings.LogonTimeout
}

func (l *livenessEngine) isLogoutTimedOut(now time.Time) bool {
	st := l.s.state
	if !st.logoutSent {
		return false
	}
	return now.Sub(st.lastSentTime) > l.s.settings.LogoutTimeout
}

func (l *livenessEngine) isWithinHeartBeat(now time.Time) bool {
	st := l.s.state
	interval := st.heartbeatInterval
	return now.Sub(st.lastSentTime) < interval && now.Sub(st.lastReceivedTime) < interval
}

// isTimedOut implements the 2.4x heartbeat dead-timeout (spec.md §4.3
// step 8, §5).
func (l *livenessEngine) isTimedOut(now time.Time) bool {
	st := l.s.state
	return now.Sub(st.lastReceivedTime) > time.Duration(float64(st.heartbeatInterval)*2.4)
}

func (l *livenessEngine) isTestRequestNeeded(now time.Time) bool {
	st := l.s.state
	n := float64(st.testRequestCounter + 1)
	threshold := time.Duration(float64(st.heartbeatInterval) * (1 + n*st.testRequestDelayMultiplier))
	return now.Sub(st.lastReceivedTime) > threshold
}

func (l *livenessEngine) isHeartBeatNeeded(now time.Time) bool {
	st := l.s.state
	return now.Sub(st.lastSentTime) >= st.heartbeatInterval
}
