package session

import (
	"sync"
	"time"
)

// resendRange is the triple (beginSeq, endSeq, chunkEndSeq) spec.md §3
// describes; the zero value (0,0,0) means no resend is pending.
type resendRange struct {
	begin, end, chunkEnd int
}

func (r resendRange) pending() bool { return r.begin != 0 || r.end != 0 }

// state is the single mutable record a Session owns (spec.md §3). All
// fields are accessed under mu; the store's sender and target counters
// additionally have their own finer-grained locks (senderSeqMu,
// targetSeqMu) so that the "stamp -> persist ->
// increment" critical section in SendPipeline never interleaves with a
// concurrent reader.
type state struct {
	mu sync.Mutex

	store MessageStore

	senderSeqMu sync.Mutex
	targetSeqMu sync.Mutex

	creationTime     time.Time
	lastSentTime     time.Time
	lastReceivedTime time.Time

	heartbeatInterval          time.Duration
	testRequestCounter         int
	testRequestDelayMultiplier float64

	// enabled gates whether the liveness engine will generate traffic
	// at all; false means "administratively shut down" (spec.md §4.3
	// step 1), distinct from DisableHeartBeatCheck which only disables
	// the dead-peer timeout.
	enabled bool

	logonSent      bool
	logonReceived  bool
	logoutSent     bool
	logoutReceived bool
	resetSent      bool
	resetReceived  bool

	logoutReason string

	resend resendRange

	inboundQueue map[int]Message

	// logonAttempts counts initiator logon generation attempts, for
	// Settings.logonDelay.
	logonAttempts    int
	lastLogonAttempt time.Time
}

func newState(store MessageStore, testRequestDelayMultiplier float64) *state {
	now := time.Now()
	return &state{
		store:                      store,
		creationTime:               now,
		testRequestDelayMultiplier: testRequestDelayMultiplier,
		inboundQueue:               make(map[int]Message),
		enabled:                    true,
	}
}

func (s *state) nextSenderSeq() (int, error) {
	s.senderSeqMu.Lock()
	defer s.senderSeqMu.Unlock()
	return s.store.NextSenderMsgSeqNum()
}

func (s *state) nextTargetSeq() (int, error) {
	s.targetSeqMu.Lock()
	defer s.targetSeqMu.Unlock()
	return s.store.NextTargetMsgSeqNum()
}

func (s *state) setNextTargetSeq(seq int) error {
	s.targetSeqMu.Lock()
	defer s.targetSeqMu.Unlock()
	return s.store.SetNextTargetMsgSeqNum(seq)
}

func (s *state) incrNextTargetSeq() error {
	s.targetSeqMu.Lock()
	defer s.targetSeqMu.Unlock()
	return s.store.IncrNextTargetMsgSeqNum()
}

// reset restores counters to 1 and clears all flags (spec.md invariant
// 6). Callers must hold s.mu; reset acquires the sequence locks itself.
func (s *state) reset() error {
	s.senderSeqMu.Lock()
	if err := s.store.SetNextSenderMsgSeqNum(1); err != nil {
		s.senderSeqMu.Unlock()
		return err
	}
	s.senderSeqMu.Unlock()

	s.targetSeqMu.Lock()
	if err := s.store.SetNextTargetMsgSeqNum(1); err != nil {
		s.targetSeqMu.Unlock()
		return err
	}
	s.targetSeqMu.Unlock()

	if err := s.store.Reset(); err != nil {
		return err
	}

	s.logonSent = false
	s.logonReceived = false
	s.logoutSent = false
	s.logoutReceived = false
	s.resetSent = false
	s.resetReceived = false
	s.logoutReason = ""
	s.resend = resendRange{}
	s.testRequestCounter = 0
	s.inboundQueue = make(map[int]Message)
	s.creationTime = time.Now()

	return nil
}

// loggedOn reports whether both directions of the logon handshake
// have completed (spec.md invariant 4).
func (s *state) loggedOn() bool {
	return s.logonReceived && s.logonSent
}

func (s *state) clearTestRequestCounter() {
	s.testRequestCounter = 0
}

func (s *state) enqueue(msg Message) {
	s.inboundQueue[msg.Header.MsgSeqNum] = msg
}

// drain removes and returns, in ascending order, every queued message
// whose seq is >= from and contiguous starting at from. It stops at
// the first gap.
func (s *state) drain(from int) []Message {
	var out []Message
	for seq := from; ; seq++ {
		msg, ok := s.inboundQueue[seq]
		if !ok {
			break
		}
		delete(s.inboundQueue, seq)
		out = append(out, msg)
	}
	return out
}
