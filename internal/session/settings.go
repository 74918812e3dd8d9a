package session

import "time"

// Settings is the full set of per-session configuration keys spec.md
// §6 enumerates. A Settings value applies to exactly one Session; the
// layered global-defaults-plus-per-SessionID-override composition
// happens in internal/config, not here.
type Settings struct {
	// HeartBtInt is the negotiated heartbeat interval in seconds. 0
	// disables liveness checking entirely.
	HeartBtInt int

	CheckLatency               bool
	MaxLatency                 time.Duration
	CheckCompID                bool
	TestRequestDelayMultiplier float64

	ResetOnLogon      bool
	ResetOnLogout     bool
	ResetOnDisconnect bool
	ResetOnError      bool
	DisconnectOnError bool

	RefreshOnLogon bool
	// PersistMessages defaults to true; false disables storing sent
	// bytes, so peer resend requests are answered entirely with
	// SequenceReset-GapFill.
	PersistMessages bool

	SendRedundantResendRequests bool
	// ClosedResendInterval forces the literal closed upper bound on
	// outbound ResendRequest rather than the version-dependent
	// open-range sentinel (0 for FIX.4.2+, 999999 for FIX.4.1 and
	// below).
	ClosedResendInterval bool

	MillisecondsInTimeStamp bool
	ValidateSequenceNumbers bool
	ValidateIncomingMessage bool
	RejectInvalidMessage    bool

	ForceResendWhenCorruptedStore bool
	AllowUnknownMsgFields         bool
	DisableHeartBeatCheck         bool
	EnableLastMsgSeqNumProcessed  bool
	EnableNextExpectedMsgSeqNum   bool

	LogonTimeout  time.Duration
	LogoutTimeout time.Duration

	// ResendRequestChunkSize caps the span of a single outbound
	// ResendRequest; 0 means unlimited (request the whole gap at once).
	ResendRequestChunkSize int

	// AllowedRemoteAddresses lists the peer addresses accepted for this
	// session. SetResponder does not check it; any Responder attaches.
	AllowedRemoteAddresses []string

	// LogonIntervals is the initiator's logon retry backoff table, in
	// seconds; index = min(attempts-1, len-1). Spec.md §4.3 default: [5].
	LogonIntervals []int

	// LogonForceSenderMsgSeqNum enables the best-effort recovery
	// described in spec.md §9's extractExpectedSequenceNumber: when a
	// Logout received while awaiting the peer's Logon response carries
	// a "MsgSeqNum too low, expecting N" text, reset our own
	// next-sender sequence number to N.
	LogonForceSenderMsgSeqNum bool
}

// DefaultSettings returns the settings spec.md §6 lists as defaults.
func DefaultSettings() Settings {
	return Settings{
		HeartBtInt:                 30,
		CheckLatency:               true,
		MaxLatency:                 120 * time.Second,
		CheckCompID:                true,
		TestRequestDelayMultiplier: 0.5,
		PersistMessages:            true,
		ValidateSequenceNumbers:    true,
		ValidateIncomingMessage:    true,
		RejectInvalidMessage:       true,
		LogonTimeout:               10 * time.Second,
		LogoutTimeout:              2 * time.Second,
		LogonIntervals:             []int{5},
	}
}

// resendEndSentinel returns the version-dependent "open range" upper
// bound used on outbound ResendRequest when the true end is unknown
// (spec.md §4.2), unless ClosedResendInterval forces the literal bound.
func (s Settings) resendEndSentinel(beginString string, closedEnd int) int {
	if s.ClosedResendInterval {
		return closedEnd
	}
	if beginString <= BeginStringFIX41 {
		return 999999
	}
	return 0
}

// logonDelay returns the backoff delay before attempt number attempts
// (1-indexed) of initiator logon generation.
func (s Settings) logonDelay(attempts int) time.Duration {
	table := s.LogonIntervals
	if len(table) == 0 {
		table = []int{5}
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	return time.Duration(table[idx]) * time.Second
}
