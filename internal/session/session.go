package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session is the per-counterparty engine: the state machine, gap-fill
// engine, liveness engine, and send pipeline described in spec.md §2,
// tied together around one state record and one identity.
type Session struct {
	id ID

	settings Settings
	schedule Schedule
	codec    Codec
	app      ApplicationExtended
	metrics  MetricsReporter
	logger   *slog.Logger

	isInitiator bool

	responderMu sync.Mutex
	responder   Responder

	state *state

	gapFill  *gapFillEngine
	liveness *livenessEngine
	pipeline *sendPipeline
}

// Codec renders a Message to wire bytes and parses wire bytes back
// into a Message. It is the external wire tag/value codec spec.md §1
// explicitly excludes from this package's scope; a reference
// implementation lives in internal/wire.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(raw []byte) (Message, error)
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithSchedule overrides the default AlwaysOpen schedule.
func WithSchedule(sch Schedule) Option {
	return func(s *Session) { s.schedule = sch }
}

// WithMetrics attaches a MetricsReporter. Without this option metrics
// calls are no-ops.
func WithMetrics(m MetricsReporter) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithInitiator marks the session as the connection initiator, which
// governs logon generation in the liveness engine (spec.md §4.3 step 4).
func WithInitiator(initiator bool) Option {
	return func(s *Session) { s.isInitiator = initiator }
}

// New constructs a Session for id, backed by store and communicating
// through codec, delivering events to app. The session starts
// unregistered and without an attached Responder; attach one via
// SetResponder before traffic can flow.
func New(id ID, settings Settings, store MessageStore, codec Codec, app Application, opts ...Option) (*Session, error) {
	if app == nil {
		return nil, fmt.Errorf("session %s: application is required", id)
	}
	if store == nil {
		return nil, fmt.Errorf("session %s: message store is required", id)
	}

	st := newState(store, settings.TestRequestDelayMultiplier)
	st.heartbeatInterval = time.Duration(settings.HeartBtInt) * time.Second

	s := &Session{
		id:       id,
		settings: settings,
		schedule: AlwaysOpen{},
		codec:    codec,
		app:      asExtended(app),
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		state:    st,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(slog.String("session", id.String()))
	s.gapFill = newGapFillEngine(s)
	s.liveness = newLivenessEngine(s)
	s.pipeline = newSendPipeline(s)

	s.metrics.SessionCreated(id)

	return s, nil
}

// ID returns the session's identity.
func (s *Session) ID() ID { return s.id }

// IsLoggedOn reports whether both directions of the logon handshake
// have completed.
func (s *Session) IsLoggedOn() bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.loggedOn()
}

// SetResponder attaches the transport the session transmits through.
// Passing nil detaches it (e.g. on disconnect).
func (s *Session) SetResponder(r Responder) {
	s.responderMu.Lock()
	defer s.responderMu.Unlock()
	s.responder = r
}

func (s *Session) hasResponder() bool {
	s.responderMu.Lock()
	defer s.responderMu.Unlock()
	return s.responder != nil
}

func (s *Session) getResponder() Responder {
	s.responderMu.Lock()
	defer s.responderMu.Unlock()
	return s.responder
}

// Disable administratively shuts the session down: on later ticks the
// liveness engine sends a Logout if the session is logged on and none
// has been sent yet, and otherwise generates no traffic (no logon,
// heartbeat or test request) until Enable is called again.
func (s *Session) Disable() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.enabled = false
}

// Enable reverses Disable.
func (s *Session) Enable() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.enabled = true
}

// Disconnect tears down the attached responder, if any, and logs why.
func (s *Session) Disconnect(reason string) {
	s.logger.Info("disconnecting", slog.String("reason", reason))
	r := s.getResponder()
	if r != nil {
		r.Disconnect()
	}
	s.SetResponder(nil)
}

// Send is the public outbound API (spec.md §4.4 send). It returns
// true if the message was handed to the transport, false if the
// application vetoed it, the session isn't in a state that permits
// sending it, or an I/O/persistence error occurred.
func (s *Session) Send(msg Message) bool {
	return s.pipeline.send(msg)
}

// Receive is the state machine's entry point: bytes already decoded by
// Codec are dispatched by MsgType (spec.md §4.1). A *RejectLogon
// outcome also advances the target sequence and disconnects.
func (s *Session) Receive(msg Message) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	err := s.dispatch(msg)
	if _, ok := err.(*RejectLogon); ok {
		if ierr := s.state.incrNextTargetSeq(); ierr != nil {
			s.logger.Error("failed to advance target seq", slog.String("error", ierr.Error()))
		}
		s.Disconnect("logon rejected")
	}
	return err
}

// ReceiveRaw decodes raw via the session's Codec and dispatches it. A
// decode failure is logged and reported as *InvalidMessage; it does not
// disconnect the session or apply ResetOnError/DisconnectOnError.
func (s *Session) ReceiveRaw(raw []byte) error {
	msg, err := s.codec.Decode(raw)
	if err != nil {
		invalid := &InvalidMessage{Text: err.Error()}
		s.logger.Warn("failed to decode inbound message", slog.String("error", err.Error()))
		return invalid
	}
	return s.Receive(msg)
}

// Tick drives the liveness engine's periodic check (spec.md §4.3
// next()). Callers are expected to invoke this roughly once per
// second; internal/transport and cmd/nextfixd own the actual timer.
func (s *Session) Tick() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.liveness.next()
}
