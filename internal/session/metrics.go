package session

// MetricsReporter is the metrics sink a Session reports protocol
// events to. internal/metrics.Collector implements this against
// Prometheus; tests use a no-op or a recording fake.
type MetricsReporter interface {
	SessionCreated(id ID)
	SessionLoggedOn(id ID)
	SessionLoggedOut(id ID)
	MessageSent(id ID, msgType string)
	MessageReceived(id ID, msgType string)
	ResendRequested(id ID, count int)
	GapFillSent(id ID)
	HeartbeatTimeout(id ID)
	Reject(id ID, reason SessionRejectReason)
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated(ID)             {}
func (noopMetrics) SessionLoggedOn(ID)            {}
func (noopMetrics) SessionLoggedOut(ID)           {}
func (noopMetrics) MessageSent(ID, string)        {}
func (noopMetrics) MessageReceived(ID, string)    {}
func (noopMetrics) ResendRequested(ID, int)       {}
func (noopMetrics) GapFillSent(ID)                {}
func (noopMetrics) HeartbeatTimeout(ID)           {}
func (noopMetrics) Reject(ID, SessionRejectReason) {}
