// Package metrics exposes the session engine's activity as Prometheus
// metrics, wired into internal/session via the session.MetricsReporter
// interface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nextfix-go/nextfix/internal/session"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "nextfix"
	subsystem = "session"
)

// Label names for session metrics.
const (
	labelSessionID = "session_id"
	labelMsgType   = "msg_type"
	labelReason    = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus session metrics
// -------------------------------------------------------------------------

// Collector holds all session-engine Prometheus metrics.
//
//   - Sessions counts sessions created; it is not decremented when a
//     session is unregistered.
//   - Logons/Logouts track the logon/logout lifecycle.
//   - MessagesSent/MessagesReceived count protocol traffic by MsgType.
//   - ResendRequests/GapFills count the gap-fill protocol in motion.
//   - Rejects count session-level Reject emissions by reason.
//   - HeartbeatTimeouts counts peer heartbeat timeouts, including those
//     that do not disconnect because DisableHeartBeatCheck is set.
type Collector struct {
	Sessions *prometheus.GaugeVec

	Logons  *prometheus.CounterVec
	Logouts *prometheus.CounterVec

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec

	ResendRequests *prometheus.CounterVec
	GapFills       *prometheus.CounterVec

	Rejects *prometheus.CounterVec

	HeartbeatTimeouts *prometheus.CounterVec
}

var _ session.MetricsReporter = (*Collector)(nil)

// NewCollector creates a Collector with all session metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.Logons,
		c.Logouts,
		c.MessagesSent,
		c.MessagesReceived,
		c.ResendRequests,
		c.GapFills,
		c.Rejects,
		c.HeartbeatTimeouts,
	)

	return c
}

func newMetrics() *Collector {
	sessionLabels := []string{labelSessionID}
	msgLabels := []string{labelSessionID, labelMsgType}
	reasonLabels := []string{labelSessionID, labelReason}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of FIX sessions created.",
		}, sessionLabels),

		Logons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logons_total",
			Help:      "Total completed logon handshakes.",
		}, sessionLabels),

		Logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logouts_total",
			Help:      "Total completed logout handshakes.",
		}, sessionLabels),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total messages transmitted, by MsgType.",
		}, msgLabels),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total messages received, by MsgType.",
		}, msgLabels),

		ResendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resend_requests_total",
			Help:      "Total sequence numbers requested by outbound ResendRequest messages.",
		}, sessionLabels),

		GapFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gap_fills_total",
			Help:      "Total outbound SequenceReset-GapFill messages.",
		}, sessionLabels),

		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejects_total",
			Help:      "Total outbound session-level Reject messages, by reason.",
		}, reasonLabels),

		HeartbeatTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeat_timeouts_total",
			Help:      "Total peer heartbeat timeouts detected by the liveness check.",
		}, sessionLabels),
	}
}

// -------------------------------------------------------------------------
// session.MetricsReporter
// -------------------------------------------------------------------------

func (c *Collector) SessionCreated(id session.ID) {
	c.Sessions.WithLabelValues(id.String()).Inc()
}

func (c *Collector) SessionLoggedOn(id session.ID) {
	c.Logons.WithLabelValues(id.String()).Inc()
}

func (c *Collector) SessionLoggedOut(id session.ID) {
	c.Logouts.WithLabelValues(id.String()).Inc()
}

func (c *Collector) MessageSent(id session.ID, msgType string) {
	c.MessagesSent.WithLabelValues(id.String(), msgType).Inc()
}

func (c *Collector) MessageReceived(id session.ID, msgType string) {
	c.MessagesReceived.WithLabelValues(id.String(), msgType).Inc()
}

func (c *Collector) ResendRequested(id session.ID, count int) {
	c.ResendRequests.WithLabelValues(id.String()).Add(float64(count))
}

func (c *Collector) GapFillSent(id session.ID) {
	c.GapFills.WithLabelValues(id.String()).Inc()
}

func (c *Collector) HeartbeatTimeout(id session.ID) {
	c.HeartbeatTimeouts.WithLabelValues(id.String()).Inc()
}

func (c *Collector) Reject(id session.ID, reason session.SessionRejectReason) {
	c.Rejects.WithLabelValues(id.String(), reasonLabel(reason)).Inc()
}

func reasonLabel(reason session.SessionRejectReason) string {
	switch reason {
	case session.RejectReasonInvalidTagNumber:
		return "invalid_tag_number"
	case session.RejectReasonRequiredTagMissing:
		return "required_tag_missing"
	case session.RejectReasonValueIncorrect:
		return "value_incorrect"
	case session.RejectReasonIncorrectDataFormat:
		return "incorrect_data_format"
	case session.RejectReasonCompIDProblem:
		return "comp_id_problem"
	case session.RejectReasonSendingTimeAccuracyProblem:
		return "sending_time_accuracy_problem"
	default:
		return "other"
	}
}
