package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nextfix-go/nextfix/internal/metrics"
	"github.com/nextfix-go/nextfix/internal/session"
)

func testID() session.ID {
	return session.ID{
		BeginString:  session.BeginStringFIX44,
		SenderCompID: "SENDER",
		TargetCompID: "TARGET",
	}
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.Logons == nil {
		t.Error("Logons is nil")
	}
	if c.Logouts == nil {
		t.Error("Logouts is nil")
	}
	if c.MessagesSent == nil {
		t.Error("MessagesSent is nil")
	}
	if c.MessagesReceived == nil {
		t.Error("MessagesReceived is nil")
	}
	if c.ResendRequests == nil {
		t.Error("ResendRequests is nil")
	}
	if c.GapFills == nil {
		t.Error("GapFills is nil")
	}
	if c.Rejects == nil {
		t.Error("Rejects is nil")
	}
	if c.HeartbeatTimeouts == nil {
		t.Error("HeartbeatTimeouts is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestSessionLifecycleMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	id := testID()

	c.SessionCreated(id)
	c.SessionCreated(id)

	val := gaugeValue(t, c.Sessions, id.String())
	if val != 2 {
		t.Errorf("Sessions = %v, want 2", val)
	}

	c.SessionLoggedOn(id)
	if v := counterValue(t, c.Logons, id.String()); v != 1 {
		t.Errorf("Logons = %v, want 1", v)
	}

	c.SessionLoggedOut(id)
	if v := counterValue(t, c.Logouts, id.String()); v != 1 {
		t.Errorf("Logouts = %v, want 1", v)
	}
}

func TestMessageCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	id := testID()

	c.MessageSent(id, session.MsgTypeHeartbeat)
	c.MessageSent(id, session.MsgTypeHeartbeat)
	c.MessageSent(id, session.MsgTypeLogon)

	if v := counterValue(t, c.MessagesSent, id.String(), session.MsgTypeHeartbeat); v != 2 {
		t.Errorf("MessagesSent(Heartbeat) = %v, want 2", v)
	}
	if v := counterValue(t, c.MessagesSent, id.String(), session.MsgTypeLogon); v != 1 {
		t.Errorf("MessagesSent(Logon) = %v, want 1", v)
	}

	c.MessageReceived(id, session.MsgTypeTestRequest)
	if v := counterValue(t, c.MessagesReceived, id.String(), session.MsgTypeTestRequest); v != 1 {
		t.Errorf("MessagesReceived(TestRequest) = %v, want 1", v)
	}
}

func TestResendAndGapFillMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	id := testID()

	c.ResendRequested(id, 5)
	c.ResendRequested(id, 3)
	if v := counterValue(t, c.ResendRequests, id.String()); v != 8 {
		t.Errorf("ResendRequests = %v, want 8", v)
	}

	c.GapFillSent(id)
	c.GapFillSent(id)
	if v := counterValue(t, c.GapFills, id.String()); v != 2 {
		t.Errorf("GapFills = %v, want 2", v)
	}
}

func TestHeartbeatTimeoutMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	id := testID()

	c.HeartbeatTimeout(id)
	if v := counterValue(t, c.HeartbeatTimeouts, id.String()); v != 1 {
		t.Errorf("HeartbeatTimeouts = %v, want 1", v)
	}
}

func TestRejectMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	id := testID()

	c.Reject(id, session.RejectReasonCompIDProblem)
	c.Reject(id, session.RejectReasonCompIDProblem)
	c.Reject(id, session.RejectReasonValueIncorrect)

	if v := counterValue(t, c.Rejects, id.String(), "comp_id_problem"); v != 2 {
		t.Errorf("Rejects(comp_id_problem) = %v, want 2", v)
	}
	if v := counterValue(t, c.Rejects, id.String(), "value_incorrect"); v != 1 {
		t.Errorf("Rejects(value_incorrect) = %v, want 1", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
