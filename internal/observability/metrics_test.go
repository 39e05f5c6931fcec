package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !matchLabels(m, labels) {
				continue
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == k && pair.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNewCollectorTolerateReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("second NewCollector on same registry: %v", err)
	}
}

func TestCollectorEditorState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.SetEditorState("drawing")
	if got := gaugeValue(t, reg, "fence_editor_state", map[string]string{"state": "drawing"}); got != 1 {
		t.Fatalf("drawing gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "fence_editor_state", map[string]string{"state": "idle"}); got != 0 {
		t.Fatalf("idle gauge = %v, want 0", got)
	}

	// Moving to another state flips the gauges.
	c.SetEditorState("ready")
	if got := gaugeValue(t, reg, "fence_editor_state", map[string]string{"state": "drawing"}); got != 0 {
		t.Fatalf("drawing gauge = %v after transition, want 0", got)
	}
	if got := gaugeValue(t, reg, "fence_editor_state", map[string]string{"state": "ready"}); got != 1 {
		t.Fatalf("ready gauge = %v, want 1", got)
	}
}

func TestCollectorQueueAndDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.SetQueueDepth(3)
	if got := gaugeValue(t, reg, "fence_submission_queue_depth", nil); got != 3 {
		t.Fatalf("queue depth = %v, want 3", got)
	}

	c.ObserveDelivery("ok", 0.2)
	c.ObserveDelivery("error", 1.5)
	c.ObserveDelivery("error", 0.9)
	if got := gaugeValue(t, reg, "fence_delivery_attempts_total", map[string]string{"outcome": "ok"}); got != 1 {
		t.Fatalf("ok attempts = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "fence_delivery_attempts_total", map[string]string{"outcome": "error"}); got != 2 {
		t.Fatalf("error attempts = %v, want 2", got)
	}
}

func TestCollectorMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	handler := c.Middleware("/api/geofence", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/geofence", nil))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/geofence", nil))

	got := gaugeValue(t, reg, "fence_http_requests_total", map[string]string{
		"route":  "/api/geofence",
		"method": "POST",
		"code":   "201",
	})
	if got != 2 {
		t.Fatalf("request counter = %v, want 2", got)
	}
}

func TestCollectorNilRecorderSafe(t *testing.T) {
	var c *Collector
	// Nil collectors are tolerated by every recorder method.
	c.SetEditorState("ready")
	c.SetRingVertices(4)
	c.SetQueueDepth(1)
	c.ObserveDelivery("ok", 0.1)
}
