package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// editorStates mirrors the editor lifecycle so the state gauge always
// carries every label value, not just the ones observed so far.
var editorStates = []string{"idle", "drawing", "ready", "editing", "sending", "success", "error"}

// Collector bundles Prometheus metrics for the fence tool: HTTP request
// accounting for the receiver surface, editor gauges, and submission-queue
// delivery tracking. It satisfies the editor's and the queue's metrics
// recorder interfaces.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	EditorState  *prometheus.GaugeVec
	RingVertices prometheus.Gauge

	QueueDepth        prometheus.Gauge
	DeliveryAttempts  *prometheus.CounterVec
	DeliveryDurations prometheus.Histogram
}

// NewCollector registers the fence metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fence_http_requests_total",
		Help: "Total handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "fence_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fence_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "fence_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	editorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fence_editor_state",
		Help: "Current editor lifecycle state (1 for the active state, 0 otherwise).",
	}, []string{"state"})
	editorState, err = registerGaugeVec(reg, editorState, "fence_editor_state")
	if err != nil {
		return nil, err
	}

	ringVertices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fence_editor_ring_vertices",
		Help: "Vertex count of the ring currently owned by the editor.",
	}), "fence_editor_ring_vertices")
	if err != nil {
		return nil, err
	}

	queueDepth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fence_submission_queue_depth",
		Help: "Number of payloads pending delivery in the submission queue.",
	}), "fence_submission_queue_depth")
	if err != nil {
		return nil, err
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fence_delivery_attempts_total",
		Help: "Delivery attempts against the remote endpoint, labeled by outcome.",
	}, []string{"outcome"})
	attempts, err = registerCounterVec(reg, attempts, "fence_delivery_attempts_total")
	if err != nil {
		return nil, err
	}

	deliveryDurations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fence_delivery_duration_seconds",
		Help:    "Wall time of individual delivery attempts in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	if err := reg.Register(deliveryDurations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				deliveryDurations = existing
			} else {
				return nil, fmt.Errorf("collector fence_delivery_duration_seconds already registered with incompatible type")
			}
		} else {
			return nil, err
		}
	}

	return &Collector{
		gatherer:          gatherer,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
		EditorState:       editorState,
		RingVertices:      ringVertices,
		QueueDepth:        queueDepth,
		DeliveryAttempts:  attempts,
		DeliveryDurations: deliveryDurations,
	}, nil
}

// Middleware records request counts and durations for an HTTP route.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetEditorState satisfies the editor's MetricsRecorder interface: the
// active state reads 1, all others 0.
func (c *Collector) SetEditorState(state string) {
	if c == nil || c.EditorState == nil {
		return
	}
	for _, s := range editorStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.EditorState.WithLabelValues(s).Set(v)
	}
}

// SetRingVertices records the editor's current ring length.
func (c *Collector) SetRingVertices(n int) {
	if c == nil || c.RingVertices == nil {
		return
	}
	c.RingVertices.Set(float64(n))
}

// SetQueueDepth records the number of pending queue items.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(n))
}

// ObserveDelivery records one delivery attempt and its duration.
func (c *Collector) ObserveDelivery(outcome string, seconds float64) {
	if c == nil {
		return
	}
	if c.DeliveryAttempts != nil {
		c.DeliveryAttempts.WithLabelValues(outcome).Inc()
	}
	if c.DeliveryDurations != nil {
		c.DeliveryDurations.Observe(seconds)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
