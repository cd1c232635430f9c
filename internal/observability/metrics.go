package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics for the query pipeline, the scene
// state, and the HTTP surface.
type Collector struct {
	gatherer prometheus.Gatherer

	QueryResults   *prometheus.CounterVec
	QueryDurations prometheus.Histogram
	QueueDepth     prometheus.Gauge

	SceneMeshes    *prometheus.GaugeVec
	SceneTriangles *prometheus.GaugeVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers the engine's Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registration is idempotent: an AlreadyRegistered collector of the same type
// is reused instead of failing.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queryResults, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_queries_total",
		Help: "Total number of completed shadow queries, labeled by resulting status.",
	}, []string{"status"}), "shadow_queries_total")
	if err != nil {
		return nil, err
	}

	queryDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shadow_query_duration_seconds",
		Help:    "Wall time spent evaluating one shadow query on the worker.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "shadow_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	queueDepth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shadow_query_queue_depth",
		Help: "Number of submitted requests waiting for or undergoing evaluation.",
	}), "shadow_query_queue_depth")
	if err != nil {
		return nil, err
	}

	sceneMeshes, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_meshes",
		Help: "Current number of loaded meshes, labeled by kind.",
	}, []string{"kind"}), "scene_meshes")
	if err != nil {
		return nil, err
	}

	sceneTriangles, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_triangles",
		Help: "Current number of loaded triangles, labeled by kind.",
	}, []string{"kind"}), "scene_triangles")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		QueryResults:   queryResults,
		QueryDurations: queryDurations,
		QueueDepth:     queueDepth,
		SceneMeshes:    sceneMeshes,
		SceneTriangles: sceneTriangles,
		HTTPRequests:   httpRequests,
		HTTPDurations:  httpDurations,
	}, nil
}

// ObserveQuery records one completed query with its status label and worker
// evaluation time.
func (c *Collector) ObserveQuery(status string, d time.Duration) {
	if c == nil {
		return
	}
	if c.QueryResults != nil {
		c.QueryResults.WithLabelValues(status).Inc()
	}
	if c.QueryDurations != nil {
		c.QueryDurations.Observe(d.Seconds())
	}
}

// SetQueueDepth updates the pending-request gauge.
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(depth))
}

// SetSceneCounts satisfies the scene.MetricsRecorder interface so the scene
// state can drive gauge values directly from its mutators.
func (c *Collector) SetSceneCounts(buildingMeshes, buildingTriangles, terrainTriangles int) {
	if c == nil {
		return
	}
	if c.SceneMeshes != nil {
		c.SceneMeshes.WithLabelValues("building").Set(float64(buildingMeshes))
		terrainMeshes := 0.0
		if terrainTriangles > 0 {
			terrainMeshes = 1
		}
		c.SceneMeshes.WithLabelValues("terrain").Set(terrainMeshes)
	}
	if c.SceneTriangles != nil {
		c.SceneTriangles.WithLabelValues("building").Set(float64(buildingTriangles))
		c.SceneTriangles.WithLabelValues("terrain").Set(float64(terrainTriangles))
	}
}

// Middleware records request counts and durations for HTTP handlers, keyed by
// the chi route pattern rather than the raw path.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, fmt.Sprintf("%d", rec.code)).Inc()
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

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
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
