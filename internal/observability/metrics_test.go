package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveQueryRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.ObserveQuery("shadow", 3*time.Millisecond)
	collector.ObserveQuery("shadow", 5*time.Millisecond)
	collector.ObserveQuery("night", time.Millisecond)

	if got := testutil.ToFloat64(collector.QueryResults.WithLabelValues("shadow")); got != 2 {
		t.Fatalf("shadow_queries_total{status=shadow} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.QueryResults.WithLabelValues("night")); got != 1 {
		t.Fatalf("shadow_queries_total{status=night} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "shadow_query_duration_seconds", nil); count != 3 {
		t.Fatalf("shadow_query_duration_seconds sample_count = %d, want 3", count)
	}
}

func TestSetSceneCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.SetSceneCounts(12, 4800, 200)

	if got := testutil.ToFloat64(collector.SceneMeshes.WithLabelValues("building")); got != 12 {
		t.Errorf("scene_meshes{kind=building} = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.SceneMeshes.WithLabelValues("terrain")); got != 1 {
		t.Errorf("scene_meshes{kind=terrain} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SceneTriangles.WithLabelValues("building")); got != 4800 {
		t.Errorf("scene_triangles{kind=building} = %v, want 4800", got)
	}
	if got := testutil.ToFloat64(collector.SceneTriangles.WithLabelValues("terrain")); got != 200 {
		t.Errorf("scene_triangles{kind=terrain} = %v, want 200", got)
	}

	// Clearing the scene zeroes the gauges.
	collector.SetSceneCounts(0, 0, 0)
	if got := testutil.ToFloat64(collector.SceneMeshes.WithLabelValues("terrain")); got != 0 {
		t.Errorf("scene_meshes{kind=terrain} after clear = %v, want 0", got)
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	r := chi.NewRouter()
	r.Use(collector.Middleware)
	r.Post("/api/v1/shadow/query", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shadow/query", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/shadow/query", "POST", "202")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "http_request_duration_seconds", map[string]string{
		"route":  "/api/v1/shadow/query",
		"method": "POST",
	}); count != 1 {
		t.Fatalf("http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.SetSceneCounts(2, 100, 50)
	collector.SetQueueDepth(7)
	collector.ObserveQuery("sunlight", time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, want := range []string{
		"scene_triangles",
		"shadow_query_queue_depth 7",
		`shadow_queries_total{status="sunlight"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewCollectorIdempotentRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	// Both collectors must share the already-registered metric instances.
	first.QueryResults.WithLabelValues("shadow").Inc()
	second.QueryResults.WithLabelValues("shadow").Inc()
	if got := testutil.ToFloat64(first.QueryResults.WithLabelValues("shadow")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !matchLabels(m, labels) {
				continue
			}
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}
