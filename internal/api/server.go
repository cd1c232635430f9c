package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/internal/observability"
	"github.com/urbansight/shadow-engine/internal/query"
	"github.com/urbansight/shadow-engine/internal/scene"
	"github.com/urbansight/shadow-engine/model"
)

// DefaultQueryTimeout bounds how long the synchronous query endpoint waits
// for the worker before giving up.
const DefaultQueryTimeout = 10 * time.Second

// Server exposes the engine over HTTP JSON. All scene access goes through
// the coordinator; handlers never touch the registry directly.
type Server struct {
	coordinator *query.Coordinator
	scene       *scene.SceneState
	log         logging.Logger
	metrics     *observability.Collector

	queryTimeout time.Duration
}

// Option customises Server construction.
type Option func(*Server)

// WithMetrics attaches the Prometheus collector whose middleware wraps the
// router.
func WithMetrics(m *observability.Collector) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithQueryTimeout overrides the synchronous query wait bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// NewServer builds the HTTP surface over a running coordinator.
func NewServer(coordinator *query.Coordinator, sceneState *scene.SceneState, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		coordinator:  coordinator,
		scene:        sceneState,
		log:          log,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Router assembles the chi router with CORS, request-ID, and metrics
// middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(s.requestID)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sun/position", s.handleSunPosition)
		r.Post("/shadow/query", s.handleShadowQuery)
		r.Post("/shadow/submit", s.handleShadowSubmit)
		r.Get("/shadow/result/{id}", s.handleShadowResult)
		r.Post("/shadow/grid", s.handleShadowGrid)

		r.Get("/scene", s.handleSceneGet)
		r.Post("/scene/load", s.handleSceneLoad)
		r.Post("/scene/reference", s.handleSceneReference)
		r.Delete("/scene", s.handleSceneClear)
	})

	return r
}

// requestID assigns each request a correlation id, echoing a caller-provided
// X-Request-ID when present.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"service": "shadow-engine",
		"health":  "/health",
		"api":     "/api/v1",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, healthResponse{
		Status: "ok",
		Scene:  sceneSummaryResponse(s.scene.Summarize()),
	})
}

func (s *Server) handleSunPosition(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !s.decode(w, r, &req) {
		return
	}
	at, err := req.parseTimestamp()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	sun, err := core.SunPosition(req.point(), at)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sunResponse{
		AzimuthDeg:   sun.AzimuthDeg,
		ElevationDeg: sun.ElevationDeg,
		Direction:    sun.DirectionLocal,
		Timestamp:    at.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleShadowQuery(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !s.decode(w, r, &req) {
		return
	}
	at, err := req.parseTimestamp()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()
	ctx, span := observability.Tracer().Start(ctx, "shadow.query", trace.WithAttributes(
		attribute.Float64("query.lat", req.Latitude),
		attribute.Float64("query.lon", req.Longitude),
	))
	defer span.End()

	id, err := s.coordinator.Submit(ctx, req.point(), at)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	res, err := s.coordinator.Await(ctx, id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	span.SetAttributes(attribute.String("query.status", res.Occlusion.Status.String()))
	s.writeJSON(w, r, http.StatusOK, s.queryResultResponse(res))
}

func (s *Server) handleShadowSubmit(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !s.decode(w, r, &req) {
		return
	}
	at, err := req.parseTimestamp()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	id, err := s.coordinator.Submit(r.Context(), req.point(), at)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, submitResponse{
		RequestID: string(id),
		State:     query.StateQueued.String(),
	})
}

func (s *Server) handleShadowResult(w http.ResponseWriter, r *http.Request) {
	id := model.RequestID(chi.URLParam(r, "id"))

	res, done, err := s.coordinator.TryResult(id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	if !done {
		state, _ := s.coordinator.State(id)
		s.writeJSON(w, r, http.StatusAccepted, submitResponse{
			RequestID: string(id),
			State:     state.String(),
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.queryResultResponse(res))
}

func (s *Server) handleShadowGrid(w http.ResponseWriter, r *http.Request) {
	var req gridRequest
	if !s.decode(w, r, &req) {
		return
	}
	at, err := req.parseTimestamp()
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, span := observability.Tracer().Start(r.Context(), "shadow.grid", trace.WithAttributes(
		attribute.Float64("grid.span_m", req.SpanMeters),
		attribute.Int("grid.resolution", req.Resolution),
	))
	defer span.End()

	sum, err := s.coordinator.EvaluateGrid(ctx, req.point(), req.SpanMeters, req.Resolution, at)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	status := "ok"
	if sum.Night {
		status = model.StatusNight.String()
	}
	s.writeJSON(w, r, http.StatusOK, gridResponse{
		Status:         status,
		Points:         sum.Points,
		Shadowed:       sum.Shadowed,
		Sunlit:         sum.Sunlit,
		ShadowFraction: sum.ShadowFraction,
		Timestamp:      sum.Timestamp.Format(time.RFC3339),
	})
}

func (s *Server) handleSceneGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, sceneSummaryResponse(s.scene.Summarize()))
}

func (s *Server) handleSceneLoad(w http.ResponseWriter, r *http.Request) {
	snap, err := core.DecodeSceneSnapshot(r.Body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	err = s.coordinator.Apply(r.Context(), func(ctx context.Context) error {
		return s.scene.LoadSnapshot(ctx, snap)
	})
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sceneSummaryResponse(s.scene.Summarize()))
}

func (s *Server) handleSceneReference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if !s.decode(w, r, &req) {
		return
	}

	point := model.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude}
	err := s.coordinator.Apply(r.Context(), func(ctx context.Context) error {
		return s.scene.SetManualReference(ctx, point)
	})
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sceneSummaryResponse(s.scene.Summarize()))
}

func (s *Server) handleSceneClear(w http.ResponseWriter, r *http.Request) {
	err := s.coordinator.Apply(r.Context(), func(ctx context.Context) error {
		s.scene.ClearScene(ctx)
		return nil
	})
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) queryResultResponse(res model.QueryResult) queryResponse {
	return queryResponse{
		RequestID:       string(res.ID),
		Status:          res.Occlusion.Status.String(),
		SunAzimuth:      res.Sun.AzimuthDeg,
		SunElevation:    res.Sun.ElevationDeg,
		BlockerID:       string(res.Occlusion.BlockerID),
		DistanceMeters:  res.Occlusion.DistanceMeters,
		Timestamp:       res.Request.Timestamp.Format(time.RFC3339),
		InAccurateRange: s.scene.Frame().WithinAccurateRange(res.Request.Point),
	}
}

func sceneSummaryResponse(sum scene.Summary) sceneResponse {
	resp := sceneResponse{
		ReferenceSet:      sum.Reference.IsSet(),
		ReferenceSource:   sum.Reference.Source.String(),
		BuildingMeshes:    sum.BuildingMeshes,
		BuildingTriangles: sum.BuildingTriangles,
		TerrainTriangles:  sum.TerrainTriangles,
	}
	if sum.Reference.IsSet() {
		resp.Reference = &latLon{
			Latitude:  sum.Reference.Point.Latitude,
			Longitude: sum.Reference.Point.Longitude,
		}
	}
	return resp
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidLatitude),
		errors.Is(err, core.ErrInvalidLongitude),
		errors.Is(err, core.ErrNoReference):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, query.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, query.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, query.ErrRequestRetired):
		return http.StatusGone
	case errors.Is(err, scene.ErrSceneLoaded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(r.Context(), "encode response failed", logging.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	ctx := r.Context()
	s.log.Warn(ctx, "request failed",
		logging.Int("status", status),
		logging.Err(err),
	)
	s.writeJSON(w, r, status, errorResponse{
		Error:     err.Error(),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}
