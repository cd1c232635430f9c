package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/urbansight/shadow-engine/clock"
	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/internal/scene"
	"github.com/urbansight/shadow-engine/model"
)

var (
	// ErrQueueFull indicates the bounded submission queue rejected a
	// request; callers should retry later or shed load.
	ErrQueueFull = errors.New("query queue full")
	// ErrUnknownRequest indicates the request id was never issued by this
	// coordinator.
	ErrUnknownRequest = errors.New("unknown request id")
	// ErrRequestRetired indicates the result was already retrieved once;
	// results are handed out exactly once.
	ErrRequestRetired = errors.New("request already retired")
	// ErrStopped indicates the coordinator is no longer accepting work.
	ErrStopped = errors.New("coordinator stopped")
)

// RequestState tracks a submitted request through its lifecycle.
type RequestState int

const (
	StateQueued RequestState = iota
	StateInProgress
	StateCompleted
	StateRetired
)

func (s RequestState) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateRetired:
		return "retired"
	default:
		return "queued"
	}
}

const (
	// DefaultEyeHeightMeters raises the ray origin to a pedestrian's eye
	// level so ground-level queries behave like a person standing there.
	DefaultEyeHeightMeters = 1.5

	// DefaultQueueDepth bounds the submission queue.
	DefaultQueueDepth = 256

	// retainRetired bounds how many retired request ids are remembered so
	// late retrieval attempts get ErrRequestRetired rather than
	// ErrUnknownRequest. Older ids are forgotten in FIFO order.
	retainRetired = 1024
)

// command is one unit of work for the coordinator worker: either a shadow
// query or a scene mutation. Mutations ride the same queue as queries, so a
// mesh replacement interleaves cleanly between evaluations and no query ever
// observes a half-swapped scene.
type command struct {
	query    *model.QueryRequest
	mutation func(context.Context) error
	done     chan error
}

// MetricsRecorder receives query pipeline measurements.
type MetricsRecorder interface {
	ObserveQuery(status string, d time.Duration)
	SetQueueDepth(depth int)
}

// Coordinator owns all scene access. Queries and mutations are submitted from
// any goroutine but evaluated strictly one at a time on the worker, so the
// single-writer discipline on the scene is structural rather than lock-based.
type Coordinator struct {
	scene  *scene.SceneState
	engine *core.OcclusionEngine
	clk    clock.Clock

	log     logging.Logger
	metrics MetricsRecorder

	eyeHeight float64

	queue chan command

	mu           sync.Mutex
	pending      map[model.RequestID]*pendingRequest
	retiredOrder []model.RequestID
	stopped      bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type pendingRequest struct {
	state  RequestState
	result chan model.QueryResult
}

// Option customises Coordinator construction.
type Option func(*Coordinator)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.clk = c
		}
	}
}

// WithQueueDepth bounds the submission queue.
func WithQueueDepth(depth int) Option {
	return func(co *Coordinator) {
		if depth > 0 {
			co.queue = make(chan command, depth)
		}
	}
}

// WithEyeHeight overrides the query-point eye height in metres.
func WithEyeHeight(h float64) Option {
	return func(co *Coordinator) {
		if h >= 0 {
			co.eyeHeight = h
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// NewCoordinator builds a coordinator over the given scene. Call Start to
// launch the worker.
func NewCoordinator(sceneState *scene.SceneState, log logging.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = logging.Noop()
	}
	c := &Coordinator{
		scene:     sceneState,
		engine:    core.NewOcclusionEngine(sceneState.Registry()),
		clk:       clock.System(),
		log:       log,
		eyeHeight: DefaultEyeHeightMeters,
		queue:     make(chan command, DefaultQueueDepth),
		pending:   make(map[model.RequestID]*pendingRequest),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Start launches the worker goroutine.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop drains nothing: queued work is abandoned, and callers blocked in Await
// are released by their contexts. Safe to call once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
}

// Submit validates and enqueues a shadow query, returning its correlation id
// immediately. A zero timestamp is stamped from the coordinator's clock.
// Validation failures surface here, before the request ever reaches the
// queue.
func (c *Coordinator) Submit(ctx context.Context, point model.GeoPoint, at time.Time) (model.RequestID, error) {
	if err := core.ValidateGeoPoint(point); err != nil {
		return "", err
	}
	if at.IsZero() {
		at = c.clk.Now()
	}

	req := model.QueryRequest{
		ID:        model.RequestID(uuid.NewString()),
		Point:     point,
		Timestamp: at.UTC(),
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return "", ErrStopped
	}
	c.pending[req.ID] = &pendingRequest{
		state:  StateQueued,
		result: make(chan model.QueryResult, 1),
	}
	c.mu.Unlock()

	select {
	case c.queue <- command{query: &req}:
	default:
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return "", fmt.Errorf("%w: depth %d", ErrQueueFull, cap(c.queue))
	}

	c.recordQueueDepth()
	c.log.Debug(ctx, "query submitted",
		logging.String("request_id", string(req.ID)),
		logging.Float64("lat", point.Latitude),
		logging.Float64("lon", point.Longitude),
	)
	return req.ID, nil
}

// Await blocks until the request completes or ctx expires, then retires it.
// Each result is retrievable exactly once; a second retrieval attempt fails
// with ErrRequestRetired.
func (c *Coordinator) Await(ctx context.Context, id model.RequestID) (model.QueryResult, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return model.QueryResult{}, ErrUnknownRequest
	}
	if p.state == StateRetired {
		c.mu.Unlock()
		return model.QueryResult{}, ErrRequestRetired
	}
	c.mu.Unlock()

	select {
	case res, open := <-p.result:
		if !open {
			// Another caller raced us to the single result.
			return model.QueryResult{}, ErrRequestRetired
		}
		c.retire(id, p)
		return res, nil
	case <-ctx.Done():
		return model.QueryResult{}, ctx.Err()
	case <-c.stop:
		return model.QueryResult{}, ErrStopped
	}
}

// TryResult retires and returns the result if the request has completed,
// without blocking. The boolean reports completion.
func (c *Coordinator) TryResult(id model.RequestID) (model.QueryResult, bool, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return model.QueryResult{}, false, ErrUnknownRequest
	}
	if p.state == StateRetired {
		c.mu.Unlock()
		return model.QueryResult{}, false, ErrRequestRetired
	}
	c.mu.Unlock()

	select {
	case res, open := <-p.result:
		if !open {
			return model.QueryResult{}, false, ErrRequestRetired
		}
		c.retire(id, p)
		return res, true, nil
	default:
		return model.QueryResult{}, false, nil
	}
}

// State reports the lifecycle state of a request.
func (c *Coordinator) State(id model.RequestID) (RequestState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return StateRetired, false
	}
	return p.state, true
}

// Apply runs fn on the worker goroutine, serialized against all queries and
// other mutations, and returns its error. Use it for every scene change.
func (c *Coordinator) Apply(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("nil mutation")
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.mu.Unlock()

	done := make(chan error, 1)
	select {
	case c.queue <- command{mutation: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrStopped
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-c.stop:
			return
		case cmd := <-c.queue:
			if cmd.mutation != nil {
				cmd.done <- cmd.mutation(ctx)
				continue
			}
			c.process(ctx, *cmd.query)
		}
	}
}

func (c *Coordinator) process(ctx context.Context, req model.QueryRequest) {
	c.setState(req.ID, StateInProgress)

	start := time.Now()
	result := c.evaluate(ctx, req)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.ObserveQuery(result.Occlusion.Status.String(), elapsed)
	}

	c.mu.Lock()
	p, ok := c.pending[req.ID]
	if ok {
		p.state = StateCompleted
		p.result <- result
	}
	c.mu.Unlock()

	c.recordQueueDepth()
	c.log.Debug(ctx, "query completed",
		logging.String("request_id", string(req.ID)),
		logging.String("status", result.Occlusion.Status.String()),
		logging.Duration("elapsed", elapsed),
	)
}

// evaluate runs the full pipeline for one query on the worker. The order is
// fixed: night check, then fail-open checks, then the occlusion test.
func (c *Coordinator) evaluate(ctx context.Context, req model.QueryRequest) model.QueryResult {
	result := model.QueryResult{ID: req.ID, Request: req}

	sun, err := core.SunPosition(req.Point, req.Timestamp)
	if err != nil {
		// Points are validated at Submit; reaching this means a bug.
		c.log.Error(ctx, "sun position failed for validated point", logging.Err(err))
		result.Occlusion = model.OcclusionResult{Status: model.StatusSunlight}
		return result
	}
	result.Sun = sun

	if sun.ElevationDeg <= 0 {
		result.Occlusion = model.OcclusionResult{Status: model.StatusNight}
		return result
	}

	// No scene data or no reference point: fail open. An empty scene means
	// "no known occluders", not an error.
	if c.scene.Registry().IsEmpty() {
		result.Occlusion = model.OcclusionResult{Status: model.StatusSunlight}
		return result
	}
	local, err := c.scene.Frame().ToLocal(req.Point)
	if err != nil {
		c.log.Warn(ctx, "query with meshes but no reference; failing open", logging.Err(err))
		result.Occlusion = model.OcclusionResult{Status: model.StatusSunlight}
		return result
	}
	if !c.scene.Frame().WithinAccurateRange(req.Point) {
		c.log.Warn(ctx, "query outside accurate frame range",
			logging.String("request_id", string(req.ID)),
			logging.Float64("lat", req.Point.Latitude),
			logging.Float64("lon", req.Point.Longitude),
		)
	}

	origin := core.VecFromLocal(local)
	origin.Y += c.eyeHeight
	direction := core.VecFromLocal(sun.DirectionLocal)

	if hit, blocked := c.engine.Test(origin, direction); blocked {
		result.Occlusion = model.OcclusionResult{
			Status:         model.StatusShadow,
			BlockerID:      hit.Owner,
			DistanceMeters: hit.Distance,
		}
		return result
	}
	result.Occlusion = model.OcclusionResult{Status: model.StatusSunlight}
	return result
}

func (c *Coordinator) setState(id model.RequestID, state RequestState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok {
		p.state = state
	}
}

func (c *Coordinator) retire(id model.RequestID, p *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.state == StateRetired {
		return
	}
	p.state = StateRetired
	close(p.result)

	c.retiredOrder = append(c.retiredOrder, id)
	for len(c.retiredOrder) > retainRetired {
		delete(c.pending, c.retiredOrder[0])
		c.retiredOrder = c.retiredOrder[1:]
	}
}

func (c *Coordinator) recordQueueDepth() {
	if c.metrics != nil {
		c.metrics.SetQueueDepth(len(c.queue))
	}
}
