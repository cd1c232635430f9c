package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/internal/scene"
	"github.com/urbansight/shadow-engine/model"
)

func TestEvaluateGridMixedShadow(t *testing.T) {
	co, _ := newTestCoordinator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sum, err := co.EvaluateGrid(ctx, nyc, 60, 10, solsticeNoon)
	if err != nil {
		t.Fatalf("EvaluateGrid returned error: %v", err)
	}
	if sum.Night {
		t.Fatalf("daytime grid reported night")
	}
	if sum.Points != 100 {
		t.Errorf("points = %d, want 100", sum.Points)
	}
	if sum.Shadowed+sum.Sunlit != sum.Points {
		t.Errorf("shadowed %d + sunlit %d != points %d", sum.Shadowed, sum.Sunlit, sum.Points)
	}
	// The wall is 400 m wide and 400 m tall, 45 m south: every point in a
	// 60 m grid has its view of the southern sun blocked.
	if sum.Shadowed != sum.Points {
		t.Errorf("shadowed = %d, want all %d points", sum.Shadowed, sum.Points)
	}
	if sum.ShadowFraction != 1 {
		t.Errorf("shadow fraction = %f, want 1", sum.ShadowFraction)
	}
}

func TestEvaluateGridNight(t *testing.T) {
	co, _ := newTestCoordinator(t)

	sum, err := co.EvaluateGrid(context.Background(), nyc, 100, 5, solsticeMidnight)
	if err != nil {
		t.Fatalf("EvaluateGrid returned error: %v", err)
	}
	if !sum.Night {
		t.Errorf("midnight grid not reported as night")
	}
	if sum.Points != 0 || sum.ShadowFraction != 0 {
		t.Errorf("night grid counted points: %+v", sum)
	}
}

func TestEvaluateGridEmptySceneAllSunlit(t *testing.T) {
	state := scene.NewSceneState(logging.Noop())
	if err := state.SetManualReference(context.Background(), nyc); err != nil {
		t.Fatalf("SetManualReference returned error: %v", err)
	}
	co := NewCoordinator(state, logging.Noop())
	co.Start()
	t.Cleanup(co.Stop)

	sum, err := co.EvaluateGrid(context.Background(), nyc, 50, 5, solsticeNoon)
	if err != nil {
		t.Fatalf("EvaluateGrid returned error: %v", err)
	}
	if sum.Sunlit != sum.Points || sum.ShadowFraction != 0 {
		t.Errorf("empty scene grid = %+v, want all sunlit", sum)
	}
}

func TestEvaluateGridValidation(t *testing.T) {
	co, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := co.EvaluateGrid(ctx, model.GeoPoint{Latitude: 100}, 100, 10, solsticeNoon); !errors.Is(err, core.ErrInvalidLatitude) {
		t.Errorf("invalid center error = %v, want ErrInvalidLatitude", err)
	}
	if _, err := co.EvaluateGrid(ctx, nyc, 0, 10, solsticeNoon); err == nil {
		t.Errorf("zero span accepted, want error")
	}
	if _, err := co.EvaluateGrid(ctx, nyc, 100, 1, solsticeNoon); err == nil {
		t.Errorf("resolution 1 accepted, want error")
	}
	if _, err := co.EvaluateGrid(ctx, nyc, 100, maxGridResolution+1, solsticeNoon); err == nil {
		t.Errorf("oversized resolution accepted, want error")
	}
}
