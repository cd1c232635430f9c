package query

import (
	"context"
	"fmt"
	"time"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/model"
)

// GridSummary aggregates shadow status over a square grid of sample points.
type GridSummary struct {
	Center         model.GeoPoint
	SpanMeters     float64
	Resolution     int
	Timestamp      time.Time
	Points         int
	Shadowed       int
	Sunlit         int
	ShadowFraction float64
	Night          bool
}

const maxGridResolution = 200

// EvaluateGrid samples a (resolution x resolution) grid spanning spanMeters
// on each side of center and reports how much of it lies in shadow. The whole
// grid is evaluated as one unit of work on the worker, so every sample sees
// the same scene generation.
func (c *Coordinator) EvaluateGrid(ctx context.Context, center model.GeoPoint, spanMeters float64, resolution int, at time.Time) (GridSummary, error) {
	if err := core.ValidateGeoPoint(center); err != nil {
		return GridSummary{}, err
	}
	if spanMeters <= 0 {
		return GridSummary{}, fmt.Errorf("grid span must be positive, got %v", spanMeters)
	}
	if resolution < 2 || resolution > maxGridResolution {
		return GridSummary{}, fmt.Errorf("grid resolution must be in [2, %d], got %d", maxGridResolution, resolution)
	}
	if at.IsZero() {
		at = c.clk.Now()
	}

	summary := GridSummary{
		Center:     center,
		SpanMeters: spanMeters,
		Resolution: resolution,
		Timestamp:  at.UTC(),
	}

	err := c.Apply(ctx, func(ctx context.Context) error {
		sun, err := core.SunPosition(center, at)
		if err != nil {
			return err
		}
		if sun.ElevationDeg <= 0 {
			summary.Night = true
			return nil
		}

		frame := c.scene.Frame()
		centerLocal, err := frame.ToLocal(center)
		if err != nil {
			// Fail open like single queries do: an unreferenced scene
			// has no known occluders.
			summary.Points = resolution * resolution
			summary.Sunlit = summary.Points
			return nil
		}

		direction := core.VecFromLocal(sun.DirectionLocal)
		empty := c.scene.Registry().IsEmpty()

		step := spanMeters / float64(resolution-1)
		half := spanMeters / 2
		for i := 0; i < resolution; i++ {
			for j := 0; j < resolution; j++ {
				summary.Points++
				if empty {
					summary.Sunlit++
					continue
				}
				origin := core.Vec3{
					X: centerLocal.X - half + float64(i)*step,
					Y: centerLocal.Y + c.eyeHeight,
					Z: centerLocal.Z - half + float64(j)*step,
				}
				if _, blocked := c.engine.Test(origin, direction); blocked {
					summary.Shadowed++
				} else {
					summary.Sunlit++
				}
			}
		}
		return nil
	})
	if err != nil {
		return GridSummary{}, err
	}

	if summary.Points > 0 {
		summary.ShadowFraction = float64(summary.Shadowed) / float64(summary.Points)
	}
	return summary, nil
}
