// Package checkpoint derives rest locations along a walking route.
package checkpoint

import (
	"fmt"
	"log"
	"math"

	"focus-walker/internal/geometry"
	"focus-walker/internal/models"
)

// MaxCheckpoints caps derivation for pathological spacing values
const MaxCheckpoints = 1000

// Spacing returns the along-route distance walked during one rest interval
func Spacing(restIntervalMinutes, speedMetersPerSecond float64) float64 {
	return speedMetersPerSecond * 60 * restIntervalMinutes
}

// ID returns the checkpoint identifier for the n-th checkpoint (1-based)
func ID(n int) string {
	return fmt.Sprintf("cp-%d", n)
}

// Derive places a checkpoint every rest interval along the route, strictly
// before the route's end. It returns nil when spacing is not positive.
func Derive(route *models.Route, restIntervalMinutes, speedMetersPerSecond float64) []models.Checkpoint {
	if route == nil || route.TotalDistanceMeters <= 0 {
		return nil
	}

	spacing := Spacing(restIntervalMinutes, speedMetersPerSecond)
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return nil
	}

	var checkpoints []models.Checkpoint
	n := 0
	for d := spacing; d < route.TotalDistanceMeters; d += spacing {
		n++
		if n > MaxCheckpoints {
			log.Printf("[ENGINE] Checkpoint cap reached: spacing=%.2f total=%.0f", spacing, route.TotalDistanceMeters)
			break
		}

		pos, err := geometry.PointAlong(route.CalcLine, d)
		if err != nil {
			log.Printf("[ERROR] Skipping checkpoint: n=%d mark=%.0f err=%v", n, d, err)
			continue
		}

		checkpoints = append(checkpoints, models.Checkpoint{
			ID:                 ID(n),
			Position:           pos,
			DistanceMarkMeters: d,
		})
	}

	return checkpoints
}
