package spatial

import (
	"math"

	"github.com/jengzang/trails-backend-go/internal/models"
)

// SpeedStats summarises speed over a point sequence, all in m/s
type SpeedStats struct {
	Avg     float64 `json:"avg"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// RunningDistance sums the great-circle distance over consecutive points in meters
func RunningDistance(points []models.TrackPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// ElevationStats computes gain, loss, max and min over the points that carry an
// altitude. Points without altitude are skipped, so the pair across a gap is
// formed by the nearest altitude-bearing neighbours.
func ElevationStats(points []models.TrackPoint) models.Elevation {
	var elev models.Elevation
	var prev *float64

	for i := range points {
		alt := points[i].Altitude
		if alt == nil || math.IsNaN(*alt) {
			continue
		}

		if elev.Max == nil || *alt > *elev.Max {
			elev.Max = models.Float(*alt)
		}
		if elev.Min == nil || *alt < *elev.Min {
			elev.Min = models.Float(*alt)
		}

		if prev != nil {
			delta := *alt - *prev
			if delta > 0 {
				elev.Gain += delta
			} else {
				elev.Loss += -delta
			}
		}
		prev = alt
	}

	return elev
}

// ComputeSpeedStats derives speed statistics. The average uses the supplied
// duration in seconds; max and current use the speeds reported by the points.
func ComputeSpeedStats(points []models.TrackPoint, durationSeconds float64) SpeedStats {
	var stats SpeedStats
	if durationSeconds > 0 {
		stats.Avg = RunningDistance(points) / durationSeconds
	}

	for _, p := range points {
		if p.Speed != nil && *p.Speed > stats.Max {
			stats.Max = *p.Speed
		}
	}

	if n := len(points); n > 0 && points[n-1].Speed != nil {
		stats.Current = *points[n-1].Speed
	}
	return stats
}
