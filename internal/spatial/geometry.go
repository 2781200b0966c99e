package spatial

import (
	"math"

	"github.com/jengzang/trails-backend-go/internal/models"
)

// Bounds is a latitude/longitude bounding box
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// BoundingBox calculates the bounding box of a set of points
func BoundingBox(points []models.TrackPoint) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{
		MinLat: points[0].Latitude, MaxLat: points[0].Latitude,
		MinLon: points[0].Longitude, MaxLon: points[0].Longitude,
	}

	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}

	return b
}

// SimplifyPath simplifies a path using the Ramer-Douglas-Peucker algorithm
// epsilon: maximum distance (meters) from the simplified path
func SimplifyPath(points []models.TrackPoint, epsilon float64) []models.TrackPoint {
	if len(points) < 3 || epsilon <= 0 {
		return points
	}

	// Find the point with maximum distance from the line segment
	maxDist := 0.0
	maxIndex := 0

	for i := 1; i < len(points)-1; i++ {
		dist := perpendicularDistance(points[i], points[0], points[len(points)-1])
		if dist > maxDist {
			maxDist = dist
			maxIndex = i
		}
	}

	if maxDist > epsilon {
		left := SimplifyPath(points[:maxIndex+1], epsilon)
		right := SimplifyPath(points[maxIndex:], epsilon)

		// Combine results (remove duplicate middle point)
		result := make([]models.TrackPoint, len(left)+len(right)-1)
		copy(result, left)
		copy(result[len(left):], right[1:])
		return result
	}

	return []models.TrackPoint{points[0], points[len(points)-1]}
}

// perpendicularDistance calculates the perpendicular distance from a point to a line segment
func perpendicularDistance(point, lineStart, lineEnd models.TrackPoint) float64 {
	x0, y0 := point.Latitude, point.Longitude
	x1, y1 := lineStart.Latitude, lineStart.Longitude
	x2, y2 := lineEnd.Latitude, lineEnd.Longitude

	num := math.Abs((y2-y1)*x0 - (x2-x1)*y0 + x2*y1 - y2*x1)
	den := math.Sqrt((y2-y1)*(y2-y1) + (x2-x1)*(x2-x1))

	if den == 0 {
		return Distance(point, lineStart)
	}

	// Convert to meters (approximate)
	metersPerDegree := 111320.0
	return (num / den) * metersPerDegree
}
