package spatial

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/trails-backend-go/internal/models"
)

func point(lat, lon float64, alt *float64) models.TrackPoint {
	return models.TrackPoint{Latitude: lat, Longitude: lon, Altitude: alt, Timestamp: time.Unix(1700000000, 0)}
}

func TestHaversineOsloBergen(t *testing.T) {
	d := HaversineDistance(59.9139, 10.7522, 60.3913, 5.3221)
	assert.Greater(t, d, 250000.0)
	assert.Less(t, d, 350000.0)
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	a := point(59.9139, 10.7522, nil)
	b := point(60.3913, 5.3221, nil)

	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
	assert.Zero(t, Distance(a, a))
}

func TestRunningDistanceMatchesIncremental(t *testing.T) {
	points := []models.TrackPoint{
		point(59.9139, 10.7522, nil),
		point(59.9200, 10.7600, nil),
		point(59.9300, 10.7700, nil),
		point(59.9310, 10.7900, nil),
		point(59.9500, 10.8000, nil),
	}

	var incremental float64
	for i := 1; i < len(points); i++ {
		incremental += Distance(points[i-1], points[i])
	}

	total := RunningDistance(points)
	require.Greater(t, total, 0.0)
	assert.LessOrEqual(t, math.Abs(total-incremental)/total, 1e-6)
	assert.Zero(t, RunningDistance(points[:1]))
	assert.Zero(t, RunningDistance(nil))
}

func TestElevationStats(t *testing.T) {
	tests := []struct {
		name     string
		alts     []*float64
		wantGain float64
		wantLoss float64
		wantMax  *float64
		wantMin  *float64
	}{
		{
			name:     "climb and descent",
			alts:     []*float64{models.Float(100), models.Float(150), models.Float(120), models.Float(180)},
			wantGain: 110,
			wantLoss: 30,
			wantMax:  models.Float(180),
			wantMin:  models.Float(100),
		},
		{
			name:     "gaps are skipped",
			alts:     []*float64{models.Float(100), nil, nil, models.Float(90), nil, models.Float(95)},
			wantGain: 5,
			wantLoss: 10,
			wantMax:  models.Float(100),
			wantMin:  models.Float(90),
		},
		{
			name: "no altitude at all",
			alts: []*float64{nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var points []models.TrackPoint
			for i, alt := range tt.alts {
				points = append(points, point(60+float64(i)*0.001, 10, alt))
			}

			elev := ElevationStats(points)
			assert.InDelta(t, tt.wantGain, elev.Gain, 1e-9)
			assert.InDelta(t, tt.wantLoss, elev.Loss, 1e-9)
			assert.Equal(t, tt.wantMax, elev.Max)
			assert.Equal(t, tt.wantMin, elev.Min)
		})
	}
}

func TestElevationNetMatchesEndpoints(t *testing.T) {
	alts := []float64{312.5, 318.1, 305.0, 305.0, 330.7, 290.2, 301.9}
	var points []models.TrackPoint
	for _, a := range alts {
		points = append(points, point(60, 10, models.Float(a)))
	}

	elev := ElevationStats(points)
	assert.InDelta(t, alts[len(alts)-1]-alts[0], elev.Gain-elev.Loss, 1e-9)
}

func TestComputeSpeedStats(t *testing.T) {
	a := point(60, 10, nil)
	a.Speed = models.Float(2.5)
	b := point(60.001, 10, nil)
	b.Speed = models.Float(4)
	c := point(60.002, 10, nil)
	c.Speed = models.Float(3)

	points := []models.TrackPoint{a, b, c}
	stats := ComputeSpeedStats(points, 100)

	assert.InDelta(t, RunningDistance(points)/100, stats.Avg, 1e-9)
	assert.Equal(t, 4.0, stats.Max)
	assert.Equal(t, 3.0, stats.Current)

	zero := ComputeSpeedStats([]models.TrackPoint{point(1, 1, nil)}, 0)
	assert.Zero(t, zero.Avg)
	assert.Zero(t, zero.Max)
	assert.Zero(t, zero.Current)
}

func TestBearingCardinal(t *testing.T) {
	assert.InDelta(t, 0, Bearing(0, 0, 1, 0), 1e-6)
	assert.InDelta(t, 90, Bearing(0, 0, 0, 1), 1e-6)
	assert.InDelta(t, 180, Bearing(1, 0, 0, 0), 1e-6)
	assert.InDelta(t, 270, Bearing(0, 1, 0, 0), 1e-6)
}

func TestBoundingBoxAndSimplify(t *testing.T) {
	points := []models.TrackPoint{
		point(60.0, 10.0, nil),
		point(60.0001, 10.0001, nil),
		point(60.0002, 10.0002, nil),
		point(60.01, 10.05, nil),
	}

	b := BoundingBox(points)
	assert.Equal(t, Bounds{MinLat: 60.0, MinLon: 10.0, MaxLat: 60.01, MaxLon: 10.05}, b)
	assert.Equal(t, Bounds{}, BoundingBox(nil))

	simplified := SimplifyPath(points, 50)
	require.GreaterOrEqual(t, len(simplified), 2)
	assert.Less(t, len(simplified), len(points))
	assert.Equal(t, points[0], simplified[0])
	assert.Equal(t, points[len(points)-1], simplified[len(simplified)-1])

	assert.Len(t, SimplifyPath(points, 0), len(points))
}
