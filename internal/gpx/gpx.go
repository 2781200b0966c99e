// Package gpx converts trails to and from GPX 1.1 documents.
package gpx

import (
	"fmt"
	"io"
	"time"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/spatial"
)

const creator = "trails-backend-go"

// Export renders the trail as a single-track GPX document. A positive
// epsilon simplifies the path first (meters).
func Export(trail *models.Trail, epsilon float64) ([]byte, error) {
	points := trail.Points
	if epsilon > 0 {
		points = spatial.SimplifyPath(points, epsilon)
	}

	segment := gpxgo.GPXTrackSegment{Points: make([]gpxgo.GPXPoint, 0, len(points))}
	for _, p := range points {
		pt := gpxgo.GPXPoint{
			Point: gpxgo.Point{
				Latitude:  p.Latitude,
				Longitude: p.Longitude,
			},
			Timestamp: p.Timestamp.UTC(),
		}
		if p.Altitude != nil {
			pt.Elevation = *gpxgo.NewNullableFloat64(*p.Altitude)
		}
		segment.Points = append(segment.Points, pt)
	}

	doc := &gpxgo.GPX{
		Creator:     creator,
		Name:        trail.Name,
		Description: trail.Description,
		Tracks: []gpxgo.GPXTrack{{
			Name:        trail.Name,
			Description: trail.Description,
			Segments:    []gpxgo.GPXTrackSegment{segment},
		}},
	}

	data, err := doc.ToXml(gpxgo.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gpx: %w", err)
	}
	return data, nil
}

// Import reads a GPX document into an unsaved trail. Every track segment is
// concatenated in document order and the metadata is derived from the points.
func Import(r io.Reader) (*models.Trail, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gpx: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes is Import over an in-memory document
func ParseBytes(data []byte) (*models.Trail, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gpx: %w", err)
	}

	trail := &models.Trail{
		Name:        doc.Name,
		Description: doc.Description,
		SyncStatus:  models.SyncStatusPending,
	}

	for _, track := range doc.Tracks {
		if trail.Name == "" {
			trail.Name = track.Name
		}
		if trail.Description == "" {
			trail.Description = track.Description
		}
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				tp := models.TrackPoint{
					Latitude:  p.Latitude,
					Longitude: p.Longitude,
					Timestamp: p.Timestamp.UTC(),
				}
				if p.Elevation.NotNull() {
					tp.Altitude = models.Float(p.Elevation.Value())
				}
				trail.Points = append(trail.Points, tp)
			}
		}
	}

	if len(trail.Points) == 0 {
		return nil, fmt.Errorf("gpx contains no track points")
	}
	for i := range trail.Points {
		if err := trail.Points[i].Validate(); err != nil {
			return nil, fmt.Errorf("gpx point %d: %w", i, err)
		}
		if i > 0 && trail.Points[i].Timestamp.Before(trail.Points[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: gpx point %d is older than its predecessor", models.ErrMalformedPoint, i)
		}
	}

	fillMetadata(trail)
	if trail.Name == "" {
		trail.Name = "Imported " + trail.StartTime.Format("2006-01-02 15:04")
	}
	return trail, nil
}

func fillMetadata(trail *models.Trail) {
	first := trail.Points[0].Timestamp
	last := trail.Points[len(trail.Points)-1].Timestamp
	duration := last.Sub(first).Seconds()

	trail.StartTime = first
	end := last
	trail.EndTime = &end

	elevation := spatial.ElevationStats(trail.Points)
	speed := spatial.ComputeSpeedStats(trail.Points, duration)

	trail.Elevation = elevation
	trail.Metadata = models.TrailMetadata{
		Distance:      spatial.RunningDistance(trail.Points),
		Duration:      duration,
		ElevationGain: elevation.Gain,
		ElevationLoss: elevation.Loss,
		AvgSpeed:      speed.Avg,
		MaxSpeed:      speed.Max,
	}
	if trail.Metadata.MaxSpeed == 0 {
		trail.Metadata.MaxSpeed = maxSegmentSpeed(trail.Points)
	}
}

// maxSegmentSpeed derives a max speed from positions when the file carries none
func maxSegmentSpeed(points []models.TrackPoint) float64 {
	var max float64
	for i := 1; i < len(points); i++ {
		dt := points[i].Timestamp.Sub(points[i-1].Timestamp)
		if dt < time.Second {
			continue
		}
		if v := spatial.Distance(points[i-1], points[i]) / dt.Seconds(); v > max {
			max = v
		}
	}
	return max
}
