package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/trails-backend-go/internal/database"
	"github.com/jengzang/trails-backend-go/internal/models"
)

const trailSelectColumns = `id, name, description, user_id, is_public, metadata, elevation, tags,
	sync_status, local_only, version, start_time, end_time, created_at, updated_at`

// TrailRepository handles sqlite storage of trails and their track points
type TrailRepository struct {
	db *sql.DB
}

// NewTrailRepository creates a new trail repository
func NewTrailRepository(db *sql.DB) *TrailRepository {
	return &TrailRepository{db: db}
}

// UpsertTrail inserts the trail or replaces every mutable column of an existing
// row, then replaces its points in the same transaction
func (r *TrailRepository) UpsertTrail(ctx context.Context, trail *models.Trail) error {
	cols, err := encodeTrailColumns(trail)
	if err != nil {
		return err
	}

	var endTime sql.NullString
	if trail.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*trail.EndTime), Valid: true}
	}

	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO trails (id, name, description, user_id, is_public, metadata, distance, duration,
				elevation, tags, sync_status, local_only, version, start_time, end_time, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				user_id = excluded.user_id,
				is_public = excluded.is_public,
				metadata = excluded.metadata,
				distance = excluded.distance,
				duration = excluded.duration,
				elevation = excluded.elevation,
				tags = excluded.tags,
				sync_status = excluded.sync_status,
				local_only = excluded.local_only,
				version = excluded.version,
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				updated_at = excluded.updated_at
		`
		_, err := tx.ExecContext(ctx, query,
			trail.ID, trail.Name, trail.Description, trail.UserID, trail.IsPublic,
			cols.Metadata, trail.Metadata.Distance, trail.Metadata.Duration,
			cols.Elevation, cols.Tags, trail.SyncStatus, trail.LocalOnly, trail.Version,
			formatTime(trail.StartTime), endTime, formatTime(trail.CreatedAt), formatTime(trail.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert trail: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM track_points WHERE trail_id = ?`, trail.ID); err != nil {
			return fmt.Errorf("failed to clear track points: %w", err)
		}

		if len(trail.Points) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO track_points (trail_id, seq, latitude, longitude, elevation, timestamp, accuracy, speed, heading)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track point insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range trail.Points {
			_, err := stmt.ExecContext(ctx, trail.ID, i, p.Latitude, p.Longitude,
				p.Altitude, formatTime(p.Timestamp), p.Accuracy, p.Speed, p.Heading)
			if err != nil {
				return fmt.Errorf("failed to insert track point %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetTrails returns every trail with its points, newest first
func (r *TrailRepository) GetTrails(ctx context.Context) ([]models.Trail, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trailSelectColumns+` FROM trails ORDER BY start_time DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trails: %w", err)
	}
	defer rows.Close()

	var trails []models.Trail
	index := make(map[string]int)
	for rows.Next() {
		trail, err := scanTrail(rows)
		if err != nil {
			return nil, err
		}
		index[trail.ID] = len(trails)
		trails = append(trails, *trail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trails: %w", err)
	}
	if len(trails) == 0 {
		return []models.Trail{}, nil
	}

	pointRows, err := r.db.QueryContext(ctx, `
		SELECT id, trail_id, latitude, longitude, elevation, timestamp, accuracy, speed, heading
		FROM track_points
		ORDER BY trail_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer pointRows.Close()

	for pointRows.Next() {
		p, err := scanTrackPoint(pointRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[p.TrailID]; ok {
			trails[i].Points = append(trails[i].Points, p)
		}
	}
	if err := pointRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate track points: %w", err)
	}

	return trails, nil
}

// GetTrailByID returns the trail with its points, or nil when it does not exist
func (r *TrailRepository) GetTrailByID(ctx context.Context, id string) (*models.Trail, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trailSelectColumns+` FROM trails WHERE id = ?`, id)
	trail, err := scanTrail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	points, err := r.getTrackPoints(ctx, id)
	if err != nil {
		return nil, err
	}
	trail.Points = points
	return trail, nil
}

func (r *TrailRepository) getTrackPoints(ctx context.Context, trailID string) ([]models.TrackPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trail_id, latitude, longitude, elevation, timestamp, accuracy, speed, heading
		FROM track_points
		WHERE trail_id = ?
		ORDER BY seq
	`, trailID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	var points []models.TrackPoint
	for rows.Next() {
		p, err := scanTrackPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteTrail removes the trail; its points go with it through the cascade
func (r *TrailRepository) DeleteTrail(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trails WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete trail: %w", err)
	}
	return nil
}

// ClearTrails removes every trail and point
func (r *TrailRepository) ClearTrails(ctx context.Context) error {
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM track_points`); err != nil {
			return fmt.Errorf("failed to clear track points: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trails`); err != nil {
			return fmt.Errorf("failed to clear trails: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrail(row rowScanner) (*models.Trail, error) {
	var (
		t                               models.Trail
		metadata, elevation, tags       string
		startTime, createdAt, updatedAt string
		endTime                         sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.UserID, &t.IsPublic,
		&metadata, &elevation, &tags, &t.SyncStatus, &t.LocalOnly, &t.Version,
		&startTime, &endTime, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trail: %w", err)
	}

	if err := decodeTrailColumns(&t, []byte(metadata), []byte(elevation), []byte(tags)); err != nil {
		return nil, err
	}
	if t.StartTime, err = parseTime(startTime); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if endTime.Valid {
		end, err := parseTime(endTime.String)
		if err != nil {
			return nil, err
		}
		t.EndTime = &end
	}
	return &t, nil
}

func scanTrackPoint(row rowScanner) (models.TrackPoint, error) {
	var (
		p                                   models.TrackPoint
		timestamp                           string
		elevation, accuracy, speed, heading sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.TrailID, &p.Latitude, &p.Longitude, &elevation, &timestamp, &accuracy, &speed, &heading)
	if err != nil {
		return p, fmt.Errorf("failed to scan track point: %w", err)
	}
	if p.Timestamp, err = parseTime(timestamp); err != nil {
		return p, err
	}
	p.Altitude = nullableFloat(elevation.Valid, elevation.Float64)
	p.Accuracy = nullableFloat(accuracy.Valid, accuracy.Float64)
	p.Speed = nullableFloat(speed.Valid, speed.Float64)
	p.Heading = nullableFloat(heading.Valid, heading.Float64)
	return p, nil
}
