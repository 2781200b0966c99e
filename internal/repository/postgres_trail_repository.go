package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jengzang/trails-backend-go/internal/database"
	"github.com/jengzang/trails-backend-go/internal/models"
)

var trackPointColumns = []string{
	"trail_id", "seq", "latitude", "longitude", "elevation", "timestamp", "accuracy", "speed", "heading",
}

// PostgresTrailRepository stores trails in the remote primary database
type PostgresTrailRepository struct {
	db database.Querier
}

// NewPostgresTrailRepository creates a trail repository backed by postgres
func NewPostgresTrailRepository(db database.Querier) *PostgresTrailRepository {
	return &PostgresTrailRepository{db: db}
}

func (r *PostgresTrailRepository) UpsertTrail(ctx context.Context, trail *models.Trail) error {
	cols, err := encodeTrailColumns(trail)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trails (id, name, description, user_id, is_public, metadata, distance, duration,
			elevation, tags, sync_status, local_only, version, start_time, end_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			user_id = EXCLUDED.user_id,
			is_public = EXCLUDED.is_public,
			metadata = EXCLUDED.metadata,
			distance = EXCLUDED.distance,
			duration = EXCLUDED.duration,
			elevation = EXCLUDED.elevation,
			tags = EXCLUDED.tags,
			sync_status = EXCLUDED.sync_status,
			local_only = EXCLUDED.local_only,
			version = EXCLUDED.version,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			updated_at = EXCLUDED.updated_at
	`, trail.ID, trail.Name, trail.Description, trail.UserID, trail.IsPublic,
		cols.Metadata, trail.Metadata.Distance, trail.Metadata.Duration,
		cols.Elevation, cols.Tags, trail.SyncStatus, trail.LocalOnly, trail.Version,
		timePtr(trail.StartTime), trail.EndTime, trail.CreatedAt, trail.UpdatedAt)
	if err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("failed to upsert trail: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM track_points WHERE trail_id=$1`, trail.ID); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("failed to clear track points: %w", err)
	}

	if len(trail.Points) > 0 {
		rows := make([][]any, len(trail.Points))
		for i, p := range trail.Points {
			rows[i] = []any{trail.ID, i, p.Latitude, p.Longitude, p.Altitude, p.Timestamp, p.Accuracy, p.Speed, p.Heading}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"track_points"}, trackPointColumns, pgx.CopyFromRows(rows)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to copy track points: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trail: %w", err)
	}
	return nil
}

func (r *PostgresTrailRepository) GetTrails(ctx context.Context) ([]models.Trail, error) {
	rows, err := r.db.Query(ctx, `SELECT `+trailSelectColumns+` FROM trails ORDER BY start_time DESC NULLS LAST, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trails: %w", err)
	}
	defer rows.Close()

	trails := []models.Trail{}
	index := make(map[string]int)
	for rows.Next() {
		trail, err := scanPostgresTrail(rows)
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
		return trails, nil
	}

	pointRows, err := r.db.Query(ctx, `
		SELECT id, trail_id, latitude, longitude, elevation, timestamp, accuracy, speed, heading
		FROM track_points
		ORDER BY trail_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer pointRows.Close()

	for pointRows.Next() {
		p, err := scanPostgresTrackPoint(pointRows)
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

func (r *PostgresTrailRepository) GetTrailByID(ctx context.Context, id string) (*models.Trail, error) {
	trail, err := scanPostgresTrail(r.db.QueryRow(ctx, `SELECT `+trailSelectColumns+` FROM trails WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, trail_id, latitude, longitude, elevation, timestamp, accuracy, speed, heading
		FROM track_points
		WHERE trail_id=$1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPostgresTrackPoint(rows)
		if err != nil {
			return nil, err
		}
		trail.Points = append(trail.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate track points: %w", err)
	}
	return trail, nil
}

func (r *PostgresTrailRepository) DeleteTrail(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM trails WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete trail: %w", err)
	}
	return nil
}

func (r *PostgresTrailRepository) ClearTrails(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `TRUNCATE track_points, trails`); err != nil {
		return fmt.Errorf("failed to clear trails: %w", err)
	}
	return nil
}

func scanPostgresTrail(row pgx.Row) (*models.Trail, error) {
	var (
		t                         models.Trail
		metadata, elevation, tags []byte
		startTime, endTime        *time.Time
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.UserID, &t.IsPublic,
		&metadata, &elevation, &tags, &t.SyncStatus, &t.LocalOnly, &t.Version,
		&startTime, &endTime, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trail: %w", err)
	}

	if err := decodeTrailColumns(&t, metadata, elevation, tags); err != nil {
		return nil, err
	}
	if startTime != nil {
		t.StartTime = startTime.UTC()
	}
	if endTime != nil {
		end := endTime.UTC()
		t.EndTime = &end
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func scanPostgresTrackPoint(row pgx.Row) (models.TrackPoint, error) {
	var p models.TrackPoint
	err := row.Scan(&p.ID, &p.TrailID, &p.Latitude, &p.Longitude, &p.Altitude, &p.Timestamp, &p.Accuracy, &p.Speed, &p.Heading)
	if err != nil {
		return p, fmt.Errorf("failed to scan track point: %w", err)
	}
	p.Timestamp = p.Timestamp.UTC()
	return p, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
