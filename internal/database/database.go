package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"channel-clock/internal/models"
)

// DefaultHistoryLimit is the page size of label history when no limit is given.
const DefaultHistoryLimit = 50

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate creates the schema if it doesn't exist.
func (db *DB) Migrate(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS label_events (
		id           BIGSERIAL PRIMARY KEY,
		dispatch_id  UUID NOT NULL,
		region_id    TEXT NOT NULL,
		entity_id    TEXT NOT NULL,
		label        TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_label_events_region_time
		ON label_events (region_id, timestamp DESC);
	`
	_, err := db.Pool.Exec(ctx, sql)
	return err
}

// RecordLabelEvent stores one publish attempt.
func (db *DB) RecordLabelEvent(ctx context.Context, e *models.LabelEvent) error {
	return db.Pool.QueryRow(ctx, `
		INSERT INTO label_events (dispatch_id, region_id, entity_id, label, outcome, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.DispatchID, e.RegionID, e.EntityID, e.Label, e.Outcome, e.Error, e.Timestamp).Scan(&e.ID)
}

// GetLabelHistory returns the most recent events for a region, newest first.
func (db *DB) GetLabelHistory(ctx context.Context, regionID string, limit int) ([]*models.LabelEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, dispatch_id::text, region_id, entity_id, label, outcome, error, timestamp
		FROM label_events
		WHERE region_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, regionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.LabelEvent
	for rows.Next() {
		var e models.LabelEvent
		if err := rows.Scan(&e.ID, &e.DispatchID, &e.RegionID, &e.EntityID, &e.Label, &e.Outcome, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
