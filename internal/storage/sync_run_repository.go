package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/denapp-control/backend/internal/storage/models"
)

// DefaultHistoryLimit caps sync history listings when no limit is given.
const DefaultHistoryLimit = 50

// SyncRunRepository records agenda sync cycles.
type SyncRunRepository struct {
	BaseRepository
}

// NewSyncRunRepository creates a sync history repository.
func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{BaseRepository: NewBaseRepository(db)}
}

// RecordSyncRun stores the outcome of one cycle.
func (r *SyncRunRepository) RecordSyncRun(ctx context.Context, result *models.SyncResult) error {
	if result.ID == "" {
		result.ID = GenerateID()
	}
	warnings := result.SchemaWarnings
	if warnings == nil {
		warnings = []string{}
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encoding schema warnings: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, sync_trigger, status, rows_read, entries_cached, blank_rows,
			rejected_rows, dropped_fields, schema_warnings, error, started_at, duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID, result.Trigger, result.Status, result.RowsRead, result.EntriesCached, result.BlankRows,
		result.RejectedRows, result.DroppedFields, string(data), result.Error, result.StartedAt.UTC(), result.Duration,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns up to limit cycles, newest first.
func (r *SyncRunRepository) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncResult, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, sync_trigger, status, rows_read, entries_cached, blank_rows,
		       rejected_rows, dropped_fields, schema_warnings, error, started_at, duration_seconds
		FROM sync_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncResult{}
	for rows.Next() {
		var run models.SyncResult
		var warnings string
		if err := rows.Scan(
			&run.ID, &run.Trigger, &run.Status, &run.RowsRead, &run.EntriesCached, &run.BlankRows,
			&run.RejectedRows, &run.DroppedFields, &warnings, &run.Error, &run.StartedAt, &run.Duration,
		); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if err := json.Unmarshal([]byte(warnings), &run.SchemaWarnings); err != nil {
			return nil, fmt.Errorf("decoding schema warnings of run %s: %w", run.ID, err)
		}
		if len(run.SchemaWarnings) == 0 {
			run.SchemaWarnings = nil
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
