package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/denapp-control/backend/internal/storage/models"
)

// SnapshotRepository stores the last good agenda snapshot.
type SnapshotRepository struct {
	BaseRepository
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{BaseRepository: NewBaseRepository(db)}
}

// SaveSnapshot replaces the stored snapshot with entries, keeping their order.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, entries []*models.AgendaEntry, takenAt time.Time) error {
	now := r.Now()
	return r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM agenda_entries"); err != nil {
			return fmt.Errorf("clearing agenda snapshot: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agenda_entries (id, seq, cache_key, registro, entry_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing agenda insert: %w", err)
		}
		defer stmt.Close()

		for i, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding agenda entry %s: %w", e.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, e.ID, i+1, e.CacheKey(), e.ExternalID, string(data), now); err != nil {
				return fmt.Errorf("inserting agenda entry %s: %w", e.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO agenda_snapshot (id, taken_at, entry_count) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET taken_at = excluded.taken_at, entry_count = excluded.entry_count
		`, takenAt.UTC(), len(entries))
		if err != nil {
			return fmt.Errorf("recording agenda snapshot: %w", err)
		}
		return nil
	})
}

// SaveEntry writes one entry into the stored snapshot. An existing row with
// the same ID is replaced in place; a row for a different entry under the
// same cache key is dropped, matching what the in-memory cache does.
func (r *SnapshotRepository) SaveEntry(ctx context.Context, entry *models.AgendaEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding agenda entry %s: %w", entry.ID, err)
	}
	key := entry.CacheKey()
	now := r.Now()

	return r.DB().Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM agenda_entries WHERE cache_key = ? AND id <> ?", key, entry.ID,
		); err != nil {
			return fmt.Errorf("removing replaced agenda entry: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO agenda_entries (id, seq, cache_key, registro, entry_json, updated_at)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM agenda_entries), ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				cache_key = excluded.cache_key,
				registro = excluded.registro,
				entry_json = excluded.entry_json,
				updated_at = excluded.updated_at
		`, entry.ID, key, entry.ExternalID, string(data), now)
		if err != nil {
			return fmt.Errorf("saving agenda entry %s: %w", entry.ID, err)
		}
		return nil
	})
}

// LoadSnapshot returns the stored entries in cache order and when the
// snapshot was taken. An empty database yields no entries and a zero time.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context) ([]*models.AgendaEntry, time.Time, error) {
	var takenAt time.Time
	err := r.DB().QueryRowContext(ctx, "SELECT taken_at FROM agenda_snapshot WHERE id = 1").Scan(&takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("querying agenda snapshot: %w", err)
	}

	rows, err := r.DB().QueryContext(ctx, "SELECT id, entry_json FROM agenda_entries ORDER BY seq")
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("querying agenda entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AgendaEntry
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, time.Time{}, fmt.Errorf("scanning agenda entry: %w", err)
		}
		entry := &models.AgendaEntry{}
		if err := json.Unmarshal([]byte(data), entry); err != nil {
			return nil, time.Time{}, fmt.Errorf("decoding agenda entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return entries, takenAt, nil
}
