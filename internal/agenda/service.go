package agenda

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/denapp-control/backend/internal/storage/models"
)

// SnapshotStore persists the cache so it survives restarts.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, entries []*models.AgendaEntry, takenAt time.Time) error
	SaveEntry(ctx context.Context, entry *models.AgendaEntry) error
	LoadSnapshot(ctx context.Context) ([]*models.AgendaEntry, time.Time, error)
}

// HistoryStore records sync cycles.
type HistoryStore interface {
	RecordSyncRun(ctx context.Context, result *models.SyncResult) error
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncResult, error)
}

// Notifier is told about sync cycles and entry writes.
type Notifier interface {
	BroadcastAgendaSyncCompleted(result models.SyncResult)
	BroadcastAgendaSyncError(result models.SyncResult)
	BroadcastAgendaEntryChanged(action string, entry *models.AgendaEntry)
}

// scheduleInfo is implemented by Scheduler.
type scheduleInfo interface {
	Running() bool
	NextRun() *time.Time
}

// Options are the optional collaborators of a Service.
type Options struct {
	Snapshots SnapshotStore
	History   HistoryStore
	Notifier  Notifier
}

// Service is the agenda sync engine. It owns the cache, runs sync cycles
// one at a time and writes single entries through to the sheet.
type Service struct {
	store     RemoteStore
	cache     *Cache
	snapshots SnapshotStore
	history   HistoryStore
	notifier  Notifier
	schedule  scheduleInfo
	now       func() time.Time

	syncing atomic.Bool

	statsMu sync.Mutex
	stats   models.SyncStatistics
}

// NewService creates the sync engine. A nil store leaves the service
// unconfigured: reads serve whatever snapshot was restored and every remote
// operation returns ErrUnconfigured.
func NewService(store RemoteStore, opts Options) *Service {
	return &Service{
		store:     store,
		cache:     NewCache(),
		snapshots: opts.Snapshots,
		history:   opts.History,
		notifier:  opts.Notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Configured reports whether a remote sheet is attached.
func (s *Service) Configured() bool {
	return s.store != nil
}

// Cache exposes the agenda cache for read-only use.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Restore loads the last persisted snapshot into the cache.
func (s *Service) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	entries, takenAt, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("loading agenda snapshot: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	s.cache.Restore(entries, takenAt)
	log.Printf("Restored %d agenda entries from snapshot taken at %s", len(entries), takenAt.Format(time.RFC3339))
	return nil
}

// Sync runs one full read-and-replace cycle. If a cycle is already running
// it returns ErrSyncInProgress without touching the sheet. On failure the
// previous snapshot is kept. Cancelling ctx does not stop a started cycle;
// only its values are used.
func (s *Service) Sync(ctx context.Context, trigger string) (*models.SyncResult, error) {
	if s.store == nil {
		return nil, ErrUnconfigured
	}
	if !s.syncing.CompareAndSwap(false, true) {
		log.Printf("Agenda sync already in progress, skipping %s trigger", trigger)
		return nil, ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	// A started cycle runs to completion or failure; a caller going away
	// does not abort it.
	ctx = context.WithoutCancel(ctx)

	start := s.now()
	result := &models.SyncResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
	}
	log.Printf("Syncing agenda (%s)...", trigger)

	entries, err := s.readEntries(ctx, result)
	result.Duration = s.now().Sub(start).Seconds()
	if err != nil {
		result.Status = models.SyncStatusError
		result.Error = err.Error()
		s.recordCycle(start, err)
		log.Printf("Agenda sync failed: %v", err)
		s.finishCycle(ctx, result)
		if s.notifier != nil {
			s.notifier.BroadcastAgendaSyncError(*result)
		}
		return result, err
	}

	s.cache.ReplaceAll(entries)
	result.Status = models.SyncStatusSuccess
	result.EntriesCached = s.cache.Len()
	s.recordCycle(start, nil)

	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(ctx, s.cache.All(), s.cache.SnapshotTakenAt()); err != nil {
			log.Printf("Failed to persist agenda snapshot: %v", err)
		}
	}

	log.Printf("Agenda sync completed: %d rows read, %d entries cached, %d blank, %d rejected in %.2fs",
		result.RowsRead, result.EntriesCached, result.BlankRows, result.RejectedRows, result.Duration)
	s.finishCycle(ctx, result)
	if s.notifier != nil {
		s.notifier.BroadcastAgendaSyncCompleted(*result)
	}
	return result, nil
}

// readEntries reads the sheet and parses every row. Rows that fail to
// parse are logged and skipped.
func (s *Service) readEntries(ctx context.Context, result *models.SyncResult) ([]*models.AgendaEntry, error) {
	data, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading agenda sheet: %w", err)
	}

	result.SchemaWarnings = CheckHeader(data.Header)
	for _, w := range result.SchemaWarnings {
		log.Printf("Agenda sheet header: %s", w)
	}

	known := s.knownEntries()
	now := s.now()
	entries := make([]*models.AgendaEntry, 0, len(data.Rows))

	for _, row := range data.Rows {
		result.RowsRead++
		parsed, err := ParseRow(row.Values)
		if errors.Is(err, ErrBlankRow) {
			result.BlankRows++
			continue
		}
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Position = row.Position
			result.RejectedRows++
			log.Printf("Skipping agenda %v", perr)
			continue
		}
		if err != nil {
			result.RejectedRows++
			log.Printf("Skipping agenda row %d: %v", row.Position, err)
			continue
		}
		for _, issue := range parsed.Dropped {
			log.Printf("Agenda row %d: dropped %s", row.Position, issue)
		}
		result.DroppedFields += len(parsed.Dropped)

		entry := parsed.Entry
		position := row.Position
		entry.RowPosition = &position
		entry.SyncedAt = &now
		if prev := known.claim(entry); prev != nil {
			entry.ID = prev.ID
			entry.CreatedAtInternal = prev.CreatedAtInternal
			entry.UpdatedAtInternal = prev.UpdatedAtInternal
		} else {
			entry.ID = uuid.NewString()
			entry.CreatedAtInternal = now
			entry.UpdatedAtInternal = now
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// identityIndex matches sheet rows to cached entries so resynced rows keep
// their IDs. Each cached entry is handed out at most once per cycle.
type identityIndex struct {
	byIdentity map[string][]*models.AgendaEntry
	claimed    map[string]bool
}

// knownEntries indexes the current cache for one sync cycle.
func (s *Service) knownEntries() *identityIndex {
	ix := &identityIndex{
		byIdentity: make(map[string][]*models.AgendaEntry),
		claimed:    make(map[string]bool),
	}
	for _, e := range s.cache.All() {
		if key := identityKey(e); key != "" {
			ix.byIdentity[key] = append(ix.byIdentity[key], e)
		}
	}
	return ix
}

// claim returns the unclaimed cached entry that entry continues, or nil.
// Among entries sharing a registro the one with the same cache key wins,
// then the first in sheet order.
func (ix *identityIndex) claim(entry *models.AgendaEntry) *models.AgendaEntry {
	candidates := ix.byIdentity[identityKey(entry)]
	if len(candidates) == 0 {
		return nil
	}
	var pick *models.AgendaEntry
	if key := entry.CacheKey(); key != "" {
		for _, c := range candidates {
			if !ix.claimed[c.ID] && c.CacheKey() == key {
				pick = c
				break
			}
		}
	}
	if pick == nil {
		for _, c := range candidates {
			if !ix.claimed[c.ID] {
				pick = c
				break
			}
		}
	}
	if pick != nil {
		ix.claimed[pick.ID] = true
	}
	return pick
}

// identityKey matches a sheet row to a cached entry across syncs: by
// registro when the row has one, otherwise by cache key. Rows with neither
// have no identity and always get a new ID.
func identityKey(e *models.AgendaEntry) string {
	if e.ExternalID != "" {
		return "registro:" + e.ExternalID
	}
	if e.PatientNumber != "" && e.Date != nil && e.Time != nil {
		return "key:" + e.CacheKey()
	}
	return ""
}

func (s *Service) recordCycle(at time.Time, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.TotalCycles++
	if err != nil {
		s.stats.FailedCycles++
		msg := err.Error()
		s.stats.LastError = &msg
		return
	}
	s.stats.SuccessfulCycles++
	s.stats.LastError = nil
	s.stats.LastSyncAt = &at
}

func (s *Service) finishCycle(ctx context.Context, result *models.SyncResult) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordSyncRun(ctx, result); err != nil {
		log.Printf("Failed to record agenda sync run: %v", err)
	}
}

// Statistics returns a copy of the sync counters.
func (s *Service) Statistics() models.SyncStatistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := s.stats
	if stats.LastError != nil {
		msg := *stats.LastError
		stats.LastError = &msg
	}
	if stats.LastSyncAt != nil {
		t := *stats.LastSyncAt
		stats.LastSyncAt = &t
	}
	return stats
}

// Status reports the engine state for health and status endpoints.
func (s *Service) Status() models.SyncStatus {
	status := models.SyncStatus{
		State:          models.SyncStateIdle,
		Configured:     s.Configured(),
		SyncInProgress: s.syncing.Load(),
		TotalItems:     s.cache.Len(),
		SyncStatistics: s.Statistics(),
	}
	switch {
	case !status.Configured:
		status.State = models.SyncStateUnconfigured
	case status.SyncInProgress:
		status.State = models.SyncStateSyncing
	}
	if t := s.cache.SnapshotTakenAt(); !t.IsZero() {
		status.SnapshotTakenAt = &t
	}
	if s.schedule != nil {
		status.SchedulerRunning = s.schedule.Running()
		status.NextSyncAt = s.schedule.NextRun()
	}
	return status
}

// History returns the most recent sync runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.SyncResult, error) {
	if s.history == nil {
		return []models.SyncResult{}, nil
	}
	return s.history.ListSyncRuns(ctx, limit)
}

// TestConnection checks that the agenda sheet is reachable.
func (s *Service) TestConnection(ctx context.Context) (*models.ConnectionInfo, error) {
	if s.store == nil {
		return nil, ErrUnconfigured
	}
	return s.store.TestConnection(ctx)
}

// AddEntry appends a new appointment to the sheet and caches it.
// A missing registro is assigned from the cache; FechaAlta and CitMod
// default to now.
func (s *Service) AddEntry(ctx context.Context, fields models.EntryFields) (*models.AgendaEntry, error) {
	if s.store == nil {
		return nil, ErrUnconfigured
	}

	now := s.now()
	entry := &models.AgendaEntry{
		ID:                uuid.NewString(),
		CreatedAtInternal: now,
		UpdatedAtInternal: now,
	}
	if issues := ApplyFields(entry, fields); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	if entry.ExternalID == "" {
		entry.ExternalID = s.nextRegistro()
	}
	stamp := now.Truncate(time.Second)
	if entry.CreatedAt == nil {
		entry.CreatedAt = &stamp
	}
	if entry.LastModified == nil {
		entry.LastModified = &stamp
	}

	position, err := s.store.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("adding agenda entry: %w", err)
	}
	if position >= 0 {
		entry.RowPosition = &position
	}
	entry.SyncedAt = &now

	s.cache.Put(entry)
	s.persistEntry(ctx, entry)
	if s.notifier != nil {
		s.notifier.BroadcastAgendaEntryChanged("created", entry)
	}
	log.Printf("Added agenda entry %s (registro %s): %s", entry.ID, entry.ExternalID, entry.FullName())
	return entry, nil
}

// UpdateEntry applies fields to the entry with the given internal ID or
// registro and writes it back to its sheet row. Entries missing from the
// cache are looked up in the sheet by registro before giving up with a
// *NotFoundError. A cached row position is checked against the sheet's
// registro first and re-located when the row has moved. Entries without a
// registro cannot be checked and are written at their cached position.
// The cache is only changed after the sheet write succeeds.
func (s *Service) UpdateEntry(ctx context.Context, id string, fields models.EntryFields) (*models.AgendaEntry, error) {
	if s.store == nil {
		return nil, ErrUnconfigured
	}

	current, ok := s.cache.FindByID(id)
	located := !ok
	if !ok {
		remote, err := s.findRemote(ctx, id)
		if err != nil {
			return nil, err
		}
		current = remote
	}

	updated := current.Clone()
	if issues := ApplyFields(updated, fields); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	now := s.now()
	updated.UpdatedAtInternal = now
	if fields.LastModified == nil {
		stamp := now.Truncate(time.Second)
		updated.LastModified = &stamp
	}

	// A cached position goes stale when rows are inserted or deleted in the
	// sheet. Check the row still carries the entry's registro before
	// overwriting it.
	if updated.RowPosition != nil && !located && current.ExternalID != "" {
		row, err := s.store.ReadAt(ctx, *updated.RowPosition)
		if err != nil {
			return nil, fmt.Errorf("checking agenda row for %s: %w", id, err)
		}
		if got := cellText(row[ColRegistro]); got != current.ExternalID {
			log.Printf("Agenda row %d holds registro %q, not %q; locating entry in sheet",
				*updated.RowPosition, got, current.ExternalID)
			updated.RowPosition = nil
		}
	}
	if updated.RowPosition == nil {
		remote, err := s.findRemote(ctx, current.ExternalID)
		if err != nil {
			return nil, err
		}
		updated.RowPosition = remote.RowPosition
	}

	if err := s.store.UpdateAt(ctx, *updated.RowPosition, updated); err != nil {
		return nil, fmt.Errorf("updating agenda entry %s: %w", id, err)
	}
	updated.SyncedAt = &now

	s.cache.Put(updated)
	s.persistEntry(ctx, updated)
	if s.notifier != nil {
		s.notifier.BroadcastAgendaEntryChanged("updated", updated)
	}
	log.Printf("Updated agenda entry %s (registro %s)", updated.ID, updated.ExternalID)
	return updated, nil
}

// findRemote reads the sheet and returns the row whose registro is id.
func (s *Service) findRemote(ctx context.Context, id string) (*models.AgendaEntry, error) {
	if id == "" {
		return nil, &NotFoundError{ID: id}
	}
	data, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up agenda entry %s: %w", id, err)
	}
	for _, row := range data.Rows {
		parsed, err := ParseRow(row.Values)
		if err != nil || parsed.Entry.ExternalID != id {
			continue
		}
		entry := parsed.Entry
		position := row.Position
		entry.RowPosition = &position
		entry.ID = uuid.NewString()
		entry.CreatedAtInternal = s.now()
		entry.UpdatedAtInternal = entry.CreatedAtInternal
		return entry, nil
	}
	return nil, &NotFoundError{ID: id}
}

// nextRegistro returns one more than the highest numeric registro cached.
func (s *Service) nextRegistro() string {
	highest := 0
	for _, e := range s.cache.All() {
		if n, err := strconv.Atoi(e.ExternalID); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

func (s *Service) persistEntry(ctx context.Context, entry *models.AgendaEntry) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveEntry(ctx, entry); err != nil {
		log.Printf("Failed to persist agenda entry %s: %v", entry.ID, err)
	}
}
