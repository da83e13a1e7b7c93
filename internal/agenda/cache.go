package agenda

import (
	"sync"
	"time"

	"github.com/denapp-control/backend/internal/storage/models"
)

// snapshot is an immutable view once published by ReplaceAll. Put copies
// it before changing anything so readers holding the old one are unaffected.
type snapshot struct {
	entries map[string]*models.AgendaEntry
	order   []string
	takenAt time.Time
}

func newSnapshot(capacity int) *snapshot {
	return &snapshot{
		entries: make(map[string]*models.AgendaEntry, capacity),
		order:   make([]string, 0, capacity),
	}
}

func (s *snapshot) clone() *snapshot {
	c := newSnapshot(len(s.order) + 1)
	for _, key := range s.order {
		c.entries[key] = s.entries[key]
		c.order = append(c.order, key)
	}
	c.takenAt = s.takenAt
	return c
}

func (s *snapshot) set(key string, entry *models.AgendaEntry) {
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = entry
}

func (s *snapshot) remove(key string) {
	if _, exists := s.entries[key]; !exists {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Cache holds the agenda entries from the last full read of the sheet.
// It is safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	snap *snapshot
	now  func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		snap: newSnapshot(0),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ReplaceAll swaps the whole snapshot for entries. Later entries with the
// same cache key overwrite earlier ones.
func (c *Cache) ReplaceAll(entries []*models.AgendaEntry) {
	next := newSnapshot(len(entries))
	for _, e := range entries {
		next.set(e.CacheKey(), e.Clone())
	}
	next.takenAt = c.now()

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
}

// Put upserts one entry under its cache key. If the same entry (by ID) is
// cached under a different key, for example after its date changed, the
// stale key is dropped.
func (c *Cache) Put(entry *models.AgendaEntry) {
	key := entry.CacheKey()
	stored := entry.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.clone()
	for k, existing := range c.snap.entries {
		if k != key && existing.ID == entry.ID {
			next.remove(k)
		}
	}
	next.set(key, stored)
	c.snap = next
}

func (c *Cache) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// All returns every cached entry in snapshot order.
func (c *Cache) All() []*models.AgendaEntry {
	return c.filter(func(*models.AgendaEntry) bool { return true })
}

// FindByDate returns the entries scheduled on d.
func (c *Cache) FindByDate(d models.Date) []*models.AgendaEntry {
	return c.filter(func(e *models.AgendaEntry) bool {
		return e.Date != nil && *e.Date == d
	})
}

// FindByPatient returns the entries for a patient number.
func (c *Cache) FindByPatient(patientNumber string) []*models.AgendaEntry {
	return c.filter(func(e *models.AgendaEntry) bool {
		return patientNumber != "" && e.PatientNumber == patientNumber
	})
}

// FindByID looks an entry up by its internal ID or by its sheet registro.
func (c *Cache) FindByID(id string) (*models.AgendaEntry, bool) {
	if id == "" {
		return nil, false
	}
	snap := c.current()
	for _, key := range snap.order {
		e := snap.entries[key]
		if e.ID == id || e.ExternalID == id {
			return e.Clone(), true
		}
	}
	return nil, false
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(c.current().order)
}

// SnapshotTakenAt returns when the cache was last fully replaced, or the
// zero time if it never was.
func (c *Cache) SnapshotTakenAt() time.Time {
	return c.current().takenAt
}

// Restore loads a previously persisted snapshot without touching its timestamp.
func (c *Cache) Restore(entries []*models.AgendaEntry, takenAt time.Time) {
	next := newSnapshot(len(entries))
	for _, e := range entries {
		next.set(e.CacheKey(), e.Clone())
	}
	next.takenAt = takenAt

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
}

func (c *Cache) filter(keep func(*models.AgendaEntry) bool) []*models.AgendaEntry {
	snap := c.current()
	out := make([]*models.AgendaEntry, 0)
	for _, key := range snap.order {
		e := snap.entries[key]
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}
