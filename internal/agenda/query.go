package agenda

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/denapp-control/backend/internal/storage/models"
)

// Labels used in the stats distributions for missing values.
const (
	NoStatusLabel       = "Sin Estado"
	NoPractitionerLabel = "Sin Asignar"
)

// Entries returns every cached entry.
func (s *Service) Entries() []*models.AgendaEntry {
	return s.cache.All()
}

// EntriesByDate returns the cached entries for one day.
func (s *Service) EntriesByDate(d models.Date) []*models.AgendaEntry {
	return s.cache.FindByDate(d)
}

// EntriesByPatient returns the cached entries for a patient number.
func (s *Service) EntriesByPatient(patientNumber string) []*models.AgendaEntry {
	return s.cache.FindByPatient(patientNumber)
}

// Search returns cached entries where q appears in the patient's name,
// phone, treatment, notes or practitioner. Matching ignores case and accents.
func (s *Service) Search(q string) []*models.AgendaEntry {
	needle := fold(q)
	if needle == "" {
		return []*models.AgendaEntry{}
	}
	var out []*models.AgendaEntry
	for _, e := range s.cache.All() {
		for _, field := range []string{e.FirstName, e.LastName, e.MobilePhone, e.Treatment, e.Notes, e.Practitioner} {
			if strings.Contains(fold(field), needle) {
				out = append(out, e)
				break
			}
		}
	}
	if out == nil {
		out = []*models.AgendaEntry{}
	}
	return out
}

// Export returns dated entries within [from, to]. Nil bounds are open.
// With no bounds at all every entry is returned, dated or not.
func (s *Service) Export(from, to *models.Date) []*models.AgendaEntry {
	all := s.cache.All()
	if from == nil && to == nil {
		return all
	}
	out := make([]*models.AgendaEntry, 0, len(all))
	for _, e := range all {
		if e.Date == nil {
			continue
		}
		if from != nil && e.Date.Before(*from) {
			continue
		}
		if to != nil && e.Date.After(*to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats summarizes the cached agenda relative to today.
func (s *Service) Stats(today models.Date) models.AgendaStats {
	entries := s.cache.All()
	stats := models.AgendaStats{
		TotalAppointments:  len(entries),
		StatusDistribution: make(map[string]int),
		DoctorDistribution: make(map[string]int),
		LastSync:           s.Statistics().LastSyncAt,
	}
	for _, e := range entries {
		if e.Date != nil {
			switch {
			case *e.Date == today:
				stats.TodayAppointments++
			case e.Date.After(today):
				stats.UpcomingAppointments++
			}
		}

		status := e.Status
		if status == "" {
			status = NoStatusLabel
		}
		stats.StatusDistribution[status]++

		doctor := e.Practitioner
		if doctor == "" {
			doctor = NoPractitionerLabel
		}
		stats.DoctorDistribution[doctor]++
	}
	if t := s.cache.SnapshotTakenAt(); !t.IsZero() {
		stats.CacheUpdatedAt = &t
	}
	return stats
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) models.Date {
	return models.DateOf(time.Now().In(loc))
}

// fold lowercases s and strips diacritics so "García" matches "garcia".
// Transformer chains carry state, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
