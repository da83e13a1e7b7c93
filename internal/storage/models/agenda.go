// Package models contains the domain models for the application.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sheet wire layouts. These are the formats written back to the agenda sheet.
const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Appointment status values as written in the EstadoCita column.
// The column is free text; these are the values the clinic uses.
const (
	StatusScheduled   = "Programada"
	StatusConfirmed   = "Confirmada"
	StatusAttended    = "Asistió"
	StatusNoShow      = "No asistió"
	StatusCancelled   = "Cancelada"
	StatusRescheduled = "Reagendada"
)

// KnownStatuses lists the statuses in display order.
var KnownStatuses = []string{
	StatusScheduled,
	StatusConfirmed,
	StatusAttended,
	StatusNoShow,
	StatusCancelled,
	StatusRescheduled,
}

// IsKnownStatus reports whether s is one of the clinic's appointment statuses.
func IsKnownStatus(s string) bool {
	for _, known := range KnownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Date is a calendar day without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d is an earlier day than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is a later day than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ClockOf returns the time of day of t.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock{Hour: h, Minute: m, Second: s}
}

// String formats the clock as HH:MM. Seconds are not part of the sheet format.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			*c = ClockOf(t)
			return nil
		}
	}
	return fmt.Errorf("parsing time %q", s)
}

// AgendaEntry is one appointment mirrored from the agenda sheet.
// Empty strings and nil pointers mean the column was absent or blank.
type AgendaEntry struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"registro,omitempty"`
	LastModified    *time.Time `json:"cit_mod,omitempty"`
	CreatedAt       *time.Time `json:"fecha_alta,omitempty"`
	PatientNumber   string     `json:"num_pac,omitempty"`
	LastName        string     `json:"apellidos,omitempty"`
	FirstName       string     `json:"nombre,omitempty"`
	MobilePhone     string     `json:"tel_movil,omitempty"`
	Date            *Date      `json:"fecha,omitempty"`
	Time            *Clock     `json:"hora,omitempty"`
	Status          string     `json:"estado_cita,omitempty"`
	Treatment       string     `json:"tratamiento,omitempty"`
	Practitioner    string     `json:"odontologo,omitempty"`
	Notes           string     `json:"notas,omitempty"`
	DurationMinutes string     `json:"duracion,omitempty"`

	CreatedAtInternal time.Time  `json:"created_at"`
	UpdatedAtInternal time.Time  `json:"updated_at"`
	SyncedAt          *time.Time `json:"synced_at,omitempty"`

	// RowPosition is the 0-based data row in the sheet, or nil when unknown.
	RowPosition *int `json:"row_position,omitempty"`
}

// CacheKey returns the composite key NumPac|Fecha|Hora, falling back to ID
// when any of the three is missing.
func (e *AgendaEntry) CacheKey() string {
	if e.PatientNumber != "" && e.Date != nil && e.Time != nil {
		return e.PatientNumber + "|" + e.Date.String() + "|" + e.Time.String()
	}
	return e.ID
}

// FullName returns "Nombre Apellidos" trimmed of missing parts.
func (e *AgendaEntry) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	default:
		return e.FirstName + " " + e.LastName
	}
}

// Clone returns a deep copy so cached entries can be handed out safely.
func (e *AgendaEntry) Clone() *AgendaEntry {
	c := *e
	if e.LastModified != nil {
		t := *e.LastModified
		c.LastModified = &t
	}
	if e.CreatedAt != nil {
		t := *e.CreatedAt
		c.CreatedAt = &t
	}
	if e.Date != nil {
		d := *e.Date
		c.Date = &d
	}
	if e.Time != nil {
		t := *e.Time
		c.Time = &t
	}
	if e.SyncedAt != nil {
		t := *e.SyncedAt
		c.SyncedAt = &t
	}
	if e.RowPosition != nil {
		p := *e.RowPosition
		c.RowPosition = &p
	}
	return &c
}

// EntryFields carries user-supplied values for creating or patching an entry.
// Values are raw text in the same formats the sheet accepts; nil means
// "leave unchanged" on update and "absent" on create.
type EntryFields struct {
	ExternalID      *string `json:"registro,omitempty"`
	LastModified    *string `json:"cit_mod,omitempty"`
	CreatedAt       *string `json:"fecha_alta,omitempty"`
	PatientNumber   *string `json:"num_pac,omitempty"`
	LastName        *string `json:"apellidos,omitempty"`
	FirstName       *string `json:"nombre,omitempty"`
	MobilePhone     *string `json:"tel_movil,omitempty"`
	Date            *string `json:"fecha,omitempty"`
	Time            *string `json:"hora,omitempty"`
	Status          *string `json:"estado_cita,omitempty"`
	Treatment       *string `json:"tratamiento,omitempty"`
	Practitioner    *string `json:"odontologo,omitempty"`
	Notes           *string `json:"notas,omitempty"`
	DurationMinutes *string `json:"duracion,omitempty"`
}

// Sync trigger sources.
const (
	SyncTriggerStartup  = "startup"
	SyncTriggerInterval = "interval"
	SyncTriggerDaily    = "daily"
	SyncTriggerManual   = "manual"
)

// Sync state values.
const (
	SyncStateIdle         = "idle"
	SyncStateSyncing      = "syncing"
	SyncStateUnconfigured = "unconfigured"
)

// Sync outcome values recorded in the sync history.
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncStatistics counts sync cycles since process start.
type SyncStatistics struct {
	TotalCycles      int        `json:"total_cycles"`
	SuccessfulCycles int        `json:"successful_syncs"`
	FailedCycles     int        `json:"failed_syncs"`
	LastError        *string    `json:"last_error,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_time,omitempty"`
}

// SyncStatus is the externally visible state of the agenda sync engine.
type SyncStatus struct {
	State            string     `json:"state"`
	Configured       bool       `json:"configured"`
	SyncInProgress   bool       `json:"sync_in_progress"`
	SchedulerRunning bool       `json:"scheduler_running"`
	NextSyncAt       *time.Time `json:"next_sync_time,omitempty"`
	TotalItems       int        `json:"total_items"`
	SnapshotTakenAt  *time.Time `json:"cache_updated_at,omitempty"`
	SyncStatistics
}

// SyncResult describes one completed or failed sync cycle.
type SyncResult struct {
	ID             string    `json:"id"`
	Trigger        string    `json:"trigger"`
	Status         string    `json:"status"`
	RowsRead       int       `json:"rows_read"`
	EntriesCached  int       `json:"entries_cached"`
	BlankRows      int       `json:"blank_rows"`
	RejectedRows   int       `json:"rejected_rows"`
	DroppedFields  int       `json:"dropped_fields"`
	SchemaWarnings []string  `json:"schema_warnings,omitempty"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	Duration       float64   `json:"duration_seconds"`
}

// ConnectionInfo describes the agenda sheet as seen by a connectivity test.
type ConnectionInfo struct {
	Status           string    `json:"status"`
	SpreadsheetTitle string    `json:"spreadsheet_title,omitempty"`
	WorksheetTitle   string    `json:"worksheet_title,omitempty"`
	Rows             int64     `json:"rows"`
	Cols             int64     `json:"cols"`
	Header           []string  `json:"header,omitempty"`
	Message          string    `json:"message,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// AgendaStats summarizes the cached agenda.
type AgendaStats struct {
	TotalAppointments    int            `json:"total_appointments"`
	TodayAppointments    int            `json:"today_appointments"`
	UpcomingAppointments int            `json:"upcoming_appointments"`
	StatusDistribution   map[string]int `json:"status_distribution"`
	DoctorDistribution   map[string]int `json:"doctor_distribution"`
	LastSync             *time.Time     `json:"last_sync,omitempty"`
	CacheUpdatedAt       *time.Time     `json:"cache_updated_at,omitempty"`
}
