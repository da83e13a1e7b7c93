// Package agenda keeps a local mirror of the clinic agenda sheet.
//
// Rows are read from a RemoteStore, parsed with ParseRow and cached in a
// Cache keyed by patient number, date and time. Service runs the sync cycle
// and the single-entry writes; Scheduler drives it on timers.
package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/denapp-control/backend/internal/storage/models"
)

// Sheet column names in wire order. The order is the contract with
// existing sheets and must not change.
const (
	ColRegistro    = "Registro"
	ColCitMod      = "CitMod"
	ColFechaAlta   = "FechaAlta"
	ColNumPac      = "NumPac"
	ColApellidos   = "Apellidos"
	ColNombre      = "Nombre"
	ColTelMovil    = "TelMovil"
	ColFecha       = "Fecha"
	ColHora        = "Hora"
	ColEstadoCita  = "EstadoCita"
	ColTratamiento = "Tratamiento"
	ColOdontologo  = "Odontologo"
	ColNotas       = "Notas"
	ColDuracion    = "Duracion"
)

// Columns is the fixed 14-column header of the agenda sheet.
var Columns = []string{
	ColRegistro, ColCitMod, ColFechaAlta, ColNumPac, ColApellidos,
	ColNombre, ColTelMovil, ColFecha, ColHora, ColEstadoCita,
	ColTratamiento, ColOdontologo, ColNotas, ColDuracion,
}

// Row is one sheet record keyed by header name. Values are usually strings
// but the sheet API may hand back numbers for numeric cells.
type Row map[string]any

// FieldIssue records a cell whose text could not be parsed and was dropped.
type FieldIssue struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

func (i FieldIssue) String() string {
	return fmt.Sprintf("%s: cannot parse %q", i.Column, i.Value)
}

// ParseResult is a parsed row plus the cells that were dropped on the way.
type ParseResult struct {
	Entry   *models.AgendaEntry
	Dropped []FieldIssue
}

var (
	timestampLayouts = []string{models.TimestampLayout, "2006-01-02 15:04"}
	dateLayouts      = []string{models.DateLayout, "02/01/2006"}
	clockLayouts     = []string{models.ClockLayout, "15:04:05"}
)

// column binds a sheet column to an entry attribute.
// set returns false when non-empty text cannot be parsed; the attribute is
// left absent in that case.
type column struct {
	name   string
	set    func(e *models.AgendaEntry, text string) bool
	format func(e *models.AgendaEntry) string
}

var columnTable = []column{
	{ColRegistro, setText(func(e *models.AgendaEntry) *string { return &e.ExternalID }), func(e *models.AgendaEntry) string { return e.ExternalID }},
	{ColCitMod, setTimestamp(func(e *models.AgendaEntry) **time.Time { return &e.LastModified }), getTimestamp(func(e *models.AgendaEntry) *time.Time { return e.LastModified })},
	{ColFechaAlta, setTimestamp(func(e *models.AgendaEntry) **time.Time { return &e.CreatedAt }), getTimestamp(func(e *models.AgendaEntry) *time.Time { return e.CreatedAt })},
	{ColNumPac, setText(func(e *models.AgendaEntry) *string { return &e.PatientNumber }), func(e *models.AgendaEntry) string { return e.PatientNumber }},
	{ColApellidos, setText(func(e *models.AgendaEntry) *string { return &e.LastName }), func(e *models.AgendaEntry) string { return e.LastName }},
	{ColNombre, setText(func(e *models.AgendaEntry) *string { return &e.FirstName }), func(e *models.AgendaEntry) string { return e.FirstName }},
	{ColTelMovil, setPhone, func(e *models.AgendaEntry) string { return e.MobilePhone }},
	{ColFecha, setDate, formatDate},
	{ColHora, setClock, formatClock},
	{ColEstadoCita, setText(func(e *models.AgendaEntry) *string { return &e.Status }), func(e *models.AgendaEntry) string { return e.Status }},
	{ColTratamiento, setText(func(e *models.AgendaEntry) *string { return &e.Treatment }), func(e *models.AgendaEntry) string { return e.Treatment }},
	{ColOdontologo, setText(func(e *models.AgendaEntry) *string { return &e.Practitioner }), func(e *models.AgendaEntry) string { return e.Practitioner }},
	{ColNotas, setText(func(e *models.AgendaEntry) *string { return &e.Notes }), func(e *models.AgendaEntry) string { return e.Notes }},
	{ColDuracion, setText(func(e *models.AgendaEntry) *string { return &e.DurationMinutes }), func(e *models.AgendaEntry) string { return e.DurationMinutes }},
}

// ParseRow converts one sheet record into an AgendaEntry.
//
// A row with no content returns ErrBlankRow. A row whose content lives only
// in unrecognized columns returns a *ParseError. Unparsable dates, times and
// timestamps are dropped to absent and listed in ParseResult.Dropped.
func ParseRow(row Row) (*ParseResult, error) {
	blank := true
	recognized := 0
	for key, raw := range row {
		if cellText(raw) == "" {
			continue
		}
		blank = false
		if isColumn(key) {
			recognized++
		}
	}
	if blank {
		return nil, ErrBlankRow
	}
	if recognized == 0 {
		return nil, &ParseError{Position: -1, Reason: "no recognized agenda columns"}
	}

	entry := &models.AgendaEntry{}
	result := &ParseResult{Entry: entry}
	for _, col := range columnTable {
		raw, ok := row[col.name]
		if !ok {
			continue
		}
		text := cellText(raw)
		if !col.set(entry, text) {
			result.Dropped = append(result.Dropped, FieldIssue{Column: col.name, Value: text})
		}
	}
	return result, nil
}

// ApplyFields overlays user-supplied fields onto entry using the same
// parsing rules as the sheet. An empty string clears the attribute.
// Fields that fail to parse are returned and leave entry untouched for
// that attribute.
func ApplyFields(entry *models.AgendaEntry, fields models.EntryFields) []FieldIssue {
	values := map[string]*string{
		ColRegistro:    fields.ExternalID,
		ColCitMod:      fields.LastModified,
		ColFechaAlta:   fields.CreatedAt,
		ColNumPac:      fields.PatientNumber,
		ColApellidos:   fields.LastName,
		ColNombre:      fields.FirstName,
		ColTelMovil:    fields.MobilePhone,
		ColFecha:       fields.Date,
		ColHora:        fields.Time,
		ColEstadoCita:  fields.Status,
		ColTratamiento: fields.Treatment,
		ColOdontologo:  fields.Practitioner,
		ColNotas:       fields.Notes,
		ColDuracion:    fields.DurationMinutes,
	}

	var issues []FieldIssue
	for _, col := range columnTable {
		v := values[col.name]
		if v == nil {
			continue
		}
		text := strings.TrimSpace(*v)
		scratch := entry.Clone()
		if !col.set(scratch, text) {
			issues = append(issues, FieldIssue{Column: col.name, Value: text})
			continue
		}
		col.set(entry, text)
	}
	return issues
}

// ToRow serializes entry into the 14 sheet cells in Columns order.
func ToRow(entry *models.AgendaEntry) []string {
	cells := make([]string, len(columnTable))
	for i, col := range columnTable {
		cells[i] = col.format(entry)
	}
	return cells
}

// CheckHeader compares a sheet header row against Columns and returns one
// warning per missing or unexpected column.
func CheckHeader(header []string) []string {
	present := make(map[string]bool, len(header))
	var warnings []string
	for _, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		present[h] = true
		if !isColumn(h) {
			warnings = append(warnings, fmt.Sprintf("unexpected column %q", h))
		}
	}
	for _, name := range Columns {
		if !present[name] {
			warnings = append(warnings, fmt.Sprintf("missing column %q", name))
		}
	}
	return warnings
}

// NormalizePhone strips spaces, hyphens and parentheses.
func NormalizePhone(s string) string {
	return phoneReplacer.Replace(s)
}

var phoneReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

func isColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}

func cellText(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s)
}

func parseIn(layouts []string, text string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate accepts YYYY-MM-DD and DD/MM/YYYY.
func ParseDate(text string) (models.Date, bool) {
	t, ok := parseIn(dateLayouts, strings.TrimSpace(text))
	if !ok {
		return models.Date{}, false
	}
	return models.DateOf(t), true
}

// ParseClock accepts HH:MM and HH:MM:SS.
func ParseClock(text string) (models.Clock, bool) {
	t, ok := parseIn(clockLayouts, strings.TrimSpace(text))
	if !ok {
		return models.Clock{}, false
	}
	return models.ClockOf(t), true
}

// ParseTimestamp accepts YYYY-MM-DD HH:MM:SS and YYYY-MM-DD HH:MM.
func ParseTimestamp(text string) (time.Time, bool) {
	return parseIn(timestampLayouts, strings.TrimSpace(text))
}

func setText(field func(*models.AgendaEntry) *string) func(*models.AgendaEntry, string) bool {
	return func(e *models.AgendaEntry, text string) bool {
		*field(e) = text
		return true
	}
}

func setTimestamp(field func(*models.AgendaEntry) **time.Time) func(*models.AgendaEntry, string) bool {
	return func(e *models.AgendaEntry, text string) bool {
		ptr := field(e)
		*ptr = nil
		if text == "" {
			return true
		}
		t, ok := ParseTimestamp(text)
		if !ok {
			return false
		}
		*ptr = &t
		return true
	}
}

func getTimestamp(field func(*models.AgendaEntry) *time.Time) func(*models.AgendaEntry) string {
	return func(e *models.AgendaEntry) string {
		if t := field(e); t != nil {
			return t.Format(models.TimestampLayout)
		}
		return ""
	}
}

func setPhone(e *models.AgendaEntry, text string) bool {
	e.MobilePhone = NormalizePhone(text)
	return true
}

func setDate(e *models.AgendaEntry, text string) bool {
	e.Date = nil
	if text == "" {
		return true
	}
	d, ok := ParseDate(text)
	if !ok {
		return false
	}
	e.Date = &d
	return true
}

func formatDate(e *models.AgendaEntry) string {
	if e.Date == nil {
		return ""
	}
	return e.Date.String()
}

func setClock(e *models.AgendaEntry, text string) bool {
	e.Time = nil
	if text == "" {
		return true
	}
	c, ok := ParseClock(text)
	if !ok {
		return false
	}
	e.Time = &c
	return true
}

func formatClock(e *models.AgendaEntry) string {
	if e.Time == nil {
		return ""
	}
	return e.Time.String()
}
