package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denapp-control/backend/internal/storage/models"
)

func fullRow() Row {
	return Row{
		ColRegistro:    "12",
		ColCitMod:      "2025-01-10 08:15:00",
		ColFechaAlta:   "2025-01-02 17:40",
		ColNumPac:      "PAC0001",
		ColApellidos:   "García López",
		ColNombre:      "Ana",
		ColTelMovil:    "(+34) 600-123 456",
		ColFecha:       "2025-01-15",
		ColHora:        "10:30",
		ColEstadoCita:  models.StatusConfirmed,
		ColTratamiento: "Limpieza",
		ColOdontologo:  "Dra. Ruiz",
		ColNotas:       "",
		ColDuracion:    30,
	}
}

func TestParseRowFullRecord(t *testing.T) {
	res, err := ParseRow(fullRow())
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)

	e := res.Entry
	assert.Equal(t, "12", e.ExternalID)
	require.NotNil(t, e.LastModified)
	assert.Equal(t, time.Date(2025, 1, 10, 8, 15, 0, 0, time.UTC), *e.LastModified)
	require.NotNil(t, e.CreatedAt)
	assert.Equal(t, time.Date(2025, 1, 2, 17, 40, 0, 0, time.UTC), *e.CreatedAt)
	assert.Equal(t, "+34600123456", e.MobilePhone)
	assert.Equal(t, "30", e.DurationMinutes)
	assert.Equal(t, "Ana García López", e.FullName())
	assert.Equal(t, "PAC0001|2025-01-15|10:30", e.CacheKey())
}

func TestParseRowDateFormats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *models.Date
	}{
		{"iso", "2025-01-15", &models.Date{Year: 2025, Month: time.January, Day: 15}},
		{"day first", "15/01/2025", &models.Date{Year: 2025, Month: time.January, Day: 15}},
		{"month name", "Jan 1 2025", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseRow(Row{ColNumPac: "PAC0001", ColFecha: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Entry.Date)
			if tt.want == nil && tt.in != "" {
				assert.Equal(t, []FieldIssue{{Column: ColFecha, Value: tt.in}}, res.Dropped)
			} else {
				assert.Empty(t, res.Dropped)
			}
		})
	}
}

func TestParseRowTimeFormats(t *testing.T) {
	res, err := ParseRow(Row{ColNumPac: "PAC0001", ColHora: "09:05:30"})
	require.NoError(t, err)
	require.NotNil(t, res.Entry.Time)
	assert.Equal(t, "09:05", res.Entry.Time.String())

	res, err = ParseRow(Row{ColNumPac: "PAC0001", ColHora: "9am"})
	require.NoError(t, err)
	assert.Nil(t, res.Entry.Time)
	assert.Len(t, res.Dropped, 1)
}

func TestParseRowBlank(t *testing.T) {
	_, err := ParseRow(Row{ColNumPac: "", ColNombre: "  ", ColDuracion: ""})
	assert.ErrorIs(t, err, ErrBlankRow)

	_, err = ParseRow(Row{})
	assert.ErrorIs(t, err, ErrBlankRow)
}

func TestParseRowOnlyUnknownColumns(t *testing.T) {
	_, err := ParseRow(Row{"Paciente": "Ana", ColNumPac: ""})

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -1, perr.Position)
}

func TestCacheKeyFallsBackToID(t *testing.T) {
	res, err := ParseRow(Row{ColNumPac: "PAC0001", ColFecha: "2025-01-15"})
	require.NoError(t, err)
	res.Entry.ID = "entry-1"
	assert.Equal(t, "entry-1", res.Entry.CacheKey())
}

func TestToRowOrderAndRoundTrip(t *testing.T) {
	res, err := ParseRow(fullRow())
	require.NoError(t, err)

	cells := ToRow(res.Entry)
	require.Len(t, cells, len(Columns))
	assert.Equal(t, []string{
		"12", "2025-01-10 08:15:00", "2025-01-02 17:40:00", "PAC0001", "García López",
		"Ana", "+34600123456", "2025-01-15", "10:30", models.StatusConfirmed,
		"Limpieza", "Dra. Ruiz", "", "30",
	}, cells)

	row := Row{}
	for i, name := range Columns {
		row[name] = cells[i]
	}
	again, err := ParseRow(row)
	require.NoError(t, err)
	assert.Equal(t, res.Entry, again.Entry)
}

func TestApplyFields(t *testing.T) {
	entry := &models.AgendaEntry{PatientNumber: "PAC0001", Notes: "old"}
	date := "16/01/2025"
	clock := "bad"
	notes := ""
	phone := "600 11 22 33"

	issues := ApplyFields(entry, models.EntryFields{
		Date:        &date,
		Time:        &clock,
		Notes:       &notes,
		MobilePhone: &phone,
	})

	assert.Equal(t, []FieldIssue{{Column: ColHora, Value: "bad"}}, issues)
	require.NotNil(t, entry.Date)
	assert.Equal(t, "2025-01-16", entry.Date.String())
	assert.Nil(t, entry.Time)
	assert.Equal(t, "", entry.Notes)
	assert.Equal(t, "600112233", entry.MobilePhone)
	assert.Equal(t, "PAC0001", entry.PatientNumber)
}

func TestApplyFieldsKeepsValueOnIssue(t *testing.T) {
	entry := &models.AgendaEntry{Date: &models.Date{Year: 2025, Month: time.March, Day: 3}}
	bad := "mañana"

	issues := ApplyFields(entry, models.EntryFields{Date: &bad})

	require.Len(t, issues, 1)
	require.NotNil(t, entry.Date)
	assert.Equal(t, "2025-03-03", entry.Date.String())
}

func TestCheckHeader(t *testing.T) {
	assert.Empty(t, CheckHeader(Columns))

	header := append([]string{"Paciente"}, Columns[:13]...)
	assert.Equal(t, []string{`unexpected column "Paciente"`, `missing column "Duracion"`}, CheckHeader(header))
}
