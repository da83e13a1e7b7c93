package agenda

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denapp-control/backend/internal/storage/models"
)

func syncedService(t *testing.T, rows ...Row) *Service {
	t.Helper()
	svc := NewService(newFakeStore(rows...), Options{})
	_, err := svc.Sync(context.Background(), models.SyncTriggerStartup)
	require.NoError(t, err)
	return svc
}

func TestSearchIgnoresCaseAndAccents(t *testing.T) {
	notes := appointment("3", "PAC0003", "Marta", "2024-12-22", "12:00")
	notes[ColNotas] = "Revisión ortodoncia"
	notes[ColApellidos] = "López"
	svc := syncedService(t,
		appointment("1", "PAC0001", "Ana", "2024-12-20", "10:30"),
		appointment("2", "PAC0002", "Íñigo", "2024-12-21", "09:00"),
		notes,
	)

	tests := []struct {
		q    string
		want int
	}{
		{"garcia", 2},
		{"INIGO", 1},
		{"revision", 1},
		{"ruiz", 3},
		{"  ", 0},
		{"nadie", 0},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			got := svc.Search(tt.q)
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestExportBounds(t *testing.T) {
	undated := appointment("4", "PAC0004", "Sin", "", "")
	svc := syncedService(t,
		appointment("1", "PAC0001", "Ana", "2024-12-20", "10:30"),
		appointment("2", "PAC0002", "Luis", "2024-12-21", "09:00"),
		appointment("3", "PAC0003", "Marta", "2024-12-22", "12:00"),
		undated,
	)
	day := func(d int) *models.Date { return &models.Date{Year: 2024, Month: time.December, Day: d} }

	assert.Len(t, svc.Export(nil, nil), 4)
	assert.Len(t, svc.Export(day(21), nil), 2)
	assert.Len(t, svc.Export(nil, day(21)), 2)
	assert.Len(t, svc.Export(day(21), day(21)), 1)
	assert.Empty(t, svc.Export(day(23), nil))
}

func TestStatsDistributions(t *testing.T) {
	unassigned := appointment("3", "PAC0003", "Marta", "2024-12-22", "12:00")
	unassigned[ColOdontologo] = ""
	unassigned[ColEstadoCita] = ""
	svc := syncedService(t,
		appointment("1", "PAC0001", "Ana", "2024-12-20", "10:30"),
		appointment("2", "PAC0002", "Luis", "2024-12-21", "09:00"),
		unassigned,
	)

	stats := svc.Stats(models.Date{Year: 2024, Month: time.December, Day: 21})

	assert.Equal(t, 3, stats.TotalAppointments)
	assert.Equal(t, 1, stats.TodayAppointments)
	assert.Equal(t, 1, stats.UpcomingAppointments)
	assert.Equal(t, map[string]int{models.StatusScheduled: 2, NoStatusLabel: 1}, stats.StatusDistribution)
	assert.Equal(t, map[string]int{"Dra. Ruiz": 2, NoPractitionerLabel: 1}, stats.DoctorDistribution)
	assert.NotNil(t, stats.LastSync)
	assert.NotNil(t, stats.CacheUpdatedAt)
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*60*60)
	want := models.DateOf(time.Now().In(loc))
	assert.Equal(t, want, Today(loc))
}
