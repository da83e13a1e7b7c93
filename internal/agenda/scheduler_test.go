package agenda

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denapp-control/backend/internal/storage/models"
)

func TestSchedulerRequiresSheet(t *testing.T) {
	svc := NewService(nil, Options{})
	s := NewScheduler(svc, 5, "")

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrUnconfigured)
	assert.False(t, s.Running())
	assert.Nil(t, s.NextRun())
	s.Stop()
}

func TestSchedulerRunsStartupSync(t *testing.T) {
	history := &memoryHistory{}
	svc := NewService(clinicStore(), Options{History: history})
	s := NewScheduler(svc, 5, "")

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		return svc.Statistics().SuccessfulCycles == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, svc.Cache().Len())

	runs, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.SyncTriggerStartup, runs[0].Trigger)

	assert.True(t, s.Running())
	require.Eventually(t, func() bool { return s.NextRun() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), *s.NextRun(), 5*time.Second)
	assert.NotNil(t, s.NextDailyRun())

	status := svc.Status()
	assert.True(t, status.SchedulerRunning)
	assert.NotNil(t, status.NextSyncAt)
}

func TestSchedulerStop(t *testing.T) {
	svc := NewService(clinicStore(), Options{})
	s := NewScheduler(svc, 1, DefaultDailySpec)
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.Running())
	assert.Nil(t, s.NextRun())
	assert.Equal(t, 1, svc.Statistics().TotalCycles)

	// Stopping twice is harmless.
	s.Stop()
}

func TestSchedulerRejectsBadDailySpec(t *testing.T) {
	svc := NewService(clinicStore(), Options{})
	s := NewScheduler(svc, 5, "not a cron spec")

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.False(t, s.Running())
}

func TestTriggerSyncIsManual(t *testing.T) {
	svc := NewService(clinicStore(), Options{})
	s := NewScheduler(svc, 5, "")

	result, err := s.TriggerSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncTriggerManual, result.Trigger)
	assert.Equal(t, 2, result.EntriesCached)
}
