package reminder

import (
	"sync"
	"testing"
	"time"

	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureNotifier) Notify(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type schedulerFixture struct {
	scheduler *Scheduler
	notifier  *captureNotifier
	store     *store.Store
	clock     *time.Time
}

func setupScheduler(t *testing.T) *schedulerFixture {
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &schedulerFixture{
		notifier: &captureNotifier{},
		store:    st,
	}
	now := time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC)
	f.clock = &now

	f.scheduler = NewScheduler(Config{CheckInterval: 30}, st, f.notifier, zap.NewNop()).
		WithClock(func() time.Time { return *f.clock })
	return f
}

func testMedicine() *medicine.Medicine {
	return &medicine.Medicine{
		ID:             1,
		Name:           "Aspirin",
		Quantity:       9,
		ScheduledTimes: []string{"08:00", "20:00"},
	}
}

func TestScheduler_SyncMedicine(t *testing.T) {
	f := setupScheduler(t)

	require.NoError(t, f.scheduler.SyncMedicine(testMedicine()))

	jobs, err := f.scheduler.ListScheduled()
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "medicine-1-08:00", jobs[0].ID)
	assert.Equal(t, "medicine-1-20:00", jobs[1].ID)
	assert.True(t, jobs[0].IsActive)
	assert.Equal(t, "Time for Aspirin", jobs[0].Title)
	assert.Contains(t, jobs[0].Body, "Aspirin")
	assert.Contains(t, jobs[0].Body, "9 doses remaining")

	// Clock is 07:00, so the 08:00 job fires later today.
	require.NotNil(t, jobs[0].NextRunAt)
	assert.WithinDuration(t, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), *jobs[0].NextRunAt, time.Second)
}

func TestScheduler_SyncReplacesSchedule(t *testing.T) {
	f := setupScheduler(t)

	med := testMedicine()
	require.NoError(t, f.scheduler.SyncMedicine(med))

	med.ScheduledTimes = []string{"12:00"}
	require.NoError(t, f.scheduler.SyncMedicine(med))

	jobs, err := f.scheduler.ListScheduled()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "medicine-1-12:00", jobs[0].ID)
}

func TestScheduler_CheckDueFiresOnce(t *testing.T) {
	f := setupScheduler(t)
	require.NoError(t, f.scheduler.SyncMedicine(testMedicine()))

	// Nothing due yet.
	f.scheduler.CheckDue()
	assert.Equal(t, 0, f.notifier.count())

	*f.clock = time.Date(2024, 3, 15, 8, 0, 30, 0, time.UTC)
	f.scheduler.CheckDue()
	assert.Equal(t, 1, f.notifier.count())

	// The job advanced to tomorrow; re-checking must not refire.
	f.scheduler.CheckDue()
	assert.Equal(t, 1, f.notifier.count())

	jobs, err := f.scheduler.ListScheduled()
	require.NoError(t, err)
	fired := jobs[0]
	assert.Equal(t, 1, fired.RunCount)
	require.NotNil(t, fired.NextRunAt)
	assert.WithinDuration(t, time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC), *fired.NextRunAt, time.Second)
}

func TestScheduler_CancelMedicine(t *testing.T) {
	f := setupScheduler(t)
	require.NoError(t, f.scheduler.SyncMedicine(testMedicine()))

	require.NoError(t, f.scheduler.CancelMedicine(1))

	jobs, err := f.scheduler.ListScheduled()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestScheduler_EmptyStockBody(t *testing.T) {
	f := setupScheduler(t)

	med := testMedicine()
	med.Quantity = 0
	require.NoError(t, f.scheduler.SyncMedicine(med))

	jobs, err := f.scheduler.ListScheduled()
	require.NoError(t, err)
	require.NotEmpty(t, jobs)
	assert.Contains(t, jobs[0].Body, "refill")
}

func TestScheduler_StartStop(t *testing.T) {
	f := setupScheduler(t)

	require.NoError(t, f.scheduler.Start())
	assert.True(t, f.scheduler.IsRunning())
	assert.Error(t, f.scheduler.Start())

	f.scheduler.Stop()
	assert.False(t, f.scheduler.IsRunning())
}
