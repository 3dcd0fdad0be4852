package tracker

import (
	"testing"
	"time"

	"github.com/medikeep/medikeep/internal/dailylog"
	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	tracker *Tracker
	meds    *medicine.Store
	logs    *dailylog.Store
	clock   *time.Time
}

func setup(t *testing.T) *fixture {
	kv, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	logger := zap.NewNop()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	f := &fixture{clock: &now}
	clock := func() time.Time { return *f.clock }

	f.meds = medicine.NewStore(kv, logger).WithClock(clock)
	f.logs = dailylog.NewStore(kv, logger)
	f.tracker = New(f.meds, f.logs, logger).WithClock(clock)
	return f
}

func (f *fixture) addMedicine(t *testing.T, name string, qty int, times ...string) *medicine.Medicine {
	med, err := f.meds.Create(medicine.CreateParams{Name: name, Quantity: qty, ScheduledTimes: times})
	require.NoError(t, err)
	return med
}

func (f *fixture) advanceDays(days int) {
	*f.clock = f.clock.AddDate(0, 0, days)
}

func TestReconcile_ResetsStaleMedicines(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00")

	_, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	f.advanceDays(1)
	require.NoError(t, f.tracker.Reconcile())

	got, err := f.meds.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"08:00": false}, got.TakenToday)
	assert.Equal(t, "2024-03-16", got.LastResetDate)

	entry, err := f.logs.Get("2024-03-16")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, map[string]bool{"08:00": false}, entry.PerMedicine[got.Key()].TakenTimes)
}

func TestReconcile_MaterializesScheduledTimes(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00", "20:00")

	require.NoError(t, f.tracker.Reconcile())

	// Every scheduled time is present as an explicit false, both on the
	// medicine and in today's log entry.
	got, err := f.meds.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"08:00": false, "20:00": false}, got.TakenToday)

	entry, err := f.logs.Get("2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, map[string]bool{"08:00": false, "20:00": false}, entry.PerMedicine[got.Key()].TakenTimes)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00", "20:00")

	_, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	// Same day: repeated passes keep the taken state intact.
	require.NoError(t, f.tracker.Reconcile())
	require.NoError(t, f.tracker.Reconcile())

	got, err := f.meds.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"08:00": true, "20:00": false}, got.TakenToday)

	entry, err := f.logs.Get("2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, map[string]bool{"08:00": true, "20:00": false}, entry.PerMedicine[got.Key()].TakenTimes)
}

func TestReconcile_UntouchedMedicineStillLogged(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 5, "08:00")

	require.NoError(t, f.tracker.Reconcile())

	entry, err := f.logs.Get("2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, entry.PerMedicine, med.Key())
}

func TestToggleDose_MarksTakenAndDecrements(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00", "20:00")

	result, err := f.tracker.ToggleDose(med.ID, "8:00")
	require.NoError(t, err)

	// The rebuilt map covers every scheduled time, not only the toggled one.
	assert.Equal(t, map[string]bool{"08:00": true, "20:00": false}, result.Medicine.TakenToday)
	assert.Equal(t, 9, result.Medicine.Quantity)
	assert.Equal(t, "2024-03-15", result.Medicine.LastResetDate)

	require.NotNil(t, result.Entry)
	assert.True(t, result.Entry.PerMedicine[med.Key()].TakenTimes["08:00"])
}

func TestToggleDose_UntakeKeepsQuantity(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00")

	_, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	result, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	assert.False(t, result.Medicine.TakenToday["08:00"])
	// Stock is never refunded on untake.
	assert.Equal(t, 9, result.Medicine.Quantity)
}

func TestToggleDose_QuantityFloorsAtZero(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 1, "08:00", "20:00")

	_, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	result, err := f.tracker.ToggleDose(med.ID, "20:00")
	require.NoError(t, err)

	assert.True(t, result.Medicine.TakenToday["20:00"])
	assert.Equal(t, 0, result.Medicine.Quantity)
}

func TestToggleDose_NonScheduledTimeKept(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00")

	result, err := f.tracker.ToggleDose(med.ID, "12:30")
	require.NoError(t, err)

	// A toggle for a time outside the schedule is a historical record.
	assert.True(t, result.Medicine.TakenToday["12:30"])
	assert.False(t, result.Medicine.TakenToday["08:00"])
}

func TestToggleDose_UnknownMedicine(t *testing.T) {
	f := setup(t)

	_, err := f.tracker.ToggleDose(99, "08:00")
	assert.Error(t, err)
}

func TestToggleDose_PadsTime(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "9:00")

	result, err := f.tracker.ToggleDose(med.ID, "9:00")
	require.NoError(t, err)

	_, hasPadded := result.Medicine.TakenToday["09:00"]
	_, hasRaw := result.Medicine.TakenToday["9:00"]
	assert.True(t, hasPadded)
	assert.False(t, hasRaw)
}

func TestExampleWeek(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00")

	result, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)
	assert.Equal(t, 9, result.Medicine.Quantity)

	f.advanceDays(1)
	require.NoError(t, f.tracker.Reconcile())

	got, err := f.meds.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"08:00": false}, got.TakenToday)
	assert.Equal(t, 9, got.Quantity)

	// Yesterday's record is frozen.
	yesterday, err := f.logs.Get("2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, yesterday)
	assert.True(t, yesterday.PerMedicine[med.Key()].TakenTimes["08:00"])
}

func TestOnChange(t *testing.T) {
	f := setup(t)
	med := f.addMedicine(t, "A", 10, "08:00")

	var events []string
	f.tracker.OnChange(func(event string) { events = append(events, event) })

	require.NoError(t, f.tracker.Reconcile())
	_, err := f.tracker.ToggleDose(med.ID, "08:00")
	require.NoError(t, err)

	assert.Equal(t, []string{"reconcile", "toggle"}, events)
}
