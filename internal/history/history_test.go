package history

import (
	"testing"
	"time"

	"github.com/medikeep/medikeep/internal/dailylog"
	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logsWith(entries ...dailylog.Entry) map[string]dailylog.Entry {
	logs := make(map[string]dailylog.Entry, len(entries))
	for _, e := range entries {
		logs[e.Date] = e
	}
	return logs
}

func logEntry(date, medKey, name string, taken map[string]bool) dailylog.Entry {
	e := dailylog.NewEntry(date)
	e.PerMedicine[medKey] = dailylog.MedicineLog{Name: name, TakenTimes: taken}
	return e
}

func TestBuildEntries(t *testing.T) {
	logs := logsWith(
		logEntry("2024-03-14", "1", "Aspirin", map[string]bool{"08:00": true, "20:00": false}),
	)
	meds := []medicine.Medicine{{ID: 1, Name: "Aspirin", ScheduledTimes: []string{"08:00", "20:00"}}}

	entries := BuildEntries(logs, meds)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "2024-03-14", e.Date)
		assert.Equal(t, "Aspirin", e.Medicine)
	}
}

func TestBuildEntries_MissedDoseWithoutRecord(t *testing.T) {
	// A day logged with nothing toggled still yields one missed row per
	// scheduled time.
	logs := logsWith(dailylog.NewEntry("2024-03-14"))
	meds := []medicine.Medicine{{ID: 1, Name: "Aspirin", ScheduledTimes: []string{"08:00"}}}

	entries := BuildEntries(logs, meds)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Date: "2024-03-14", Medicine: "Aspirin", Time: "08:00", Taken: false}, entries[0])
}

func TestBuildEntries_OrphanTimeExcluded(t *testing.T) {
	// A recorded time that is no longer on the schedule never becomes a
	// row; only scheduled times count toward adherence.
	logs := logsWith(
		logEntry("2024-03-14", "1", "Aspirin", map[string]bool{"12:30": true}),
	)
	meds := []medicine.Medicine{{ID: 1, Name: "Aspirin", ScheduledTimes: []string{"08:00"}}}

	entries := BuildEntries(logs, meds)
	require.Len(t, entries, 1)
	assert.Equal(t, "08:00", entries[0].Time)
	assert.False(t, entries[0].Taken)
}

func TestBuildEntries_PadsAcrossRecords(t *testing.T) {
	// Historical records may hold "9:00" while the schedule holds "09:00";
	// both describe the same dose.
	logs := logsWith(
		logEntry("2024-03-15", "1", "Aspirin", map[string]bool{"9:00": true}),
	)
	meds := []medicine.Medicine{{ID: 1, Name: "Aspirin", ScheduledTimes: []string{"09:00"}}}

	entries := BuildEntries(logs, meds)
	require.Len(t, entries, 1)
	assert.Equal(t, "09:00", entries[0].Time)
	assert.True(t, entries[0].Taken)
}

func TestBuildEntries_NoLogsNoRows(t *testing.T) {
	meds := []medicine.Medicine{{ID: 2, Name: "Doliprane", ScheduledTimes: []string{"12:00"}}}

	entries := BuildEntries(nil, meds)
	assert.Empty(t, entries)
}

func TestBuildEntries_UsesCurrentName(t *testing.T) {
	// A renamed medicine shows its current name for past dates too.
	logs := logsWith(
		logEntry("2024-03-14", "1", "Asprin", map[string]bool{"08:00": true}),
	)
	meds := []medicine.Medicine{{ID: 1, Name: "Aspirin", ScheduledTimes: []string{"08:00"}}}

	entries := BuildEntries(logs, meds)
	require.Len(t, entries, 1)
	assert.Equal(t, "Aspirin", entries[0].Medicine)
}

func TestFilterEntries(t *testing.T) {
	entries := []Entry{
		{Date: "2024-03-15", Medicine: "A", Time: "08:00", Taken: true},  // Friday
		{Date: "2024-03-16", Medicine: "A", Time: "08:00", Taken: false}, // Saturday
		{Date: "2024-04-01", Medicine: "B", Time: "08:00", Taken: true},  // April
	}

	friday := time.Friday
	got := FilterEntries(entries, Filter{Weekday: &friday})
	require.Len(t, got, 1)
	assert.Equal(t, "2024-03-15", got[0].Date)

	march := time.March
	got = FilterEntries(entries, Filter{Month: &march})
	assert.Len(t, got, 2)

	taken := true
	got = FilterEntries(entries, Filter{Month: &march, Taken: &taken})
	require.Len(t, got, 1)
	assert.Equal(t, "2024-03-15", got[0].Date)

	got = FilterEntries(entries, Filter{Year: 2023})
	assert.Empty(t, got)
}

func TestFilterEntries_SkipsBadDates(t *testing.T) {
	entries := []Entry{
		{Date: "not-a-date", Medicine: "A", Time: "08:00"},
		{Date: "2024-03-15", Medicine: "A", Time: "08:00"},
	}

	got := FilterEntries(entries, Filter{})
	assert.Len(t, got, 1)
}

func TestSortEntries(t *testing.T) {
	entries := []Entry{
		{Date: "2024-03-16", Medicine: "b", Time: "20:00", Taken: true},
		{Date: "2024-03-15", Medicine: "A", Time: "08:00", Taken: false},
	}

	SortEntries(entries, ByDate, false)
	assert.Equal(t, "2024-03-15", entries[0].Date)

	SortEntries(entries, ByDate, true)
	assert.Equal(t, "2024-03-16", entries[0].Date)

	SortEntries(entries, ByMedicine, false)
	assert.Equal(t, "A", entries[0].Medicine)

	SortEntries(entries, ByStatus, false)
	assert.False(t, entries[0].Taken)
}

func TestSummarize(t *testing.T) {
	entries := []Entry{
		{Taken: true}, {Taken: true}, {Taken: true}, {Taken: false},
	}

	stats := Summarize(entries)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Taken)
	assert.Equal(t, 1, stats.Missed)
	assert.InDelta(t, 75.0, stats.Percentage, 0.001)
}

func TestSummarize_RoundsPercentage(t *testing.T) {
	entries := []Entry{
		{Taken: true}, {Taken: true}, {Taken: false},
	}

	stats := Summarize(entries)
	assert.Equal(t, 67.0, stats.Percentage)
}

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.Percentage)
}
