// Package tracker implements the two core mutations of the adherence
// model: the day-rollover reconcile pass and the dose toggle.
package tracker

import (
	"time"

	"github.com/medikeep/medikeep/internal/dailylog"
	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/metrics"
	"go.uber.org/zap"
)

// ChangeListener is called after medicine or log state changed, so the
// UI layer can refresh its views.
type ChangeListener func(event string)

// Tracker coordinates the medicine and daily log stores. There is one
// logical writer at a time by construction; ordering between the two
// stores comes from plain call sequencing, not transactions.
type Tracker struct {
	meds     *medicine.Store
	logs     *dailylog.Store
	logger   *zap.Logger
	now      func() time.Time
	onChange ChangeListener
}

// New creates a new tracker
func New(meds *medicine.Store, logs *dailylog.Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		meds:   meds,
		logs:   logs,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// OnChange registers the change listener
func (t *Tracker) OnChange(fn ChangeListener) *Tracker {
	t.onChange = fn
	return t
}

// Today returns the current local calendar date as YYYY-MM-DD
func (t *Tracker) Today() string {
	return t.now().Format("2006-01-02")
}

// Reconcile runs the day-rollover pass. For every medicine whose taken
// state belongs to a prior day it resets the taken state and stamps
// today; every medicine then gets each scheduled time materialized as
// an explicit false if no value is recorded, and today's log entry is
// rebuilt from the full medicine list. Running it again on the same day
// is a no-op pass-through producing the same snapshot, so activation
// hooks may call it freely.
//
// Per-medicine persistence failures are logged and skipped; one bad row
// must not block the rest of the pass.
func (t *Tracker) Reconcile() error {
	today := t.Today()

	meds, err := t.meds.List()
	if err != nil {
		return err
	}

	resets := 0
	for i := range meds {
		med := &meds[i]
		stale := isStale(med.LastResetDate, today)
		if stale {
			med.TakenToday = map[string]bool{}
			med.LastResetDate = today
			resets++
		}
		if !materializeSchedule(med) && !stale {
			continue
		}

		_, err := t.meds.UpdateMedicine(med.ID, medicine.Update{
			TakenToday:    copyTaken(med.TakenToday),
			LastResetDate: &today,
		})
		if err != nil {
			// Fire and continue: the in-memory copy is already reset, so
			// today's log entry stays correct either way.
			t.logger.Error("Failed to persist medicine reset",
				zap.Int("medicine_id", med.ID),
				zap.Error(err))
			metrics.Default().RecordStorageError()
		}
	}

	entry := dailylog.NewEntry(today)
	for i := range meds {
		med := &meds[i]
		entry.PerMedicine[med.Key()] = dailylog.MedicineLog{
			Name:       med.Name,
			TakenTimes: copyTaken(med.TakenToday),
		}
	}
	if err := t.logs.Put(today, entry); err != nil {
		return err
	}

	metrics.Default().RecordReconcile(resets)
	if resets > 0 {
		t.logger.Info("Day rollover reconciled",
			zap.String("date", today),
			zap.Int("medicines_reset", resets))
	}

	t.notify("reconcile")
	return nil
}

// ToggleResult is the updated state after a dose toggle, for UI refresh
type ToggleResult struct {
	Medicine *medicine.Medicine `json:"medicine"`
	Entry    *dailylog.Entry    `json:"entry"`
}

// ToggleDose flips the taken state of one dose for today.
//
// The medicine's taken map is rebuilt in full over every scheduled time
// on each toggle, so it never silently drops a scheduled time and heals
// previously missing keys. A toggled time that is no longer scheduled is
// kept as a historical record. Marking a dose taken decrements stock
// (floored at zero); un-marking never refunds it.
func (t *Tracker) ToggleDose(medicineID int, at string) (*ToggleResult, error) {
	med, err := t.meds.Get(medicineID)
	if err != nil {
		return nil, err
	}

	at = medicine.PadTime(at)
	today := t.Today()

	wasTaken := med.TakenToday[at]
	nowTaken := !wasTaken

	taken := make(map[string]bool, len(med.ScheduledTimes)+1)
	for _, st := range med.ScheduledTimes {
		st = medicine.PadTime(st)
		if st == at {
			taken[st] = nowTaken
		} else {
			taken[st] = med.TakenToday[st]
		}
	}
	if _, ok := taken[at]; !ok {
		taken[at] = nowTaken
	}

	quantity := med.Quantity
	if nowTaken && quantity > 0 {
		quantity--
	}

	updated, err := t.meds.UpdateMedicine(medicineID, medicine.Update{
		TakenToday:    taken,
		LastResetDate: &today,
		Quantity:      &quantity,
	})
	if err != nil {
		return nil, err
	}

	// Second, independent write. A crash between the two leaves the
	// stores inconsistent until the next reconcile pass resynchronizes
	// the log from medicine state.
	entry, err := t.logs.Get(today)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		e := dailylog.NewEntry(today)
		entry = &e
	}
	entry.PerMedicine[updated.Key()] = dailylog.MedicineLog{
		Name:       updated.Name,
		TakenTimes: copyTaken(taken),
	}
	if err := t.logs.Put(today, *entry); err != nil {
		return nil, err
	}

	metrics.Default().RecordToggle(nowTaken)
	t.logger.Info("Dose toggled",
		zap.Int("medicine_id", medicineID),
		zap.String("time", at),
		zap.Bool("taken", nowTaken),
		zap.Int("quantity", quantity))

	t.notify("toggle")
	return &ToggleResult{Medicine: updated, Entry: entry}, nil
}

// NotifyDataChanged lets callers that mutate stores directly (CRUD
// handlers) trigger the same UI refresh fan-out the tracker uses.
func (t *Tracker) NotifyDataChanged(event string) {
	t.notify(event)
}

func (t *Tracker) notify(event string) {
	if t.onChange != nil {
		t.onChange(event)
	}
}

// isStale reports whether a last-reset stamp belongs to a prior (or
// unparseable) day. An absent stamp counts as stale.
func isStale(lastReset, today string) bool {
	if lastReset == "" {
		return true
	}
	if d, err := time.Parse("2006-01-02", lastReset); err == nil {
		return d.Format("2006-01-02") != today
	}
	// Legacy stamps may carry a full timestamp; compare the date part.
	if d, err := time.Parse(time.RFC3339, lastReset); err == nil {
		return d.Format("2006-01-02") != today
	}
	return true
}

// materializeSchedule fills the taken map with an explicit false for
// every scheduled time that has no value yet, so a day with no toggles
// still records each dose as missed. Reports whether anything was
// added.
func materializeSchedule(med *medicine.Medicine) bool {
	if med.TakenToday == nil {
		med.TakenToday = map[string]bool{}
	}
	changed := false
	for _, at := range med.ScheduledTimes {
		at = medicine.PadTime(at)
		if _, ok := med.TakenToday[at]; !ok {
			med.TakenToday[at] = false
			changed = true
		}
	}
	return changed
}

func copyTaken(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
