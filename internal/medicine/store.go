package medicine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/medikeep/medikeep/internal/errors"
	"github.com/medikeep/medikeep/internal/store"
	"go.uber.org/zap"
)

const collectionKey = "medicines"

// Store owns the medicine collection. No other component mutates medicines
// directly; everything goes through these operations.
type Store struct {
	kv     *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a new medicine store
func NewStore(kv *store.Store, logger *zap.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// CreateParams holds the user-supplied fields for a new medicine
type CreateParams struct {
	Name           string   `json:"name"`
	Photo          string   `json:"photo,omitempty"`
	Quantity       int      `json:"quantity"`
	ScheduledTimes []string `json:"scheduled_times"`
}

// Update carries a partial medicine mutation. Nil fields keep their
// previous value; supplied fields replace it outright (TakenToday is
// replaced, never merged — dose toggles always supply a complete map).
type Update struct {
	Name           *string         `json:"name,omitempty"`
	Photo          *string         `json:"photo,omitempty"`
	Quantity       *int            `json:"quantity,omitempty"`
	ScheduledTimes []string        `json:"scheduled_times,omitempty"`
	TakenToday     map[string]bool `json:"taken_today,omitempty"`
	LastResetDate  *string         `json:"last_reset_date,omitempty"`
}

// Create validates the params, assigns the next id and persists the
// collection. A new medicine always starts with an empty taken map and
// today as its reset date.
func (s *Store) Create(p CreateParams) (*Medicine, error) {
	times, err := normalizeTimes(p.ScheduledTimes)
	if err != nil {
		return nil, err
	}
	if err := validateName(p.Name); err != nil {
		return nil, err
	}
	if p.Quantity <= 0 {
		return nil, apperrors.ErrQuantityInvalid
	}

	meds, err := s.List()
	if err != nil {
		return nil, err
	}

	maxID := 0
	for _, m := range meds {
		if m.ID > maxID {
			maxID = m.ID
		}
	}

	now := s.now()
	med := Medicine{
		ID:             maxID + 1,
		Name:           strings.TrimSpace(p.Name),
		Photo:          p.Photo,
		Quantity:       p.Quantity,
		ScheduledTimes: times,
		TakenToday:     map[string]bool{},
		LastResetDate:  now.Format("2006-01-02"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	meds = append(meds, med)
	if err := s.save(meds); err != nil {
		return nil, err
	}
	return &med, nil
}

// Get retrieves a medicine by id
func (s *Store) Get(id int) (*Medicine, error) {
	meds, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range meds {
		if meds[i].ID == id {
			return &meds[i], nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrMedicineNotFound, "MED_001", fmt.Sprintf("medicine %d not found", id))
}

// List returns all medicines, normalizing TakenToday to an empty map if
// the stored record lacks one.
func (s *Store) List() ([]Medicine, error) {
	data, err := s.kv.GetBlob(collectionKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "STORE_001", "failed to read medicines")
	}
	if data == nil {
		return []Medicine{}, nil
	}

	var meds []Medicine
	if err := json.Unmarshal(data, &meds); err != nil {
		// A corrupted collection reads as empty so the app stays usable.
		s.logger.Warn("Medicines collection is corrupted, treating as empty", zap.Error(err))
		return []Medicine{}, nil
	}

	for i := range meds {
		if meds[i].TakenToday == nil {
			meds[i].TakenToday = map[string]bool{}
		}
	}
	return meds, nil
}

// UpdateMedicine applies a partial update and persists the collection
func (s *Store) UpdateMedicine(id int, u Update) (*Medicine, error) {
	meds, err := s.List()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range meds {
		if meds[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, apperrors.Wrap(apperrors.ErrMedicineNotFound, "MED_001", fmt.Sprintf("medicine %d not found", id))
	}

	med := &meds[idx]
	if u.Name != nil {
		if err := validateName(*u.Name); err != nil {
			return nil, err
		}
		med.Name = strings.TrimSpace(*u.Name)
	}
	if u.Photo != nil {
		med.Photo = *u.Photo
	}
	if u.Quantity != nil {
		if *u.Quantity < 0 {
			return nil, apperrors.ErrQuantityInvalid
		}
		med.Quantity = *u.Quantity
	}
	if u.ScheduledTimes != nil {
		times, err := normalizeTimes(u.ScheduledTimes)
		if err != nil {
			return nil, err
		}
		med.ScheduledTimes = times
	}
	if u.TakenToday != nil {
		med.TakenToday = u.TakenToday
	}
	if u.LastResetDate != nil {
		med.LastResetDate = *u.LastResetDate
	}
	med.UpdatedAt = s.now()

	if err := s.save(meds); err != nil {
		return nil, err
	}

	updated := *med
	return &updated, nil
}

// Delete removes a medicine. Cancelling its reminders and tolerating its
// orphaned log entries is the caller's responsibility; log rows are not
// cascade-deleted.
func (s *Store) Delete(id int) error {
	meds, err := s.List()
	if err != nil {
		return err
	}

	kept := meds[:0]
	found := false
	for _, m := range meds {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return apperrors.Wrap(apperrors.ErrMedicineNotFound, "MED_001", fmt.Sprintf("medicine %d not found", id))
	}
	return s.save(kept)
}

func (s *Store) save(meds []Medicine) error {
	data, err := json.Marshal(meds)
	if err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to encode medicines")
	}
	if err := s.kv.SetBlob(collectionKey, data); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to write medicines")
	}
	return nil
}

func validateName(name string) error {
	// Character count, not bytes; names are often accented.
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 50 {
		return apperrors.ErrNameRequired
	}
	return nil
}

func normalizeTimes(times []string) ([]string, error) {
	if len(times) == 0 {
		return nil, apperrors.ErrTimesRequired
	}

	seen := make(map[string]bool, len(times))
	out := make([]string, 0, len(times))
	for _, t := range times {
		padded, err := ParseTime(t)
		if err != nil {
			return nil, apperrors.Wrap(err, "VALID_004", "scheduled times must be unique HH:MM values")
		}
		if seen[padded] {
			return nil, apperrors.ErrTimeFormat
		}
		seen[padded] = true
		out = append(out, padded)
	}
	sort.Strings(out)
	return out, nil
}
