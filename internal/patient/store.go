// Package patient keeps the device's patient and caregiver registry.
package patient

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/medikeep/medikeep/internal/errors"
	"github.com/medikeep/medikeep/internal/store"
	"go.uber.org/zap"
)

const (
	patientsKey    = "patients"
	responsibleKey = "responsible_persons"
)

// Store handles registry persistence
type Store struct {
	kv     *store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a new registry store
func NewStore(kv *store.Store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SaveParams holds the user-supplied fields for a registration
type SaveParams struct {
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	PhoneNumber         string       `json:"phone_number"`
	RegisteredBy        RegisteredBy `json:"registered_by"`
	ResponsiblePersonID *int         `json:"responsible_person_id,omitempty"`
}

// SavePatient validates and stores a new patient record
func (s *Store) SavePatient(p SaveParams) (*Patient, error) {
	if err := validatePerson(p.FirstName, p.LastName, p.PhoneNumber); err != nil {
		return nil, err
	}

	patients, err := s.Patients()
	if err != nil {
		return nil, err
	}

	if p.ResponsiblePersonID != nil {
		persons, err := s.ResponsiblePersons()
		if err != nil {
			return nil, err
		}
		found := false
		for _, rp := range persons {
			if rp.ID == *p.ResponsiblePersonID {
				found = true
				break
			}
		}
		if !found {
			return nil, apperrors.ErrResponsibleNotFound
		}
	}

	registeredBy := p.RegisteredBy
	if registeredBy == "" {
		registeredBy = RegisteredBySelf
	}

	maxID := 0
	for _, existing := range patients {
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}

	now := s.now()
	patient := Patient{
		ID:                  maxID + 1,
		FirstName:           strings.TrimSpace(p.FirstName),
		LastName:            strings.TrimSpace(p.LastName),
		PhoneNumber:         strings.TrimSpace(p.PhoneNumber),
		RegisteredBy:        registeredBy,
		ResponsiblePersonID: p.ResponsiblePersonID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	patients = append(patients, patient)
	if err := s.saveJSON(patientsKey, patients); err != nil {
		return nil, err
	}
	return &patient, nil
}

// SaveResponsiblePerson validates and stores a new caregiver record
func (s *Store) SaveResponsiblePerson(p SaveParams) (*ResponsiblePerson, error) {
	if err := validatePerson(p.FirstName, p.LastName, p.PhoneNumber); err != nil {
		return nil, err
	}

	persons, err := s.ResponsiblePersons()
	if err != nil {
		return nil, err
	}

	maxID := 0
	for _, rp := range persons {
		if rp.ID > maxID {
			maxID = rp.ID
		}
	}

	now := s.now()
	person := ResponsiblePerson{
		ID:          maxID + 1,
		FirstName:   strings.TrimSpace(p.FirstName),
		LastName:    strings.TrimSpace(p.LastName),
		PhoneNumber: strings.TrimSpace(p.PhoneNumber),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	persons = append(persons, person)
	if err := s.saveJSON(responsibleKey, persons); err != nil {
		return nil, err
	}
	return &person, nil
}

// Patients returns all registered patients
func (s *Store) Patients() ([]Patient, error) {
	var patients []Patient
	if err := s.loadJSON(patientsKey, &patients); err != nil {
		return nil, err
	}
	if patients == nil {
		patients = []Patient{}
	}
	return patients, nil
}

// ResponsiblePersons returns all registered caregivers
func (s *Store) ResponsiblePersons() ([]ResponsiblePerson, error) {
	var persons []ResponsiblePerson
	if err := s.loadJSON(responsibleKey, &persons); err != nil {
		return nil, err
	}
	if persons == nil {
		persons = []ResponsiblePerson{}
	}
	return persons, nil
}

// Current resolves the device's active patient. Exactly one registered
// patient is the healthy state. More than one means the registry is
// corrupt: both collections are cleared and the app returns to the
// unregistered state. Zero patients returns (nil, nil).
func (s *Store) Current() (*Patient, error) {
	patients, err := s.Patients()
	if err != nil {
		return nil, err
	}

	switch len(patients) {
	case 0:
		return nil, nil
	case 1:
		return &patients[0], nil
	default:
		s.logger.Warn("Multiple patients registered on a single device, resetting registry",
			zap.Int("count", len(patients)))
		if err := s.ClearAll(); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// ClearAll wipes both registry collections
func (s *Store) ClearAll() error {
	if err := s.kv.RemoveBlob(patientsKey); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to clear patients")
	}
	if err := s.kv.RemoveBlob(responsibleKey); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to clear responsible persons")
	}
	return nil
}

func (s *Store) loadJSON(key string, out interface{}) error {
	data, err := s.kv.GetBlob(key)
	if err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to read "+key)
	}
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("Registry collection is corrupted, treating as empty",
			zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *Store) saveJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to encode "+key)
	}
	if err := s.kv.SetBlob(key, data); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to write "+key)
	}
	return nil
}

func validatePerson(first, last, phone string) error {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(last) == "" {
		return apperrors.ErrNameRequired
	}
	if strings.TrimSpace(phone) == "" {
		return apperrors.ErrPhoneRequired
	}
	return nil
}

