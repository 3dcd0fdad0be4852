// Package dailylog owns the date-keyed adherence log. Entries are
// replaced whole (last write wins); merging is the caller's concern.
package dailylog

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/medikeep/medikeep/internal/errors"
	"github.com/medikeep/medikeep/internal/store"
	"go.uber.org/zap"
)

const collectionKey = "daily_logs"

// Store handles daily log persistence
type Store struct {
	kv     *store.Store
	logger *zap.Logger
}

// NewStore creates a new daily log store
func NewStore(kv *store.Store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Get retrieves the entry for a date, or nil if there is none
func (s *Store) Get(date string) (*Entry, error) {
	logs, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	entry, ok := logs[date]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// GetAll returns the full date -> entry map
func (s *Store) GetAll() (map[string]Entry, error) {
	data, err := s.kv.GetBlob(collectionKey)
	if err != nil {
		return nil, apperrors.Wrap(err, "STORE_001", "failed to read daily logs")
	}
	if data == nil {
		return map[string]Entry{}, nil
	}

	var logs map[string]Entry
	if err := json.Unmarshal(data, &logs); err != nil {
		s.logger.Warn("Daily log collection is corrupted, treating as empty", zap.Error(err))
		return map[string]Entry{}, nil
	}
	if logs == nil {
		logs = map[string]Entry{}
	}
	return logs, nil
}

// Put replaces the entry for a date
func (s *Store) Put(date string, entry Entry) error {
	logs, err := s.GetAll()
	if err != nil {
		return err
	}
	entry.Date = date
	logs[date] = entry
	return s.save(logs)
}

// Delete removes a single date's entry
func (s *Store) Delete(date string) error {
	logs, err := s.GetAll()
	if err != nil {
		return err
	}
	delete(logs, date)
	return s.save(logs)
}

// DeleteAllForMonth removes every entry whose date falls in the given
// month, in a single read-filter-write pass.
func (s *Store) DeleteAllForMonth(month time.Month, year int) error {
	logs, err := s.GetAll()
	if err != nil {
		return err
	}

	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	removed := 0
	for date := range logs {
		if len(date) >= len(prefix) && date[:len(prefix)] == prefix {
			delete(logs, date)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}

	s.logger.Info("Deleted daily logs for month",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("removed", removed),
	)
	return s.save(logs)
}

// ClearAll removes the whole log collection
func (s *Store) ClearAll() error {
	if err := s.kv.RemoveBlob(collectionKey); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to clear daily logs")
	}
	return nil
}

func (s *Store) save(logs map[string]Entry) error {
	data, err := json.Marshal(logs)
	if err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to encode daily logs")
	}
	if err := s.kv.SetBlob(collectionKey, data); err != nil {
		return apperrors.Wrap(err, "STORE_001", "failed to write daily logs")
	}
	return nil
}
