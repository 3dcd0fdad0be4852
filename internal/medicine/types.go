package medicine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Medicine is one tracked medicine with its daily dose schedule.
//
// ScheduledTimes is the source of truth for which times are meaningful.
// TakenToday is overlay data interpreted relative to the current schedule;
// entries for times that were edited out of the schedule are kept as
// historical records but ignored by due calculations.
type Medicine struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Photo          string          `json:"photo,omitempty"`
	Quantity       int             `json:"quantity"`
	ScheduledTimes []string        `json:"scheduled_times"`
	TakenToday     map[string]bool `json:"taken_today"`
	LastResetDate  string          `json:"last_reset_date"` // YYYY-MM-DD, local calendar day
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Key returns the canonical string key for this medicine in per-medicine
// maps. JSON object keys are always strings, so the id is stringified
// exactly once, here.
func (m *Medicine) Key() string {
	return strconv.Itoa(m.ID)
}

// PadTime normalizes a clock string to zero-padded HH:MM ("9:00" -> "09:00").
// Historical records may contain non-padded times; both sides of any map
// lookup must go through this.
func PadTime(t string) string {
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return t
	}
	h, m := parts[0], parts[1]
	if len(h) == 1 {
		h = "0" + h
	}
	if len(m) == 1 {
		m = "0" + m
	}
	return h + ":" + m
}

// ParseTime validates an HH:MM clock string and returns its padded form.
func ParseTime(t string) (string, error) {
	padded := PadTime(strings.TrimSpace(t))
	if _, err := time.Parse("15:04", padded); err != nil {
		return "", fmt.Errorf("invalid time %q: %w", t, err)
	}
	return padded, nil
}
