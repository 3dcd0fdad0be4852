// Package history flattens daily logs into per-dose rows and computes
// adherence statistics over them. Everything here is pure; callers load
// state from the stores and pass it in.
package history

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/medikeep/medikeep/internal/dailylog"
	"github.com/medikeep/medikeep/internal/medicine"
)

// Entry is one dose on one date
type Entry struct {
	Date     string `json:"date"`
	Medicine string `json:"medicine"`
	Time     string `json:"time"`
	Taken    bool   `json:"taken"`
}

// Stats summarizes adherence over a set of entries
type Stats struct {
	Total      int     `json:"total"`
	Taken      int     `json:"taken"`
	Missed     int     `json:"missed"`
	Percentage float64 `json:"percentage"`
}

// Filter selects entries. Zero values mean "no constraint"; set fields
// are ANDed together.
type Filter struct {
	Weekday *time.Weekday
	Month   *time.Month
	Year    int
	Taken   *bool
}

// Sort orders for SortEntries
const (
	ByDate     = "date"
	ByMedicine = "medicine"
	ByTime     = "time"
	ByStatus   = "status"
)

// BuildEntries flattens the log history into one row per scheduled
// dose: for every logged date and every medicine in the current list,
// each scheduled time yields a row. A time with no record in that
// day's log counts as not taken, so missed doses appear even when
// nothing was ever toggled. Times recorded in a log but no longer on
// the schedule are ignored.
func BuildEntries(logs map[string]dailylog.Entry, meds []medicine.Medicine) []Entry {
	seen := make(map[string]struct{})
	var entries []Entry

	for date, entry := range logs {
		for i := range meds {
			med := &meds[i]
			taken := paddedTimes(entry.PerMedicine[med.Key()].TakenTimes)
			for _, at := range med.ScheduledTimes {
				at = medicine.PadTime(at)
				key := date + "|" + med.Key() + "|" + at
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				entries = append(entries, Entry{Date: date, Medicine: med.Name, Time: at, Taken: taken[at]})
			}
		}
	}

	return entries
}

// paddedTimes re-keys a taken map to zero-padded times. Historical
// records may hold "9:00" where the schedule holds "09:00"; a true
// under either key wins.
func paddedTimes(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		k = medicine.PadTime(k)
		out[k] = out[k] || v
	}
	return out
}

// FilterEntries returns the entries matching every set field of f
func FilterEntries(entries []Entry, f Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			continue
		}
		if f.Weekday != nil && d.Weekday() != *f.Weekday {
			continue
		}
		if f.Month != nil && d.Month() != *f.Month {
			continue
		}
		if f.Year != 0 && d.Year() != f.Year {
			continue
		}
		if f.Taken != nil && e.Taken != *f.Taken {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SortEntries sorts in place on one column. Ties keep the existing
// relative order, so chained sorts compose.
func SortEntries(entries []Entry, column string, descending bool) {
	less := func(a, b Entry) bool {
		switch column {
		case ByMedicine:
			return strings.ToLower(a.Medicine) < strings.ToLower(b.Medicine)
		case ByTime:
			return a.Time < b.Time
		case ByStatus:
			return !a.Taken && b.Taken
		default:
			// Dates are YYYY-MM-DD so lexicographic order is date order.
			return a.Date < b.Date
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if descending {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

// Summarize computes adherence stats. Percentage is rounded to the
// nearest whole point and is 0 for an empty set, never NaN.
func Summarize(entries []Entry) Stats {
	s := Stats{Total: len(entries)}
	for _, e := range entries {
		if e.Taken {
			s.Taken++
		}
	}
	s.Missed = s.Total - s.Taken
	if s.Total > 0 {
		s.Percentage = math.Round(float64(s.Taken) / float64(s.Total) * 100)
	}
	return s
}
