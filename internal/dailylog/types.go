package dailylog

// MedicineLog is one medicine's slice of a day: a denormalized name
// snapshot plus which scheduled times were taken.
type MedicineLog struct {
	Name       string          `json:"name"`
	TakenTimes map[string]bool `json:"taken_times"`
}

// Entry is the adherence record for a single calendar date. Past entries
// are frozen; today's entry is live and mirrors the medicine collection.
type Entry struct {
	Date        string                 `json:"date"`
	PerMedicine map[string]MedicineLog `json:"per_medicine"`
}

// NewEntry returns an empty log entry for a date
func NewEntry(date string) Entry {
	return Entry{
		Date:        date,
		PerMedicine: map[string]MedicineLog{},
	}
}
