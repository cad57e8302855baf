package pantry

import (
	"fmt"
	"time"
)

// Status is the freshness of an item, computed on every read
type Status string

const (
	StatusExpired  Status = "expired"
	StatusCritical Status = "critical"
	StatusExpiring Status = "expiring"
	StatusFresh    Status = "fresh"
)

// throwAwayAfterDays is how long past expiry an item is flagged for disposal
const throwAwayAfterDays = 3

// Date truncates t to its calendar day
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar date n days after today
func AddDays(today time.Time, n int) string {
	return Date(today).AddDate(0, 0, n).Format(DateLayout)
}

// DaysUntil counts calendar days from today to an expiry date; negative
// once the date has passed
func DaysUntil(expiry string, today time.Time) (int, error) {
	d, err := time.Parse(DateLayout, expiry)
	if err != nil {
		return 0, fmt.Errorf("parsing expiry date: %w", err)
	}
	return int(d.Sub(Date(today)).Hours() / 24), nil
}

// StatusFor classifies a number of days until expiry
func StatusFor(days int) Status {
	switch {
	case days < 0:
		return StatusExpired
	case days <= 1:
		return StatusCritical
	case days <= 3:
		return StatusExpiring
	default:
		return StatusFresh
	}
}

// ShouldThrowAway reports whether an item expired long enough ago that it
// should be discarded rather than checked
func ShouldThrowAway(days int) bool {
	return days < -throwAwayAfterDays
}
