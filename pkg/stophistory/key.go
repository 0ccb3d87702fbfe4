package stophistory

import (
	"fmt"
	"time"
)

// dayFormat is the zero-padded year-month-day form used in store keys.
const dayFormat = "20060102"

// Key identifies the day history of one stop: the stop id plus the event's
// calendar day truncated to local midnight in the platform's reference
// timezone. Two keys are equal iff stop id and truncated day instant are
// equal, so any two timestamps on the same local day normalize to the same
// key.
type Key struct {
	StopID string
	Day    time.Time
}

// NormalizeKey derives the canonical key for stopID and any timestamp t.
// The day component is t truncated to 00:00:00.000 in loc; a timestamp
// exactly at midnight belongs to the day beginning at that instant.
func NormalizeKey(stopID string, t time.Time, loc *time.Location) (Key, error) {
	if stopID == "" {
		return Key{}, fmt.Errorf("%w: stop id is empty", ErrInvalidInput)
	}
	if t.IsZero() {
		return Key{}, fmt.Errorf("%w: timestamp is zero", ErrInvalidInput)
	}
	if loc == nil {
		loc = time.UTC
	}

	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Key{StopID: stopID, Day: day}, nil
}

// StoreKey renders the string presented to the external store:
// <prefix>_<stopID>_<YYYYMMDD>.
func (k Key) StoreKey(prefix string) string {
	return prefix + "_" + k.StopID + "_" + k.Day.Format(dayFormat)
}

func (k Key) String() string {
	return k.StopID + "/" + k.Day.Format(dayFormat)
}
