// Package transit defines the arrival/departure event record shared by the
// ingestion pipeline, the history cache, and downstream prediction consumers.
package transit

import (
	"fmt"
	"sort"
	"time"
)

// EventKind discriminates between an observed arrival and an observed departure.
type EventKind string

const (
	Arrival   EventKind = "arrival"
	Departure EventKind = "departure"
)

// ArrivalDeparture is one observed vehicle arrival or departure at a stop.
//
// Values are immutable once constructed: the cache never mutates a stored
// event, it only appends new ones. Seq is an ingestion sequence number
// assigned on first append from the day history's highest stored Seq; it is
// the deterministic tie-break for events that share the same EventTime.
type ArrivalDeparture struct {
	StopID    string    `json:"stopId"`
	EventTime time.Time `json:"eventTime"`
	Kind      EventKind `json:"kind"`
	Seq       uint64    `json:"seq"`

	// Payload fields carried for downstream consumers. Opaque to the cache.
	VehicleID     string     `json:"vehicleId,omitempty"`
	TripID        string     `json:"tripId,omitempty"`
	RouteID       string     `json:"routeId,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// Validate checks the fields the cache depends on. Payload fields are not
// inspected.
func (e ArrivalDeparture) Validate() error {
	if e.StopID == "" {
		return fmt.Errorf("stop id is empty")
	}
	if e.EventTime.IsZero() {
		return fmt.Errorf("event time is zero")
	}
	if e.Kind != Arrival && e.Kind != Departure {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Before reports whether e orders before other: ascending EventTime, with
// ascending Seq breaking ties between events stamped at the same instant.
func (e ArrivalDeparture) Before(other ArrivalDeparture) bool {
	if !e.EventTime.Equal(other.EventTime) {
		return e.EventTime.Before(other.EventTime)
	}
	return e.Seq < other.Seq
}

// SortHistory sorts events in place into chronological order so readers never
// have to re-sort.
func SortHistory(events []ArrivalDeparture) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}
