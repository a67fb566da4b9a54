// Package trigger consumes change notifications from source tables and turns
// bursts of events into coalesced re-index jobs.
//
// Sources emit one notification per row change; a migration touching many
// rows would otherwise produce one embedding job per row. The listener
// debounces per source table: events arriving within the batch delay window
// extend it, and when the window elapses the buffered events collapse into a
// single job carrying the deduplicated set of affected resources.
package trigger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the change kind reported by a source.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Event is one change notification. Events are ephemeral: they exist only
// inside the debounce window and are never persisted.
type Event struct {
	SourceTable  string    `json:"source_table"`
	Operation    Operation `json:"operation"`
	AffectedKeys []string  `json:"affected_keys"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ParseEvent decodes a notification payload.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parsing trigger event: %w", err)
	}
	if ev.SourceTable == "" {
		return Event{}, fmt.Errorf("trigger event missing source_table")
	}
	return ev, nil
}

// Job is a coalesced re-index request handed to the vectorization pipeline.
type Job struct {
	// ID identifies the job in logs.
	ID string

	// SourceTable is the table whose events were coalesced.
	SourceTable string

	// ResourceIDs is the deduplicated set of affected resources.
	ResourceIDs []string

	// AffectedKeys is the deduplicated set of changed row keys, for logging.
	AffectedKeys []string

	// Full marks a recovery job covering the whole source, scheduled after
	// a subscription outage when events may have been missed.
	Full bool

	// Events is the number of coalesced events.
	Events int
}
