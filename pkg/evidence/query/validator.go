// Package query validates evidence queries and applies their defaults.
package query

import (
	"fmt"

	"mercator-hq/constitution/pkg/evidence"
)

const (
	// DefaultLimit is the number of records returned when no limit is set.
	DefaultLimit = 100

	// MaxLimit caps the records returned by one query.
	MaxLimit = 10000
)

// SortFields maps the accepted sort fields to storage columns.
var SortFields = map[string]string{
	"evaluated_at": "evaluated_at",
	"recorded_at":  "recorded_at",
	"duration":     "duration_us",
}

var validStages = map[string]bool{"pre": true, "post": true}

var validOutcomes = map[string]bool{"allow": true, "annotate": true, "redact": true, "block": true}

// Validate returns a *evidence.QueryError for the first invalid parameter.
func Validate(q *evidence.Query) error {
	if q.Limit < 0 || q.Limit > MaxLimit {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be between 0 and %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if _, ok := SortFields[q.SortBy]; q.SortBy != "" && !ok {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return evidence.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.Stage != "" && !validStages[q.Stage] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid stage: %s (must be 'pre' or 'post')", q.Stage))
	}
	if q.Outcome != "" && !validOutcomes[q.Outcome] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid outcome: %s", q.Outcome))
	}
	return nil
}

// ApplyDefaults fills unset pagination and sorting.
func ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "evaluated_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
