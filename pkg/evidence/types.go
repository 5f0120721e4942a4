package evidence

import (
	"context"
	"io"
	"time"
)

// Record is the audit entry of one check.
type Record struct {
	ID string `json:"id"` // UUID v4

	// Token correlates the pre-check and post-check of one request.
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`

	Stage    string `json:"stage"`   // pre, post
	State    string `json:"state"`   // PRE_ALLOWED, POST_BLOCKED, ...
	Outcome  string `json:"outcome"` // allow, annotate, redact, block
	Allowed  bool   `json:"allowed"`
	Severity string `json:"severity"`

	Violations  []ViolationRecord `json:"violations"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Message     string            `json:"message,omitempty"`
	Failure     string            `json:"failure,omitempty"`
	Sanitized   bool              `json:"sanitized"`

	DocumentVersion string `json:"document_version,omitempty"`

	PayloadHash    string `json:"payload_hash,omitempty"` // SHA-256 of the evaluated text
	PayloadPreview string `json:"payload_preview,omitempty"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	RecordedAt  time.Time     `json:"recorded_at"`
	Duration    time.Duration `json:"duration"`
}

// ViolationRecord captures one rule that fired.
type ViolationRecord struct {
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

// RuleIDs returns the ids of the violations.
func (r *Record) RuleIDs() []string {
	ids := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		ids[i] = v.RuleID
	}
	return ids
}

// Query defines filter parameters for evidence records.
type Query struct {
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive

	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Allowed   *bool  `json:"allowed,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	SortBy    string `json:"sort_by,omitempty"`    // evaluated_at, recorded_at, duration
	SortOrder string `json:"sort_order,omitempty"` // asc, desc
}

// Matches reports whether r satisfies the filters of q. Pagination and
// sorting are ignored.
func (q *Query) Matches(r *Record) bool {
	if q.StartTime != nil && r.EvaluatedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.EvaluatedAt.After(*q.EndTime) {
		return false
	}
	if q.SessionID != "" && r.SessionID != q.SessionID {
		return false
	}
	if q.ToolName != "" && r.ToolName != q.ToolName {
		return false
	}
	if q.Stage != "" && r.Stage != q.Stage {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.Allowed != nil && r.Allowed != *q.Allowed {
		return false
	}
	if q.RuleID != "" {
		found := false
		for _, v := range r.Violations {
			if v.RuleID == q.RuleID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Storage is an evidence backend. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Query returns the records matching query, or an empty slice.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes matching records and returns how many were removed.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases backend resources.
	Close() error
}

// Exporter writes records in some format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
