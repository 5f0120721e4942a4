package evidence

import (
	"fmt"
	"strings"
)

// cause formats "evidence <what> (k=v, ...): err", omitting empty values.
func cause(what string, err error, kv ...string) string {
	var b strings.Builder
	b.WriteString("evidence ")
	b.WriteString(what)
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			parts = append(parts, kv[i]+"="+kv[i+1])
		}
	}
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	b.WriteString(": ")
	if err != nil {
		b.WriteString(err.Error())
	} else {
		b.WriteString("unknown failure")
	}
	return b.String()
}

// StorageError reports a backend failure. Backend is "sqlite" or "memory".
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

func NewStorageError(backend, operation string, err error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: err}
}

func (e *StorageError) Error() string {
	return cause(e.Operation+" failed", e.Cause, "backend", e.Backend)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// QueryError rejects a query before it reaches a backend.
type QueryError struct {
	Query *Query
	Cause error
}

func NewQueryError(q *Query, err error) *QueryError {
	return &QueryError{Query: q, Cause: err}
}

func (e *QueryError) Error() string { return cause("query rejected", e.Cause) }

func (e *QueryError) Unwrap() error { return e.Cause }

// RecorderError means a decision record was dropped instead of persisted.
type RecorderError struct {
	RecordID string
	Cause    error
}

func NewRecorderError(recordID string, err error) *RecorderError {
	return &RecorderError{RecordID: recordID, Cause: err}
}

func (e *RecorderError) Error() string {
	return cause("record dropped", e.Cause, "record", e.RecordID)
}

func (e *RecorderError) Unwrap() error { return e.Cause }

// RetentionError wraps a failed prune.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

func NewRetentionError(days int, err error) *RetentionError {
	return &RetentionError{RetentionDays: days, Cause: err}
}

func (e *RetentionError) Error() string {
	return cause("prune failed", e.Cause, "retention_days", fmt.Sprint(e.RetentionDays))
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// ExportError wraps an encoder failure while writing records.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

func NewExportError(format string, n int, err error) *ExportError {
	return &ExportError{Format: format, RecordCount: n, Cause: err}
}

func (e *ExportError) Error() string {
	return cause(e.Format+" export failed", e.Cause, "records", fmt.Sprint(e.RecordCount))
}

func (e *ExportError) Unwrap() error { return e.Cause }
