package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/query"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" keeps the database in
	// memory on a single connection.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/evidence.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements evidence.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}

	if config.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode && s.config.Path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Store persists a record.
func (s *SQLiteStorage) Store(ctx context.Context, r *evidence.Record) error {
	violations, err := json.Marshal(r.Violations)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	diagnostics, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, insertRecord,
		r.ID, r.Token, r.SessionID, r.ToolName,
		r.Stage, r.State, r.Outcome, r.Allowed, r.Severity,
		joinRuleIDs(r.RuleIDs()), string(violations), string(diagnostics), r.Message, r.Failure, r.Sanitized,
		r.DocumentVersion, r.PayloadHash, r.PayloadPreview,
		r.EvaluatedAt.UnixNano(), r.RecordedAt.UnixNano(), r.Duration.Microseconds(),
	)
	if err != nil {
		return evidence.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves matching records.
func (s *SQLiteStorage) Query(ctx context.Context, q *evidence.Query) ([]*evidence.Record, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	qq := *q
	query.ApplyDefaults(&qq)

	where, args := buildWhereClause(&qq)
	sqlQuery := "SELECT " + selectColumns + " FROM evidence" + where
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", query.SortFields[qq.SortBy], strings.ToUpper(qq.SortOrder), strings.ToUpper(qq.SortOrder))
	sqlQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", qq.Limit, qq.Offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*evidence.Record{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of matching records.
func (s *SQLiteStorage) Count(ctx context.Context, q *evidence.Query) (int64, error) {
	where, args := buildWhereClause(q)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM evidence"+where, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes matching records.
func (s *SQLiteStorage) Delete(ctx context.Context, q *evidence.Query) (int64, error) {
	where, args := buildWhereClause(q)

	result, err := s.db.ExecContext(ctx, "DELETE FROM evidence"+where, args...)
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func buildWhereClause(q *evidence.Query) (string, []any) {
	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "evaluated_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "evaluated_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.ToolName != "" {
		conditions = append(conditions, "tool_name = ?")
		args = append(args, q.ToolName)
	}
	if q.Stage != "" {
		conditions = append(conditions, "stage = ?")
		args = append(args, q.Stage)
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if q.Allowed != nil {
		conditions = append(conditions, "allowed = ?")
		args = append(args, *q.Allowed)
	}
	if q.RuleID != "" {
		conditions = append(conditions, "instr(rule_ids, ?) > 0")
		args = append(args, ","+q.RuleID+",")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRow(rows *sql.Rows) (*evidence.Record, error) {
	var (
		r                            evidence.Record
		violations, diagnostics      string
		evaluatedAt, recordedAt, dur int64
	)
	err := rows.Scan(
		&r.ID, &r.Token, &r.SessionID, &r.ToolName,
		&r.Stage, &r.State, &r.Outcome, &r.Allowed, &r.Severity,
		&violations, &diagnostics, &r.Message, &r.Failure, &r.Sanitized,
		&r.DocumentVersion, &r.PayloadHash, &r.PayloadPreview,
		&evaluatedAt, &recordedAt, &dur,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(violations), &r.Violations); err != nil {
		return nil, fmt.Errorf("decode violations of %s: %w", r.ID, err)
	}
	if diagnostics != "" && diagnostics != "null" {
		if err := json.Unmarshal([]byte(diagnostics), &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics of %s: %w", r.ID, err)
		}
	}
	r.EvaluatedAt = time.Unix(0, evaluatedAt).UTC()
	r.RecordedAt = time.Unix(0, recordedAt).UTC()
	r.Duration = time.Duration(dur) * time.Microsecond
	return &r, nil
}

func joinRuleIDs(ids []string) string {
	if len(ids) == 0 {
		return ","
	}
	return "," + strings.Join(ids, ",") + ","
}
