package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the evidence tables. Times are stored as Unix nanoseconds
// and rule ids as a comma-delimited list with leading and trailing commas.
const Schema = `
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    token TEXT,
    session_id TEXT,
    tool_name TEXT,

    stage TEXT NOT NULL,
    state TEXT NOT NULL,
    outcome TEXT NOT NULL,
    allowed INTEGER NOT NULL,
    severity TEXT NOT NULL,

    rule_ids TEXT NOT NULL,
    violations TEXT NOT NULL,
    diagnostics TEXT,
    message TEXT,
    failure TEXT,
    sanitized INTEGER NOT NULL,

    document_version TEXT,
    payload_hash TEXT,
    payload_preview TEXT,

    evaluated_at INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,
    duration_us INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_evaluated_at ON evidence(evaluated_at);
CREATE INDEX IF NOT EXISTS idx_evidence_session_id ON evidence(session_id);
CREATE INDEX IF NOT EXISTS idx_evidence_token ON evidence(token);
CREATE INDEX IF NOT EXISTS idx_evidence_outcome ON evidence(outcome);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion returns the newest applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertRecord = `
INSERT INTO evidence (
    id, token, session_id, tool_name,
    stage, state, outcome, allowed, severity,
    rule_ids, violations, diagnostics, message, failure, sanitized,
    document_version, payload_hash, payload_preview,
    evaluated_at, recorded_at, duration_us
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
    id, token, session_id, tool_name,
    stage, state, outcome, allowed, severity,
    violations, diagnostics, message, failure, sanitized,
    document_version, payload_hash, payload_preview,
    evaluated_at, recorded_at, duration_us
`
