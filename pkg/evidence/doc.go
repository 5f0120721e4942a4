// Package evidence keeps an audit trail of constitution checks.
//
// Every pre-check and post-check produces one Record: the decision, the
// rules that fired, the document version in force, and a SHA-256 hash of the
// evaluated payload. Raw payloads are never stored; a short redacted preview
// is kept for operators.
//
// # Architecture
//
//   - recorder: converts engine decisions to records and writes them
//     asynchronously
//   - storage: memory and SQLite backends
//   - query: validation and defaults for record queries
//   - export: JSON and CSV writers
//   - retention: age and count based pruning on a cron schedule
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage(storage.DefaultSQLiteConfig())
//	if err != nil {
//	    return err
//	}
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	eng, err := engine.New(cfg, engine.WithRecorder(rec))
package evidence
