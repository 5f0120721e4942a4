// Package storage provides evidence storage backends.
//
// MemoryStorage keeps records in a map and suits tests and short-lived
// processes. SQLiteStorage persists records through the pure Go
// modernc.org/sqlite driver, so no cgo toolchain is needed:
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/evidence.db"})
package storage
