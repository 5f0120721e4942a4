// Package source provides constitution sources for the engine.
//
// A source returns the raw bytes of a constitution document and the name
// used in error locations. Parsing and validation happen in the engine, so
// a source never decides whether a document is acceptable.
//
// # File Source
//
//	src := source.NewFileSource("constitution.yaml", logger)
//	data, origin, err := src.Load(ctx)
//
// # In-Memory Source
//
// The in-memory source is useful for testing and for embedding a fixed
// constitution:
//
//	src := source.NewMemorySource("inline", doc)
package source
