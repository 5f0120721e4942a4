// Package recorder turns engine decisions into evidence records.
//
// Recorder implements the engine's Recorder interface. RecordDecision
// builds the record synchronously, then hands it to a background worker so
// a slow storage backend never delays a check. Close drains the queue.
//
// Payloads are reduced to a SHA-256 hash and a short preview. When the
// decision carries a sanitized payload the preview is taken from it, so a
// redacted span never reaches storage.
package recorder
