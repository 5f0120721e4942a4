// Package ast defines the immutable rule schema of a constitution document.
//
// A Document is produced once by the parser and never mutated afterwards.
// Every Rule carries a source Location so that validation and evaluation
// diagnostics can point back at the YAML that declared it.
//
// # Core Types
//
// Document: versioned, ordered set of rules plus document-declared predicates
//
// Rule: id, category, severity, stage, condition, action and message template
//
// Condition: closed set of detection variants (keyword, pattern, threshold,
// required field, structure, predicate)
//
// Severity: totally ordered NONE < INFO < WARN < BLOCK < FATAL
package ast
