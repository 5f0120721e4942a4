// Package detect implements one detector per rule condition kind.
//
// Detectors are compiled once per document and are pure afterwards: they
// read an Input and return a MatchResult. A detector never fails. When the
// payload does not have the shape a condition expects, the result carries a
// Diagnostic and Matched is false, so one malformed field cannot stop the
// other rules from being enforced.
//
// Keyword and pattern conditions match case-insensitively against NFKC
// normalized text with runs of whitespace treated as a single space.
// Threshold conditions read a field from the structured payload and accept
// locale formatted numbers and dates.
//
// New condition kinds register a Factory with RegisterKind; the evaluator
// dispatches through Compile and needs no change.
package detect
