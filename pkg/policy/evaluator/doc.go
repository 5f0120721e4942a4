// Package evaluator compiles a constitution document into an executable
// RuleSet and dispatches payloads to the detector of every applicable rule.
//
// Rules are evaluated independently and in declaration order. A rule whose
// detector reports a diagnostic is recorded as skipped and never appears in
// the violation list. Predicate conditions run under a per-rule time budget;
// an overrun becomes an evaluation_timeout diagnostic.
package evaluator
