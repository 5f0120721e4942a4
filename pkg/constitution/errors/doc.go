// Package errors provides the ParseError taxonomy for constitution documents.
//
// Parsing and validation never stop at the first problem. Every structural
// issue is collected into an ErrorList, each entry carrying a reason, a
// source location and, where one is obvious, a suggested fix.
package errors
