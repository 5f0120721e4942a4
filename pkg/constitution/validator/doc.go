// Package validator runs the document-level checks that the parser cannot
// perform node by node: supported version, unique rule ids, action and
// severity consistency, regular expression compilation, threshold literals
// and predicate references.
package validator
