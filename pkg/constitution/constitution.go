// Package constitution is the entry point for turning policy source into a
// validated, immutable document.
//
//	doc, err := constitution.Parse(src, constitution.Options{})
//
// Parse runs the parser and the validator and returns every problem of both
// passes in a single *errors.ErrorList.
package constitution

import (
	"os"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
	"mercator-hq/constitution/pkg/constitution/parser"
	"mercator-hq/constitution/pkg/constitution/validator"
)

// Options controls parsing and validation.
type Options struct {
	// SourcePath is used for error locations.
	SourcePath string

	// AllowLegacy accepts free-text documents.
	AllowLegacy bool

	// Predicates lists predicate ids registered outside the document.
	Predicates []string

	// MaxRules limits the rule count. Zero disables the limit.
	MaxRules int
}

// Parse parses and validates source. Validation also runs over a document
// the parser rejected, so one call reports every structural and semantic
// problem.
func Parse(source []byte, opts Options) (*ast.Document, error) {
	doc, err := parser.NewParser().
		WithLegacy(opts.AllowLegacy).
		ParsePartial(source, opts.SourcePath)
	if doc == nil {
		return nil, err
	}

	list := cerrors.NewErrorList()
	if err != nil {
		parsed, ok := err.(*cerrors.ErrorList)
		if !ok {
			return nil, err
		}
		list.Merge(parsed)
	}

	err = validator.New().
		WithPredicates(opts.Predicates...).
		WithMaxRules(opts.MaxRules).
		Validate(doc)
	if err != nil {
		validated, ok := err.(*cerrors.ErrorList)
		if !ok {
			return nil, err
		}
		list.Merge(validated)
	}

	if list.HasErrors() {
		cerrors.AttachContext(list, source, 2)
		return nil, list
	}
	return doc, nil
}

// ParseFile reads path and parses it with opts. SourcePath defaults to path.
func ParseFile(path string, opts Options) (*ast.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		el := cerrors.NewErrorList()
		el.AddError(cerrors.ErrorTypeIO, err.Error(), ast.Location{File: path})
		return nil, el
	}
	if opts.SourcePath == "" {
		opts.SourcePath = path
	}
	return Parse(data, opts)
}
