package parser

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
)

// Parser parses constitution documents.
type Parser struct {
	maxSize      int64
	allowLegacy  bool
	contextLines int
	now          func() time.Time
}

// NewParser creates a parser with default settings: 4MB size limit,
// legacy text rejected, two lines of error context.
func NewParser() *Parser {
	return &Parser{
		maxSize:      4 * 1024 * 1024,
		contextLines: 2,
		now:          time.Now,
	}
}

// WithMaxSize sets the maximum accepted document size in bytes.
func (p *Parser) WithMaxSize(size int64) *Parser {
	p.maxSize = size
	return p
}

// WithLegacy allows free-text documents to be parsed through the legacy path.
func (p *Parser) WithLegacy(allow bool) *Parser {
	p.allowLegacy = allow
	return p
}

// WithContextLines sets how many surrounding lines are attached to errors.
func (p *Parser) WithContextLines(n int) *Parser {
	p.contextLines = n
	return p
}

// WithClock overrides the clock used to stamp ParsedAt.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// ParseFile reads and parses the document at path.
func (p *Parser) ParseFile(path string) (*ast.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, p.single(cerrors.ErrorTypeIO, fmt.Sprintf("cannot access document: %v", err), ast.Location{File: path})
	}
	if info.Size() > p.maxSize {
		return nil, p.single(cerrors.ErrorTypeIO,
			fmt.Sprintf("document size %d exceeds maximum %d bytes", info.Size(), p.maxSize),
			ast.Location{File: path})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, p.single(cerrors.ErrorTypeIO, fmt.Sprintf("cannot read document: %v", err), ast.Location{File: path})
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses a document held in memory. sourcePath is only used for
// locations and may be empty.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*ast.Document, error) {
	doc, err := p.ParsePartial(data, sourcePath)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParsePartial is ParseBytes that also returns the document built so far
// when a structured document has errors, so later passes can report their
// own problems alongside. The document is nil when the source is not a
// structured constitution at all.
func (p *Parser) ParsePartial(data []byte, sourcePath string) (*ast.Document, error) {
	if int64(len(data)) > p.maxSize {
		return nil, p.single(cerrors.ErrorTypeIO,
			fmt.Sprintf("document size %d exceeds maximum %d bytes", len(data), p.maxSize),
			ast.Location{File: sourcePath})
	}

	var root yaml.Node
	yamlErr := yaml.Unmarshal(data, &root)

	if yamlErr == nil && isStructured(&root) {
		b := newBuilder(sourcePath)
		doc := b.buildDocument(root.Content[0])
		doc.ParsedAt = p.now()
		if b.errors.HasErrors() {
			cerrors.AttachContext(b.errors, data, p.contextLines)
			return doc, b.errors
		}
		return doc, nil
	}

	if p.allowLegacy {
		return p.ParseLegacy(string(data), sourcePath)
	}

	if yamlErr != nil {
		line, col := yamlErrorPosition(yamlErr)
		el := cerrors.NewErrorList()
		el.AddErrorWithSuggestion(cerrors.ErrorTypeSyntax,
			fmt.Sprintf("YAML parsing failed: %v", yamlErr),
			ast.Location{File: sourcePath, Line: line, Column: col},
			"check indentation, colons and quoting")
		cerrors.AttachContext(el, data, p.contextLines)
		return nil, el
	}

	return nil, p.single(cerrors.ErrorTypeStructural,
		"document is not a structured constitution (expected a mapping with 'version' and 'rules')",
		ast.Location{File: sourcePath, Line: 1, Column: 1})
}

// ParseLegacy converts a free-text constitution into a single advisory rule.
// It fails when no prohibited phrase can be extracted.
func (p *Parser) ParseLegacy(text, sourcePath string) (*ast.Document, error) {
	phrases := ExtractPhrases(text)
	if len(phrases) == 0 {
		return nil, p.single(cerrors.ErrorTypeLegacy,
			"legacy constitution yields no prohibited phrases",
			ast.Location{File: sourcePath, Line: 1, Column: 1})
	}

	doc := &ast.Document{
		Version:  ast.LegacyVersion,
		Metadata: map[string]any{"format": "legacy"},
		Rules: []*ast.Rule{{
			ID:        LegacyRuleID,
			Category:  ast.CategoryGeneral,
			Severity:  ast.SeverityWarn,
			Stage:     ast.StageBoth,
			Enabled:   true,
			Condition: &ast.KeywordCondition{Keywords: phrases, Match: ast.MatchAny},
			Action:    ast.ActionAnnotate,
			Message:   "This response touches on content the constitution advises against: {{matched}}.",
			Location:  ast.Location{File: sourcePath, Line: 1, Column: 1},
		}},
		Legacy:     true,
		SourceFile: sourcePath,
		ParsedAt:   p.now(),
	}
	return doc, nil
}

func (p *Parser) single(errType cerrors.ErrorType, reason string, loc ast.Location) *cerrors.ErrorList {
	el := cerrors.NewErrorList()
	el.AddError(errType, reason, loc)
	return el
}

// isStructured reports whether the YAML root is a mapping that declares
// version or rules. Anything else is treated as free text.
func isStructured(root *yaml.Node) bool {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return false
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(top.Content); i += 2 {
		switch top.Content[i].Value {
		case "version", "rules":
			return true
		}
	}
	return false
}
