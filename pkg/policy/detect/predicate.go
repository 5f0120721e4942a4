package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// Predicate is a custom condition. It reports whether the input violates
// the rule, with an optional detail describing what matched.
type Predicate func(ctx context.Context, in *Input, args map[string]any) (matched bool, detail string, err error)

// Registry maps predicate ids to implementations.
type Registry struct {
	mu     sync.RWMutex
	preds  map[string]Predicate
	parent *Registry
}

// NewRegistry returns a registry holding the built-in predicates
// tool_in, text_longer_than and field_equals.
func NewRegistry() *Registry {
	r := &Registry{preds: make(map[string]Predicate)}
	r.preds["tool_in"] = toolIn
	r.preds["text_longer_than"] = textLongerThan
	r.preds["field_equals"] = fieldEquals
	return r
}

// Register installs p under id, replacing any previous predicate.
func (r *Registry) Register(id string, p Predicate) error {
	if id == "" {
		return errors.New("predicate id must not be empty")
	}
	if p == nil {
		return fmt.Errorf("predicate %q is nil", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[id] = p
	return nil
}

// Lookup finds a predicate in r or its parents.
func (r *Registry) Lookup(id string) (Predicate, bool) {
	for cur := r; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		p, ok := cur.preds[id]
		cur.mu.RUnlock()
		if ok {
			return p, true
		}
	}
	return nil, false
}

// Names lists every resolvable predicate id, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	for cur := r; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		for id := range cur.preds {
			seen[id] = true
		}
		cur.mu.RUnlock()
	}
	names := make([]string, 0, len(seen))
	for id := range seen {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// Overlay returns a child registry whose own predicates shadow r's.
func (r *Registry) Overlay(preds map[string]Predicate) *Registry {
	child := &Registry{preds: make(map[string]Predicate, len(preds)), parent: r}
	for id, p := range preds {
		child.preds[id] = p
	}
	return child
}

type predicateDetector struct {
	id   string
	pred Predicate
	args map[string]any
}

func compilePredicate(cond ast.Condition, preds *Registry) (Detector, error) {
	c := cond.(*ast.PredicateCondition)
	if preds == nil {
		return nil, fmt.Errorf("unknown predicate %q", c.PredicateID)
	}
	p, ok := preds.Lookup(c.PredicateID)
	if !ok {
		return nil, fmt.Errorf("unknown predicate %q", c.PredicateID)
	}
	return &predicateDetector{id: c.PredicateID, pred: p, args: c.Args}, nil
}

func (d *predicateDetector) Detect(ctx context.Context, in *Input) MatchResult {
	matched, detail, err := d.pred(ctx, in, d.args)
	if err != nil {
		reason := ReasonPredicateError
		if ctx.Err() != nil {
			reason = ReasonEvaluationTimeout
		}
		return MatchResult{Diagnostic: &Diagnostic{Reason: reason, Detail: fmt.Sprintf("predicate %s: %v", d.id, err)}}
	}
	if !matched {
		return noMatch()
	}
	if detail == "" {
		detail = "predicate " + d.id
	}
	return MatchResult{Matched: true, Context: detail}
}

func toolIn(_ context.Context, in *Input, args map[string]any) (bool, string, error) {
	tools, err := stringsArg(args, "tools")
	if err != nil {
		return false, "", err
	}
	tool := Fold(in.ToolName)
	for _, t := range tools {
		if Fold(t) == tool {
			return true, "tool " + in.ToolName, nil
		}
	}
	return false, "", nil
}

func textLongerThan(_ context.Context, in *Input, args map[string]any) (bool, string, error) {
	raw, ok := args["length"]
	if !ok {
		return false, "", errors.New("missing argument 'length'")
	}
	limit, err := ParseNumber(raw, "en")
	if err != nil {
		return false, "", fmt.Errorf("argument 'length': %w", err)
	}
	n := utf8.RuneCountInString(in.Normalized)
	if float64(n) > limit {
		return true, fmt.Sprintf("text length %d exceeds %v", n, limit), nil
	}
	return false, "", nil
}

func fieldEquals(_ context.Context, in *Input, args map[string]any) (bool, string, error) {
	path, ok := args["field"].(string)
	if !ok || path == "" {
		return false, "", errors.New("missing argument 'field'")
	}
	want, ok := args["value"]
	if !ok {
		return false, "", errors.New("missing argument 'value'")
	}

	got, found := in.Lookup(path)
	if !found {
		return false, "", nil
	}

	a, errA := ParseNumber(got, in.locale(""))
	b, errB := ParseNumber(want, "en")
	if errA == nil && errB == nil {
		if a == b {
			return true, fmt.Sprintf("%s=%v", path, got), nil
		}
		return false, "", nil
	}

	if Fold(fmt.Sprint(got)) == Fold(fmt.Sprint(want)) {
		return true, fmt.Sprintf("%s=%v", path, got), nil
	}
	return false, "", nil
}

func stringsArg(args map[string]any, name string) ([]string, error) {
	switch v := args[name].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument '%s' must be a list of strings", name)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	case nil:
		return nil, fmt.Errorf("missing argument '%s'", name)
	}
	return nil, fmt.Errorf("argument '%s' must be a list of strings", name)
}
