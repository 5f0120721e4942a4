package detect

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// Detector evaluates one compiled condition.
type Detector interface {
	Detect(ctx context.Context, in *Input) MatchResult
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, in *Input) MatchResult

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, in *Input) MatchResult {
	return f(ctx, in)
}

// Factory compiles a condition of one kind.
type Factory func(cond ast.Condition, preds *Registry) (Detector, error)

var (
	kindsMu sync.RWMutex
	kinds   = map[ast.ConditionKind]Factory{
		ast.KindKeyword:       compileKeyword,
		ast.KindPattern:       compilePattern,
		ast.KindThreshold:     compileThreshold,
		ast.KindRequiredField: compileRequiredField,
		ast.KindStructure:     compileStructure,
		ast.KindPredicate:     compilePredicate,
		ast.KindSimilarity:    compileSimilarity,
	}
)

// RegisterKind installs the factory for a condition kind, replacing any
// previous one.
func RegisterKind(kind ast.ConditionKind, f Factory) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[kind] = f
}

// Compile builds the detector for cond.
func Compile(cond ast.Condition, preds *Registry) (Detector, error) {
	if cond == nil {
		return nil, fmt.Errorf("rule has no condition")
	}

	kindsMu.RLock()
	f, ok := kinds[cond.Kind()]
	kindsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no detector for condition kind %q", cond.Kind())
	}
	return f(cond, preds)
}
