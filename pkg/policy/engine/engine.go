package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/constitution/pkg/constitution"
	"mercator-hq/constitution/pkg/constitution/ast"
	"mercator-hq/constitution/pkg/policy/detect"
	"mercator-hq/constitution/pkg/policy/evaluator"
)

// loaded is one immutable generation of the constitution.
type loaded struct {
	rules    *evaluator.RuleSet
	loadedAt time.Time
}

// Engine enforces a constitution around tool calls. It is safe for
// concurrent use. Each check reads a single generation of rules; Reload
// swaps generations atomically.
type Engine struct {
	cfg    *Config
	logger *slog.Logger

	current  atomic.Pointer[loaded]
	reloadMu sync.Mutex

	tokens     *ledger
	predicates *detect.Registry
	observer   Observer
	recorder   Recorder
	tracer     trace.Tracer
	now        func() time.Time

	preChecks     atomic.Uint64
	postChecks    atomic.Uint64
	blocked       atomic.Uint64
	outOfSequence atomic.Uint64
	reloads       atomic.Uint64
	reloadErrors  atomic.Uint64
}

// New creates an engine with no constitution loaded. Until a document is
// loaded every check is decided by the fail mode.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     slog.Default(),
		predicates: detect.NewRegistry(),
		tracer:     noop.NewTracerProvider().Tracer("constitution"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tokens = newLedger(cfg.TokenTTL, e.now)

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Document returns the constitution in force, or nil.
func (e *Engine) Document() *ast.Document {
	if cur := e.current.Load(); cur != nil {
		return cur.rules.Document()
	}
	return nil
}

// Reload parses, validates and compiles source and makes it the
// constitution in force. On any error the previous document is kept and a
// *ReloadError is returned.
func (e *Engine) Reload(source []byte, sourcePath string) error {
	doc, err := constitution.Parse(source, constitution.Options{
		SourcePath:  sourcePath,
		AllowLegacy: e.cfg.AllowLegacy,
		Predicates:  e.predicates.Names(),
		MaxRules:    e.cfg.MaxRules,
	})
	if err != nil {
		return e.rejectReload(sourcePath, err)
	}
	return e.ReloadDocument(doc)
}

// ReloadFile reads path and reloads from its contents.
func (e *Engine) ReloadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return e.rejectReload(path, fmt.Errorf("read constitution: %w", err))
	}
	return e.Reload(data, path)
}

// ReloadDocument compiles an already parsed document and swaps it in.
func (e *Engine) ReloadDocument(doc *ast.Document) error {
	source := "<memory>"
	if doc != nil && doc.SourceFile != "" {
		source = doc.SourceFile
	}

	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	rules, err := evaluator.Compile(doc, evaluator.Options{
		Predicates:    e.predicates,
		RuleTimeout:   e.cfg.RuleTimeout,
		DefaultLocale: e.cfg.DefaultLocale,
	})
	if err != nil {
		return e.rejectReload(source, err)
	}

	previous := e.current.Swap(&loaded{rules: rules, loadedAt: e.now()})
	e.reloads.Add(1)
	if e.observer != nil {
		e.observer.ObserveReload(nil, rules.Len())
	}

	previousVersion := ""
	if previous != nil {
		previousVersion = previous.rules.Document().Version
	}
	e.logger.Info("constitution loaded",
		"source", source,
		"name", doc.Name(),
		"version", doc.Version,
		"previous_version", previousVersion,
		"rule_count", len(doc.Rules),
		"enabled_rules", doc.EnabledRules(),
		"legacy", doc.Legacy,
	)
	return nil
}

func (e *Engine) rejectReload(source string, cause error) error {
	e.reloadErrors.Add(1)
	if e.observer != nil {
		e.observer.ObserveReload(cause, 0)
	}
	e.logger.Error("constitution rejected, keeping previous document",
		"source", source,
		"error", cause,
		"loaded", e.current.Load() != nil,
	)
	return &ReloadError{Source: source, Cause: cause}
}

// PreCheck evaluates a request before any tool runs. An allowed decision
// carries a Token that the matching PostCheck must present.
func (e *Engine) PreCheck(ctx context.Context, req *Request) *Decision {
	ctx, span := e.tracer.Start(ctx, "constitution.pre_check")
	defer span.End()

	e.preChecks.Add(1)
	start := e.now()

	var d *Decision
	if req == nil {
		d = e.failure(ast.StagePre, ErrNilRequest, start)
	} else {
		d = e.check(ctx, ast.StagePre, &detect.Context{
			Stage:     ast.StagePre,
			Text:      req.Text,
			ToolName:  req.ToolName,
			SessionID: req.SessionID,
			Timestamp: req.Timestamp,
			Locale:    req.Locale,
			Arguments: req.Arguments,
			Metadata:  req.Metadata,
		}, start)
	}

	if d.Allowed {
		d.State = StatePreAllowed
		if req != nil {
			d.Token = e.tokens.issue(*req)
		} else {
			d.Token = e.tokens.issue(Request{})
		}
	} else {
		d.State = StatePreBlocked
	}

	payload, tool, session := "", "", ""
	if req != nil {
		payload, tool, session = req.Text, req.ToolName, req.SessionID
	}
	e.finalize(ctx, span, d, d.Token, tool, session, payload)
	return d
}

// BeginToolExecution records that the tool for token has started. It is
// optional; PostCheck accepts tokens in PRE_ALLOWED or TOOL_EXECUTION.
func (e *Engine) BeginToolExecution(token string) error {
	return e.tokens.advance(token, StateToolExecution)
}

// TokenState returns the lifecycle state of token.
func (e *Engine) TokenState(token string) (State, bool) {
	return e.tokens.state(token)
}

// PostCheck evaluates a tool's output. The token must come from an allowed
// PreCheck and is consumed by this call. A missing, unknown, expired or
// reused token yields an *OutOfSequenceError together with a blocked
// decision.
func (e *Engine) PostCheck(ctx context.Context, token string, out *ToolOutput) (*Decision, error) {
	ctx, span := e.tracer.Start(ctx, "constitution.post_check")
	defer span.End()

	e.postChecks.Add(1)
	start := e.now()

	req, err := e.tokens.consume(token)
	if err != nil {
		e.outOfSequence.Add(1)
		if oos, ok := err.(*OutOfSequenceError); ok && e.observer != nil {
			e.observer.ObserveOutOfSequence(oos.Reason)
		}
		e.logger.WarnContext(ctx, "post-check out of sequence", "token", token, "error", err)

		d := e.blockedFailure(ast.StagePost, err, start)
		d.State = StatePostBlocked
		e.finalize(ctx, span, d, token, "", "", "")
		return d, err
	}

	var d *Decision
	payload := ""
	if out == nil {
		d = e.failure(ast.StagePost, ErrNilRequest, start)
	} else {
		payload = out.Text
		d = e.check(ctx, ast.StagePost, &detect.Context{
			Stage:     ast.StagePost,
			Text:      out.Text,
			ToolName:  req.ToolName,
			SessionID: req.SessionID,
			Timestamp: req.Timestamp,
			Locale:    req.Locale,
			Arguments: req.Arguments,
			Output:    out.Output,
			Metadata:  mergeMetadata(req.Metadata, out.Metadata),
		}, start)
	}

	if d.Allowed {
		d.State = StatePostAllowed
	} else {
		d.State = StatePostBlocked
	}
	e.tokens.finish(token, d.State)

	e.finalize(ctx, span, d, token, req.ToolName, req.SessionID, payload)
	return d, nil
}

// check evaluates one stage against the current generation.
func (e *Engine) check(ctx context.Context, stage ast.Stage, ec *detect.Context, start time.Time) (d *Decision) {
	cur := e.current.Load()
	if cur == nil {
		return e.failure(stage, ErrNoDocument, start)
	}
	if err := ctx.Err(); err != nil {
		return e.failure(stage, err, start)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "panic during check", "stage", stage, "panic", r)
			d = e.failure(stage, fmt.Errorf("panic during check: %v", r), start)
		}
	}()

	in := detect.Prepare(ec, cur.rules.DefaultLocale())
	res := cur.rules.EvaluateAll(ctx, in)

	for _, diag := range res.Diagnostics {
		e.logger.WarnContext(ctx, "rule skipped", "stage", stage, "rule_id", diag.RuleID, "reason", diag.Reason, "detail", diag.Detail)
	}

	severity, binding := resolve(res.Violations)
	d = &Decision{
		Allowed:            !severity.Blocks(),
		Stage:              stage,
		Violations:         res.Violations,
		Diagnostics:        res.Diagnostics,
		ResolutionSeverity: severity,
		DocumentVersion:    cur.rules.Document().Version,
		EvaluatedAt:        start,
	}
	if d.Violations == nil {
		d.Violations = []Violation{}
	}
	if binding != nil {
		d.Message = binding.Message
	}
	d.SuggestedTools = collect(res.Violations, func(v Violation) []string { return v.SuggestedTools })

	redacted := false
	if d.Allowed {
		d.Disclaimers = collect(res.Violations, func(v Violation) []string { return []string{v.Disclaimer} })

		if hasAction(res.Violations, ast.ActionRedact) {
			text, ok := e.sanitize(ctx, cur.rules, in, res.Violations)
			if !ok {
				e.logger.ErrorContext(ctx, "redaction could not be verified, blocking", "stage", stage, "rules", d.RuleIDs())
				d.Allowed = false
				d.ResolutionSeverity = ast.SeverityFatal
				d.Message = e.cfg.FailureMessage
				d.Failure = "redaction could not be verified"
				d.Disclaimers = nil
			} else {
				d.Sanitized = &text
				redacted = true
			}
		}
	}

	d.Outcome = outcomeFor(d.ResolutionSeverity, d.Violations, redacted)
	d.Duration = e.now().Sub(start)
	return d
}

// failure builds the decision taken when rules could not be evaluated.
func (e *Engine) failure(stage ast.Stage, err error, start time.Time) *Decision {
	e.logger.Error("check failed", "stage", stage, "fail_mode", e.cfg.FailMode, "error", err)

	switch e.cfg.FailMode {
	case FailOpen:
		return &Decision{
			Allowed:            true,
			Stage:              stage,
			Outcome:            OutcomeAllow,
			Violations:         []Violation{},
			ResolutionSeverity: ast.SeverityNone,
			Failure:            err.Error(),
			DocumentVersion:    e.documentVersion(),
			EvaluatedAt:        start,
			Duration:           e.now().Sub(start),
		}
	default:
		return e.blockedFailure(stage, err, start)
	}
}

func (e *Engine) blockedFailure(stage ast.Stage, err error, start time.Time) *Decision {
	return &Decision{
		Allowed:            false,
		Stage:              stage,
		Outcome:            OutcomeBlock,
		Violations:         []Violation{},
		ResolutionSeverity: ast.SeverityFatal,
		Message:            e.cfg.FailureMessage,
		Failure:            err.Error(),
		DocumentVersion:    e.documentVersion(),
		EvaluatedAt:        start,
		Duration:           e.now().Sub(start),
	}
}

func (e *Engine) documentVersion() string {
	if doc := e.Document(); doc != nil {
		return doc.Version
	}
	return ""
}

// finalize updates counters, spans, metrics and the audit trail.
func (e *Engine) finalize(ctx context.Context, span trace.Span, d *Decision, token, tool, session, payload string) {
	if !d.Allowed {
		e.blocked.Add(1)
	}

	span.SetAttributes(
		attribute.String("constitution.state", string(d.State)),
		attribute.String("constitution.outcome", string(d.Outcome)),
		attribute.String("constitution.severity", d.ResolutionSeverity.String()),
		attribute.Int("constitution.violations", len(d.Violations)),
		attribute.String("tool.name", tool),
	)
	if d.Failure != "" {
		span.SetStatus(codes.Error, d.Failure)
	}

	if e.observer != nil {
		e.observer.ObserveDecision(d)
	}

	e.logger.DebugContext(ctx, "check completed",
		"stage", d.Stage,
		"state", d.State,
		"outcome", d.Outcome,
		"severity", d.ResolutionSeverity,
		"rules", d.RuleIDs(),
		"tool", tool,
		"duration", d.Duration,
	)

	if e.recorder != nil {
		rec := DecisionRecord{Decision: d, Token: token, ToolName: tool, SessionID: session, Payload: payload}
		if err := e.recorder.RecordDecision(ctx, rec); err != nil {
			e.logger.WarnContext(ctx, "failed to record decision", "error", err)
		}
	}
}

func mergeMetadata(base, over map[string]any) map[string]any {
	if len(base) == 0 {
		return over
	}
	if len(over) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}
