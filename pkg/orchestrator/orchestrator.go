// Package orchestrator is a reference consumer of the engine. It wraps a
// set of tools so that every invocation is checked before the tool runs and
// every result is checked before it reaches the user.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/constitution/pkg/policy/engine"
)

var (
	// ErrUnknownTool is returned when an invocation names no registered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolFailed wraps a tool's own error. The tool output is discarded.
	ErrToolFailed = errors.New("tool failed")
)

// Checker is the engine surface the orchestrator depends on.
type Checker interface {
	PreCheck(ctx context.Context, req *engine.Request) *engine.Decision
	BeginToolExecution(token string) error
	PostCheck(ctx context.Context, token string, out *engine.ToolOutput) (*engine.Decision, error)
}

// Tool is an invocable capability of the agent.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is what a tool returns.
type Result struct {
	Text     string
	Output   any
	Metadata map[string]any
}

// Invocation is one user request routed to one tool.
type Invocation struct {
	Text      string
	ToolName  string
	Arguments map[string]any
	Metadata  map[string]any
	SessionID string
	Locale    string
}

// Response is what the user sees, plus the decisions that produced it.
type Response struct {
	Text        string
	Allowed     bool
	ToolInvoked bool
	Pre         *engine.Decision
	Post        *engine.Decision
}

// Orchestrator routes invocations through the checker to tools.
type Orchestrator struct {
	checker Checker
	tools   map[string]Tool
	logger  *slog.Logger
}

// New creates an orchestrator over tools.
func New(checker Checker, tools ...Tool) *Orchestrator {
	o := &Orchestrator{
		checker: checker,
		tools:   make(map[string]Tool, len(tools)),
		logger:  slog.Default(),
	}
	for _, t := range tools {
		o.tools[t.Name()] = t
	}
	return o
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger.With("component", "orchestrator")
	}
	return o
}

// Handle runs one invocation. A blocked pre-check returns the decision
// message and the tool is never invoked. A blocked post-check, a tool
// error, or an out-of-sequence post-check discards the tool output.
func (o *Orchestrator) Handle(ctx context.Context, inv Invocation) (*Response, error) {
	pre := o.checker.PreCheck(ctx, &engine.Request{
		Text:      inv.Text,
		ToolName:  inv.ToolName,
		Arguments: inv.Arguments,
		Metadata:  inv.Metadata,
		SessionID: inv.SessionID,
		Locale:    inv.Locale,
	})
	resp := &Response{Pre: pre}

	if !pre.Allowed {
		o.logger.Info("request blocked before tool execution", "tool", inv.ToolName, "rules", pre.RuleIDs())
		resp.Text = pre.Message
		return resp, nil
	}

	tool, ok := o.tools[inv.ToolName]
	if !ok {
		return resp, fmt.Errorf("%w: %q", ErrUnknownTool, inv.ToolName)
	}

	if err := o.checker.BeginToolExecution(pre.Token); err != nil {
		return resp, err
	}

	resp.ToolInvoked = true
	result, err := tool.Invoke(ctx, inv.Arguments)
	if err != nil {
		o.logger.Warn("tool failed", "tool", inv.ToolName, "error", err)
		return resp, fmt.Errorf("%w: %s: %v", ErrToolFailed, inv.ToolName, err)
	}
	if result == nil {
		result = &Result{}
	}

	post, err := o.checker.PostCheck(ctx, pre.Token, &engine.ToolOutput{
		Text:     result.Text,
		Output:   result.Output,
		Metadata: result.Metadata,
	})
	resp.Post = post
	if err != nil {
		resp.Text = post.Message
		return resp, err
	}

	if !post.Allowed {
		o.logger.Info("tool output blocked", "tool", inv.ToolName, "rules", post.RuleIDs())
		resp.Text = post.Message
		return resp, nil
	}

	text := result.Text
	if post.Sanitized != nil {
		text = *post.Sanitized
	}
	resp.Allowed = true
	resp.Text = appendDisclaimers(text, pre.Disclaimers, post.Disclaimers)
	return resp, nil
}

func appendDisclaimers(text string, groups ...[]string) string {
	seen := make(map[string]bool)
	var sb strings.Builder
	sb.WriteString(text)
	for _, group := range groups {
		for _, d := range group {
			if seen[d] {
				continue
			}
			seen[d] = true
			sb.WriteString("\n\n")
			sb.WriteString(d)
		}
	}
	return sb.String()
}
