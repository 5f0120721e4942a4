package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/policy/engine"
)

// exitBlocked is the exit status of a check whose payload was refused.
const exitBlocked = 2

var checkFlags struct {
	file    string
	stage   string
	text    string
	request string
	input   string
	tool    string
	session string
	locale  string
	format  string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one payload against a constitution",
	Long: `Evaluate a payload against the constitution and print the decision.

The pre stage checks a user request. The post stage first runs a pre-check
on --request (empty by default), then checks --text as the tool output, so
the token sequence is the same as in production.

Payloads may also be given as JSON with --input (a file, or "-" for stdin):

  {"text": "...", "tool": "lookup", "arguments": {...}, "locale": "de",
   "output": {"text": "...", "output": {...}}}

The exit status is 2 when the payload is blocked.

Examples:
  constitution check --file constitution.yaml --text "diagnose me"
  constitution check --file constitution.yaml --stage post --text "call 555-0101"
  echo '{"text":"hi","tool":"search"}' | constitution check -f constitution.yaml --input -`,
	RunE: checkPayload,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkFlags.file, "file", "f", "", "constitution file (overrides document.path)")
	checkCmd.Flags().StringVar(&checkFlags.stage, "stage", "pre", "stage to check: pre, post")
	checkCmd.Flags().StringVarP(&checkFlags.text, "text", "t", "", "payload text")
	checkCmd.Flags().StringVar(&checkFlags.request, "request", "", "request text for the post stage")
	checkCmd.Flags().StringVarP(&checkFlags.input, "input", "i", "", `JSON payload file, "-" for stdin`)
	checkCmd.Flags().StringVar(&checkFlags.tool, "tool", "", "tool name")
	checkCmd.Flags().StringVar(&checkFlags.session, "session", "", "session id")
	checkCmd.Flags().StringVar(&checkFlags.locale, "locale", "", "payload locale, e.g. de-DE")
	checkCmd.Flags().StringVar(&checkFlags.format, "format", "text", "output format: text, json, csv")
}

// checkInput is the JSON payload accepted by --input and by serve.
type checkInput struct {
	Text      string         `json:"text"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Locale    string         `json:"locale,omitempty"`
	Output    *outputInput   `json:"output,omitempty"`
}

type outputInput struct {
	Text     string         `json:"text"`
	Output   any            `json:"output,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (in *checkInput) request() *engine.Request {
	return &engine.Request{
		Text:      in.Text,
		ToolName:  in.Tool,
		Arguments: in.Arguments,
		Metadata:  in.Metadata,
		SessionID: in.SessionID,
		Locale:    in.Locale,
	}
}

func (out *outputInput) toolOutput() *engine.ToolOutput {
	return &engine.ToolOutput{Text: out.Text, Output: out.Output, Metadata: out.Metadata}
}

func checkPayload(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(checkFlags.format)
	if err != nil {
		return err
	}
	if checkFlags.stage != "pre" && checkFlags.stage != "post" {
		return cli.NewConfigError("stage", fmt.Sprintf("must be pre or post, got %q", checkFlags.stage))
	}

	in, err := readCheckInput(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// One-shot: no file watching, polling or metrics listener.
	cfg.Document.Watch = false
	cfg.Document.Git.Poll.Enabled = false
	cfg.Metrics.Enabled = false

	logger, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := build(cfg, logger, buildOptions{documentPath: checkFlags.file, traceWriter: os.Stderr})
	if err != nil {
		return err
	}
	defer c.close(ctx)

	if err := c.start(ctx); err != nil {
		return cli.NewCommandError("check", err)
	}

	result, err := runCheck(ctx, c.engine, checkFlags.stage, in)
	if err != nil {
		return err
	}

	if err := cli.NewFormatter(format).FormatTo(stdout(cmd), result); err != nil {
		return err
	}
	if result.Blocked() {
		return cli.NewExitError(exitBlocked, nil)
	}
	return nil
}

func readCheckInput(cmd *cobra.Command) (*checkInput, error) {
	if checkFlags.input == "" {
		in := &checkInput{
			Tool:      checkFlags.tool,
			SessionID: checkFlags.session,
			Locale:    checkFlags.locale,
		}
		if checkFlags.stage == "post" {
			in.Text = checkFlags.request
			in.Output = &outputInput{Text: checkFlags.text}
		} else {
			in.Text = checkFlags.text
		}
		return in, nil
	}

	var r io.Reader
	if checkFlags.input == "-" {
		r = os.Stdin
		if cmd != nil {
			r = cmd.InOrStdin()
		}
	} else {
		f, err := os.Open(checkFlags.input)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var in checkInput
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if checkFlags.tool != "" {
		in.Tool = checkFlags.tool
	}
	if checkFlags.stage == "post" && in.Output == nil {
		return nil, errors.New(`post stage requires an "output" object in the input`)
	}
	return &in, nil
}

// runCheck runs the pre-check, and for the post stage the tool execution
// transition and the post-check.
func runCheck(ctx context.Context, eng *engine.Engine, stage string, in *checkInput) (*checkResult, error) {
	pre := eng.PreCheck(ctx, in.request())
	result := &checkResult{Decisions: []*engine.Decision{pre}}
	if stage == "pre" || !pre.Allowed {
		return result, nil
	}

	if err := eng.BeginToolExecution(pre.Token); err != nil {
		return nil, err
	}
	out := in.Output
	if out == nil {
		out = &outputInput{}
	}
	post, err := eng.PostCheck(ctx, pre.Token, out.toolOutput())
	if err != nil {
		return nil, err
	}
	result.Decisions = append(result.Decisions, post)
	return result, nil
}

// checkResult is the decision sequence of one check.
type checkResult struct {
	Decisions []*engine.Decision `json:"decisions"`
}

// Blocked reports whether the last decision refused its payload.
func (r *checkResult) Blocked() bool {
	return len(r.Decisions) > 0 && !r.Decisions[len(r.Decisions)-1].Allowed
}

func (r *checkResult) String() string {
	var sb strings.Builder
	for i, d := range r.Decisions {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeDecision(&sb, d)
	}
	return sb.String()
}

func writeDecision(w io.Writer, d *engine.Decision) {
	verdict := "ALLOWED"
	if !d.Allowed {
		verdict = "BLOCKED"
	}
	fmt.Fprintf(w, "%s-check: %s (outcome %s, severity %s, state %s)\n",
		d.Stage, verdict, d.Outcome, d.ResolutionSeverity, d.State)

	for _, v := range d.Violations {
		fmt.Fprintf(w, "  ✗ %s [%s/%s] action=%s", v.RuleID, v.Category, v.Severity, v.Action)
		if v.MatchedContext != "" {
			fmt.Fprintf(w, " matched %q", v.MatchedContext)
		}
		fmt.Fprintln(w)
	}
	for _, diag := range d.Diagnostics {
		fmt.Fprintf(w, "  ⚠  %s\n", diag.Error())
	}
	if d.Failure != "" {
		fmt.Fprintf(w, "  failure: %s\n", d.Failure)
	}
	if d.Message != "" {
		fmt.Fprintf(w, "  message: %s\n", d.Message)
	}
	if d.Sanitized != nil {
		fmt.Fprintf(w, "  sanitized: %s\n", *d.Sanitized)
	}
	for _, disclaimer := range d.Disclaimers {
		fmt.Fprintf(w, "  disclaimer: %s\n", disclaimer)
	}
	if len(d.SuggestedTools) > 0 {
		fmt.Fprintf(w, "  suggested tools: %s\n", strings.Join(d.SuggestedTools, ", "))
	}
}

func (r *checkResult) Header() []string {
	return []string{"stage", "allowed", "outcome", "rule_id", "category", "severity", "action", "matched"}
}

// Rows has one row per violation, or one empty row for a clean decision.
func (r *checkResult) Rows() [][]string {
	var rows [][]string
	for _, d := range r.Decisions {
		base := []string{string(d.Stage), fmt.Sprint(d.Allowed), string(d.Outcome)}
		if len(d.Violations) == 0 {
			rows = append(rows, append(base, "", "", "", "", ""))
			continue
		}
		for _, v := range d.Violations {
			row := append(append([]string(nil), base...),
				v.RuleID, string(v.Category), v.Severity.String(), string(v.Action), v.MatchedContext)
			rows = append(rows, row)
		}
	}
	return rows
}
