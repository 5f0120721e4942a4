package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/constitution"
	"mercator-hq/constitution/pkg/constitution/ast"
	cerrors "mercator-hq/constitution/pkg/constitution/errors"
)

var lintFlags struct {
	file   string
	dir    string
	strict bool
	legacy bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate constitution files",
	Long: `Parse and validate constitution documents without loading them.

A document is rejected as a whole when any rule is invalid: unknown
categories or severities, missing fields, duplicate ids, invalid patterns
or unresolved predicates. Every problem is reported with its location.

Warnings (disabled rules, legacy documents) fail only with --strict.

Examples:
  # Lint a single file
  constitution lint --file constitution.yaml

  # Lint a directory
  constitution lint --dir constitutions/

  # CSV for spreadsheets, JSON for CI
  constitution lint --file constitution.yaml --format json`,
	RunE: lintDocuments,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "constitution file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of constitution files")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().BoolVar(&lintFlags.legacy, "allow-legacy", false, "accept the free-text format")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json, csv")
}

// ValidationResult is the lint outcome for one file.
type ValidationResult struct {
	File     string            `json:"file"`
	Valid    bool              `json:"valid"`
	Rules    int               `json:"rules"`
	Legacy   bool              `json:"legacy,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError is one lint finding.
type ValidationError struct {
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Type       string `json:"type,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// lintReport renders results as text or CSV.
type lintReport []ValidationResult

func lintDocuments(cmd *cobra.Command, args []string) error {
	if lintFlags.file == "" && lintFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}
	format, err := cli.ParseFormat(lintFlags.format)
	if err != nil {
		return err
	}

	var files []string
	if lintFlags.file != "" {
		files = append(files, lintFlags.file)
	}
	if lintFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(lintFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list constitution files: %w", err)
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
	}
	if len(files) == 0 {
		return fmt.Errorf("no constitution files found")
	}

	report := make(lintReport, 0, len(files))
	for _, file := range files {
		report = append(report, validateDocumentFile(file, lintFlags.legacy))
	}

	if err := cli.NewFormatter(format).FormatTo(stdout(cmd), report); err != nil {
		return err
	}

	errs, warns := report.counts()
	if errs > 0 || (lintFlags.strict && warns > 0) {
		return cli.NewCommandError("lint", errors.New("validation failed"))
	}
	return nil
}

func validateDocumentFile(path string, allowLegacy bool) ValidationResult {
	result := ValidationResult{File: path, Valid: true}

	doc, err := constitution.ParseFile(path, constitution.Options{AllowLegacy: allowLegacy})
	if err != nil {
		result.Valid = false
		result.Errors = lintErrors(err)
		return result
	}

	result.Rules = len(doc.Rules)
	result.Legacy = doc.Legacy
	if doc.Legacy {
		result.Warnings = append(result.Warnings, ValidationError{
			Message:  "document uses the legacy free-text format",
			Severity: "warning",
			Type:     string(cerrors.ErrorTypeLegacy),
		})
	}
	for _, rule := range doc.Rules {
		if !rule.Enabled {
			result.Warnings = append(result.Warnings, ValidationError{
				Line:     rule.Location.Line,
				Column:   rule.Location.Column,
				Rule:     rule.ID,
				Message:  "rule is disabled",
				Severity: "warning",
			})
		}
		if rule.Action == ast.ActionBlock && rule.Message == "" {
			result.Warnings = append(result.Warnings, ValidationError{
				Line:     rule.Location.Line,
				Column:   rule.Location.Column,
				Rule:     rule.ID,
				Message:  "blocking rule has no message, the default refusal is shown",
				Severity: "warning",
			})
		}
	}
	return result
}

func lintErrors(err error) []ValidationError {
	var list *cerrors.ErrorList
	if !errors.As(err, &list) {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, list.Count())
	for _, e := range list.Errors {
		out = append(out, ValidationError{
			Line:       e.Location.Line,
			Column:     e.Location.Column,
			Rule:       e.RuleID,
			Message:    e.Reason,
			Severity:   "error",
			Type:       string(e.Type),
			Suggestion: e.Suggestion,
		})
	}
	return out
}

func (r lintReport) counts() (errs, warns int) {
	for _, res := range r {
		errs += len(res.Errors)
		warns += len(res.Warnings)
	}
	return errs, warns
}

func (r lintReport) String() string {
	var w strings.Builder
	for _, result := range r {
		fmt.Fprintf(&w, "Validating %s...\n", result.File)
		if len(result.Errors) == 0 {
			fmt.Fprintln(&w, "✓ Syntax valid")
			fmt.Fprintf(&w, "✓ %d rule(s) valid\n", result.Rules)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(&w, "✗ Error: %s", e.Message)
			writeFindingSuffix(&w, e)
		}
		for _, warn := range result.Warnings {
			fmt.Fprintf(&w, "⚠  Warning: %s", warn.Message)
			writeFindingSuffix(&w, warn)
		}
		fmt.Fprintln(&w)
	}

	errs, warns := r.counts()
	fmt.Fprintln(&w, "Summary:")
	fmt.Fprintf(&w, "  %d error(s), %d warning(s)\n", errs, warns)
	if lintFlags.strict && warns > 0 {
		fmt.Fprintln(&w, "  Strict mode enabled: treating warnings as errors")
	}
	return w.String()
}

func writeFindingSuffix(w io.Writer, e ValidationError) {
	if e.Rule != "" {
		fmt.Fprintf(w, " (rule %s)", e.Rule)
	}
	if e.Line > 0 {
		fmt.Fprintf(w, " (line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(w, ", col %d", e.Column)
		}
		fmt.Fprint(w, ")")
	}
	if e.Type != "" {
		fmt.Fprintf(w, " [%s]", e.Type)
	}
	fmt.Fprintln(w)
	if e.Suggestion != "" {
		fmt.Fprintf(w, "    suggestion: %s\n", e.Suggestion)
	}
}

func (r lintReport) Header() []string {
	return []string{"file", "severity", "type", "rule", "line", "column", "message"}
}

func (r lintReport) Rows() [][]string {
	var rows [][]string
	for _, res := range r {
		for _, list := range [][]ValidationError{res.Errors, res.Warnings} {
			for _, e := range list {
				rows = append(rows, []string{
					res.File, e.Severity, e.Type, e.Rule,
					strconv.Itoa(e.Line), strconv.Itoa(e.Column), e.Message,
				})
			}
		}
	}
	return rows
}
