package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/config"
	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/export"
	"mercator-hq/constitution/pkg/evidence/query"
	"mercator-hq/constitution/pkg/evidence/retention"
)

var auditFlags struct {
	since   string
	until   string
	session string
	tool    string
	stage   string
	outcome string
	rule    string
	allowed bool
	blocked bool
	limit   int
	offset  int
	sortBy  string
	order   string
	format  string
	output  string
	pretty  bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and prune the evidence store",
	Long: `Inspect the audit records written for every check.

Times accept absolute dates in most common layouts ("2026-03-01",
"2026-03-01T10:00:00Z", "Mar 1 2026 10:00") or a duration before now
("24h", "30m").`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Export matching evidence records",
	Long: `Export matching evidence records as JSON or CSV.

Examples:
  constitution audit query -c config.yaml --since 24h --blocked
  constitution audit query -c config.yaml --rule no-diagnosis --format csv -o blocked.csv`,
	RunE: auditQuery,
}

var auditCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count matching evidence records",
	RunE:  auditCount,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Long: `Delete records older than evidence.retention.days and beyond
evidence.retention.max_records, archiving them first when configured.`,
	RunE: auditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditCountCmd, auditPruneCmd)

	for _, c := range []*cobra.Command{auditQueryCmd, auditCountCmd} {
		c.Flags().StringVar(&auditFlags.since, "since", "", "records evaluated at or after this time")
		c.Flags().StringVar(&auditFlags.until, "until", "", "records evaluated at or before this time")
		c.Flags().StringVar(&auditFlags.session, "session", "", "session id")
		c.Flags().StringVar(&auditFlags.tool, "tool", "", "tool name")
		c.Flags().StringVar(&auditFlags.stage, "stage", "", "stage: pre, post")
		c.Flags().StringVar(&auditFlags.outcome, "outcome", "", "outcome: allow, annotate, redact, block")
		c.Flags().StringVar(&auditFlags.rule, "rule", "", "rule id that fired")
		c.Flags().BoolVar(&auditFlags.allowed, "allowed", false, "only allowed payloads")
		c.Flags().BoolVar(&auditFlags.blocked, "blocked", false, "only blocked payloads")
	}

	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 0, fmt.Sprintf("maximum records (default %d)", query.DefaultLimit))
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "records to skip")
	auditQueryCmd.Flags().StringVar(&auditFlags.sortBy, "sort", "", "sort field: evaluated_at, recorded_at, duration")
	auditQueryCmd.Flags().StringVar(&auditFlags.order, "order", "", "sort order: asc, desc")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "json", "output format: json, csv")
	auditQueryCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default stdout)")
	auditQueryCmd.Flags().BoolVar(&auditFlags.pretty, "pretty", false, "indent JSON output")
}

// parseTime reads an absolute time or a duration before now.
func parseTime(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		t := now.Add(-d)
		return &t, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return &t, nil
}

// auditQueryFromFlags builds and validates the query named by the flags.
func auditQueryFromFlags(now time.Time) (*evidence.Query, error) {
	if auditFlags.allowed && auditFlags.blocked {
		return nil, cli.NewConfigError("allowed", "--allowed and --blocked are mutually exclusive")
	}

	q := &evidence.Query{
		SessionID: auditFlags.session,
		ToolName:  auditFlags.tool,
		Stage:     auditFlags.stage,
		Outcome:   auditFlags.outcome,
		RuleID:    auditFlags.rule,
		Limit:     auditFlags.limit,
		Offset:    auditFlags.offset,
		SortBy:    auditFlags.sortBy,
		SortOrder: auditFlags.order,
	}

	var err error
	if q.StartTime, err = parseTime(auditFlags.since, now); err != nil {
		return nil, cli.NewConfigError("since", err.Error())
	}
	if q.EndTime, err = parseTime(auditFlags.until, now); err != nil {
		return nil, cli.NewConfigError("until", err.Error())
	}

	switch {
	case auditFlags.allowed:
		v := true
		q.Allowed = &v
	case auditFlags.blocked:
		v := false
		q.Allowed = &v
	}

	if err := query.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// openEvidence opens the configured evidence store. Disabled recording does
// not prevent reading what an earlier run wrote.
func openEvidence() (*config.Config, evidence.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStorage(&cfg.Evidence)
	if err != nil {
		return nil, nil, cli.NewCommandError("audit", err)
	}
	return cfg, st, nil
}

func auditQuery(cmd *cobra.Command, args []string) error {
	var exporter evidence.Exporter
	switch auditFlags.format {
	case "json", "":
		exporter = export.NewJSONExporter(auditFlags.pretty)
	case "csv":
		exporter = export.NewCSVExporter(true)
	default:
		return cli.NewConfigError("format", fmt.Sprintf("must be json or csv, got %q", auditFlags.format))
	}

	q, err := auditQueryFromFlags(time.Now())
	if err != nil {
		return err
	}
	query.ApplyDefaults(q)

	_, st, err := openEvidence()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	records, err := st.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}

	var w io.Writer = stdout(cmd)
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return cli.NewCommandError("audit query", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter.Export(ctx, records, w); err != nil {
		return cli.NewCommandError("audit query", err)
	}
	return nil
}

func auditCount(cmd *cobra.Command, args []string) error {
	q, err := auditQueryFromFlags(time.Now())
	if err != nil {
		return err
	}

	_, st, err := openEvidence()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Count(context.Background(), q)
	if err != nil {
		return cli.NewCommandError("audit count", err)
	}
	fmt.Fprintln(stdout(cmd), n)
	return nil
}

func auditPrune(cmd *cobra.Command, args []string) error {
	cfg, st, err := openEvidence()
	if err != nil {
		return err
	}
	defer st.Close()

	pruner := retention.NewPruner(st, retentionConfig(&cfg.Evidence))
	n, err := pruner.Prune(context.Background())
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	fmt.Fprintf(stdout(cmd), "Pruned %d records\n", n)
	return nil
}
