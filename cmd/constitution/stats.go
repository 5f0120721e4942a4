package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/policy/engine"
)

var statsFlags struct {
	file     string
	evidence bool
	format   string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise a constitution",
	Long: `Load the constitution and print its rule counts by category, severity and
stage. With --evidence, also count the audit records by outcome.

Examples:
  constitution stats --file constitution.yaml
  constitution stats -c config.yaml --evidence --format json`,
	RunE: showStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsFlags.file, "file", "f", "", "constitution file (overrides document.path)")
	statsCmd.Flags().BoolVar(&statsFlags.evidence, "evidence", false, "count evidence records by outcome")
	statsCmd.Flags().StringVar(&statsFlags.format, "format", "text", "output format: text, json, csv")
}

// statsReport is the output of the stats command.
type statsReport struct {
	engine.Stats
	Origin   string           `json:"origin"`
	Evidence map[string]int64 `json:"evidence,omitempty"`
}

func showStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statsFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Document.Watch = false
	cfg.Document.Git.Poll.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.Evidence.Enabled = statsFlags.evidence
	cfg.Evidence.Retention.PruneSchedule = ""

	logger, err := newLogger(cfg, nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := build(cfg, logger, buildOptions{documentPath: statsFlags.file})
	if err != nil {
		return err
	}
	defer c.close(ctx)

	if err := c.start(ctx); err != nil {
		return cli.NewCommandError("stats", err)
	}

	report := &statsReport{Stats: c.engine.Stats(), Origin: c.manager.Status().Origin}
	if c.storage != nil {
		counts, err := countByOutcome(ctx, c.storage)
		if err != nil {
			return cli.NewCommandError("stats", err)
		}
		report.Evidence = counts
	}

	return cli.NewFormatter(format).FormatTo(stdout(cmd), report)
}

func countByOutcome(ctx context.Context, st evidence.Storage) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, outcome := range []string{"allow", "annotate", "redact", "block"} {
		n, err := st.Count(ctx, &evidence.Query{Outcome: outcome})
		if err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, nil
}

func (r *statsReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Constitution: %s (version %s)\n", r.Name, r.Version)
	fmt.Fprintf(&sb, "Origin:       %s\n", r.Origin)
	if r.Legacy {
		sb.WriteString("Format:       legacy\n")
	}
	fmt.Fprintf(&sb, "Rules:        %d (%d enabled)\n", r.Rules, r.EnabledRules)

	writeCounts(&sb, "By category", r.ByCategory)
	writeCounts(&sb, "By severity", r.BySeverity)
	writeCounts(&sb, "By stage", r.ByStage)

	if r.Evidence != nil {
		sb.WriteString("\nEvidence:\n")
		for _, outcome := range []string{"allow", "annotate", "redact", "block"} {
			fmt.Fprintf(&sb, "  %-10s %d\n", outcome, r.Evidence[outcome])
		}
	}
	return sb.String()
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(sb, "  %-20s %d\n", k, counts[k])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *statsReport) Header() []string {
	return []string{"group", "key", "count"}
}

func (r *statsReport) Rows() [][]string {
	var rows [][]string
	add := func(group string, counts map[string]int) {
		for _, k := range sortedKeys(counts) {
			rows = append(rows, []string{group, k, fmt.Sprint(counts[k])})
		}
	}
	add("category", r.ByCategory)
	add("severity", r.BySeverity)
	add("stage", r.ByStage)
	for _, outcome := range []string{"allow", "annotate", "redact", "block"} {
		if n, ok := r.Evidence[outcome]; ok {
			rows = append(rows, []string{"evidence", outcome, fmt.Sprint(n)})
		}
	}
	return rows
}
