package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/constitution/pkg/evidence"
)

// CSVExporter exports evidence records as CSV.
type CSVExporter struct {
	// IncludeHeader writes a header row.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "token", "session_id", "tool_name",
	"stage", "state", "outcome", "allowed", "severity",
	"rule_ids", "message", "failure", "sanitized",
	"document_version", "payload_hash",
	"evaluated_at", "duration_us",
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for i, r := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := writer.Write(recordToRow(r)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(r *evidence.Record) []string {
	return []string{
		r.ID, r.Token, r.SessionID, r.ToolName,
		r.Stage, r.State, r.Outcome, strconv.FormatBool(r.Allowed), r.Severity,
		strings.Join(r.RuleIDs(), ";"), r.Message, r.Failure, strconv.FormatBool(r.Sanitized),
		r.DocumentVersion, r.PayloadHash,
		r.EvaluatedAt.UTC().Format(time.RFC3339Nano), strconv.FormatInt(r.Duration.Microseconds(), 10),
	}
}
