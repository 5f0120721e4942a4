package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestShowStats(t *testing.T) {
	cfgFile = ""
	statsFlags.file = "testdata/constitution.yaml"
	statsFlags.evidence = false
	statsFlags.format = "text"

	cmd, out := captured()
	if err := showStats(cmd, nil); err != nil {
		t.Fatalf("showStats() error = %v, want nil", err)
	}

	for _, want := range []string{
		"Constitution: clinic-assistant",
		"Rules:        2 (2 enabled)",
		"medical-safety",
		"privacy",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output = %q, want it to contain %q", out.String(), want)
		}
	}
	if strings.Contains(out.String(), "Evidence:") {
		t.Error("output lists evidence without --evidence")
	}
}

func TestShowStatsEvidenceJSON(t *testing.T) {
	evidenceConfig(t)
	statsFlags.file = ""
	statsFlags.evidence = true
	statsFlags.format = "json"

	cmd, out := captured()
	if err := showStats(cmd, nil); err != nil {
		t.Fatalf("showStats() error = %v, want nil", err)
	}

	var report struct {
		Name     string           `json:"name"`
		Rules    int              `json:"rules"`
		Origin   string           `json:"origin"`
		Evidence map[string]int64 `json:"evidence"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Unmarshal() error = %v (output %q)", err, out.String())
	}
	if report.Name != "clinic-assistant" || report.Rules != 2 {
		t.Errorf("report = %+v, want clinic-assistant with 2 rules", report)
	}
	if _, ok := report.Evidence["block"]; !ok {
		t.Errorf("Evidence = %v, want counts per outcome", report.Evidence)
	}
}

func TestStatsReportRows(t *testing.T) {
	r := &statsReport{Evidence: map[string]int64{"block": 3}}
	r.ByCategory = map[string]int{"privacy": 1}
	r.BySeverity = map[string]int{"info": 1}

	rows := r.Rows()
	if len(rows) != 3 {
		t.Fatalf("len(Rows()) = %d, want 3", len(rows))
	}
	if rows[2][0] != "evidence" || rows[2][2] != "3" {
		t.Errorf("rows[2] = %v, want evidence block 3", rows[2])
	}
}
