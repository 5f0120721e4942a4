package engine

import (
	"time"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// Stats summarises the constitution in force and engine activity.
type Stats struct {
	Loaded   bool      `json:"loaded"`
	Name     string    `json:"name,omitempty"`
	Version  string    `json:"version,omitempty"`
	Legacy   bool      `json:"legacy"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`

	Rules        int            `json:"rules"`
	EnabledRules int            `json:"enabled_rules"`
	ByCategory   map[string]int `json:"by_category"`
	BySeverity   map[string]int `json:"by_severity"`
	ByStage      map[string]int `json:"by_stage"`

	PreChecks     uint64 `json:"pre_checks"`
	PostChecks    uint64 `json:"post_checks"`
	Blocked       uint64 `json:"blocked"`
	OutOfSequence uint64 `json:"out_of_sequence"`
	Reloads       uint64 `json:"reloads"`
	ReloadErrors  uint64 `json:"reload_errors"`
	ActiveTokens  int    `json:"active_tokens"`
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() Stats {
	s := Stats{
		ByCategory:    map[string]int{},
		BySeverity:    map[string]int{},
		ByStage:       map[string]int{},
		PreChecks:     e.preChecks.Load(),
		PostChecks:    e.postChecks.Load(),
		Blocked:       e.blocked.Load(),
		OutOfSequence: e.outOfSequence.Load(),
		Reloads:       e.reloads.Load(),
		ReloadErrors:  e.reloadErrors.Load(),
		ActiveTokens:  e.tokens.active(),
	}

	cur := e.current.Load()
	if cur == nil {
		return s
	}
	doc := cur.rules.Document()
	s.Loaded = true
	s.Name = doc.Name()
	s.Version = doc.Version
	s.Legacy = doc.Legacy
	s.LoadedAt = cur.loadedAt
	s.Rules = len(doc.Rules)

	for _, r := range doc.Rules {
		if !r.Enabled {
			continue
		}
		s.EnabledRules++
		s.ByCategory[string(r.Category)]++
		s.BySeverity[r.Severity.String()]++
		s.ByStage[string(r.Stage)]++
	}
	return s
}

// Severities lists the severity names in ascending order.
func Severities() []string {
	return ast.SeverityNames()
}
