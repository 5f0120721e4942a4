// Package metrics exports constitution engine events to Prometheus.
//
// A Collector owns its registry and implements engine.Observer, so wiring
// it is a single option:
//
//	collector := metrics.NewCollector(&cfg.Metrics, nil)
//	eng, err := engine.New(engCfg, engine.WithObserver(collector))
//	http.Handle(cfg.Metrics.Path, collector.Handler())
//
// Metrics (namespace defaults to "constitution"):
//
//   - checks_total{stage,outcome}
//   - check_duration_seconds{stage}
//   - blocked_total{stage,reason}
//   - violations_total{rule_id,severity}
//   - rules_skipped_total{rule_id,reason}
//   - reloads_total{result}
//   - document_rules
//   - out_of_sequence_total{reason}
//
// Rule ids are bounded by the document's rule cap, which keeps label
// cardinality finite.
package metrics
