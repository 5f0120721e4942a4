package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/constitution/pkg/config"
	"mercator-hq/constitution/pkg/policy/engine"
)

// Collector records engine events as Prometheus metrics.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	blockedTotal  *prometheus.CounterVec
	violations    *prometheus.CounterVec
	rulesSkipped  *prometheus.CounterVec
	reloadsTotal  *prometheus.CounterVec
	documentRules prometheus.Gauge
	outOfSequence *prometheus.CounterVec
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them on registry. A nil
// registry gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultDurationBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of checks by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),

		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of a check in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		blockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocked_total",
				Help:      "Total number of blocked checks by stage and reason",
			},
			[]string{"stage", "reason"},
		),

		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of rule violations",
			},
			[]string{"rule_id", "severity"},
		),

		rulesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_skipped_total",
				Help:      "Total number of rules skipped during evaluation",
			},
			[]string{"rule_id", "reason"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of document reloads by result",
			},
			[]string{"result"},
		),

		documentRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "document_rules",
				Help:      "Number of rules in the active document",
			},
		),

		outOfSequence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "out_of_sequence_total",
				Help:      "Total number of post-checks rejected as out of sequence",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		c.checksTotal,
		c.checkDuration,
		c.blockedTotal,
		c.violations,
		c.rulesSkipped,
		c.reloadsTotal,
		c.documentRules,
		c.outOfSequence,
	)

	return c
}

// Registry returns the registry the collector registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecision records one completed check.
func (c *Collector) ObserveDecision(d *engine.Decision) {
	stage := string(d.Stage)

	c.checksTotal.WithLabelValues(stage, string(d.Outcome)).Inc()
	c.checkDuration.WithLabelValues(stage).Observe(d.Duration.Seconds())

	if !d.Allowed {
		c.blockedTotal.WithLabelValues(stage, blockReason(d)).Inc()
	}

	for _, v := range d.Violations {
		c.violations.WithLabelValues(v.RuleID, v.Severity.String()).Inc()
	}
	for _, diag := range d.Diagnostics {
		c.rulesSkipped.WithLabelValues(diag.RuleID, string(diag.Reason)).Inc()
	}
}

// ObserveReload records a reload attempt. The rule gauge only moves on
// success.
func (c *Collector) ObserveReload(err error, rules int) {
	if err != nil {
		c.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	c.reloadsTotal.WithLabelValues("success").Inc()
	c.documentRules.Set(float64(rules))
}

// ObserveOutOfSequence records a rejected post-check.
func (c *Collector) ObserveOutOfSequence(reason engine.SequenceReason) {
	c.outOfSequence.WithLabelValues(string(reason)).Inc()
}

// blockReason distinguishes rule blocks from fail-mode blocks.
func blockReason(d *engine.Decision) string {
	if d.Failure != "" {
		return "failure"
	}
	return "rule"
}
