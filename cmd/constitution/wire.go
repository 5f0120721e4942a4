package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/constitution/pkg/config"
	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/recorder"
	"mercator-hq/constitution/pkg/evidence/retention"
	"mercator-hq/constitution/pkg/evidence/storage"
	"mercator-hq/constitution/pkg/policy/engine"
	"mercator-hq/constitution/pkg/policy/engine/source"
	"mercator-hq/constitution/pkg/policy/git"
	"mercator-hq/constitution/pkg/policy/manager"
	"mercator-hq/constitution/pkg/secrets"
	"mercator-hq/constitution/pkg/telemetry/metrics"
	"mercator-hq/constitution/pkg/telemetry/tracing"
)

// errNoDocument is returned when neither a path nor a repository names the
// constitution.
var errNoDocument = errors.New("no constitution configured: pass --file or set document.path")

// engineConfig maps the file configuration onto the engine.
func engineConfig(cfg *config.Config) *engine.Config {
	return &engine.Config{
		FailMode:             engine.FailMode(cfg.Engine.FailMode),
		RuleTimeout:          cfg.Engine.RuleTimeout,
		TokenTTL:             cfg.Engine.TokenTTL,
		RedactionPlaceholder: cfg.Engine.RedactionPlaceholder,
		MaxRedactionPasses:   cfg.Engine.MaxRedactionPasses,
		AllowLegacy:          cfg.Document.AllowLegacy,
		MaxRules:             cfg.Document.MaxRules,
		DefaultLocale:        cfg.Engine.DefaultLocale,
		FailureMessage:       cfg.Engine.FailureMessage,
	}
}

// openStorage opens the configured evidence backend.
func openStorage(cfg *config.EvidenceConfig) (evidence.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite", "":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported evidence backend: %s", cfg.Backend)
	}
}

func recorderConfig(cfg *config.EvidenceConfig) *recorder.Config {
	return &recorder.Config{
		Enabled:       cfg.Enabled,
		AsyncBuffer:   cfg.Recorder.AsyncBuffer,
		WriteTimeout:  cfg.Recorder.WriteTimeout,
		HashPayload:   cfg.Recorder.HashPayload,
		PreviewLength: cfg.Recorder.PreviewLength,
	}
}

func retentionConfig(cfg *config.EvidenceConfig) *retention.Config {
	return &retention.Config{
		RetentionDays:       cfg.Retention.Days,
		PruneSchedule:       cfg.Retention.PruneSchedule,
		ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
		ArchivePath:         cfg.Retention.ArchivePath,
		MaxRecords:          cfg.Retention.MaxRecords,
	}
}

// components is everything a long-running command assembles from config.
type components struct {
	cfg    *config.Config
	logger *slog.Logger

	engine  *engine.Engine
	manager *manager.Manager
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	repo   *git.Repository
	poller *git.Poller

	storage  evidence.Storage
	recorder *recorder.Recorder
	pruner   *retention.Pruner
}

// buildOptions selects the optional parts of components.
type buildOptions struct {
	// documentPath overrides document.path.
	documentPath string

	// traceWriter receives stdout spans. Defaults to os.Stdout.
	traceWriter io.Writer
}

// build wires the engine, its document source and the ambient stack. The
// document is not loaded; call start.
func build(cfg *config.Config, logger *slog.Logger, opts buildOptions) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	var engOpts []engine.Option
	engOpts = append(engOpts, engine.WithLogger(logger))

	if cfg.Metrics.Enabled {
		c.metrics = metrics.NewCollector(&cfg.Metrics, nil)
		engOpts = append(engOpts, engine.WithObserver(c.metrics))
	}

	tr, err := tracing.New(&cfg.Tracing, opts.traceWriter)
	if err != nil {
		return nil, err
	}
	c.tracer = tr
	engOpts = append(engOpts, engine.WithTracer(tr.Tracer()))

	if cfg.Evidence.Enabled {
		st, err := openStorage(&cfg.Evidence)
		if err != nil {
			c.close(context.Background())
			return nil, err
		}
		c.storage = st
		c.recorder = recorder.NewRecorder(st, recorderConfig(&cfg.Evidence))
		c.pruner = retention.NewPruner(st, retentionConfig(&cfg.Evidence))
		engOpts = append(engOpts, engine.WithRecorder(c.recorder))
	}

	eng, err := engine.New(engineConfig(cfg), engOpts...)
	if err != nil {
		c.close(context.Background())
		return nil, err
	}
	c.engine = eng

	src, watchPath, err := c.documentSource(opts.documentPath)
	if err != nil {
		c.close(context.Background())
		return nil, err
	}

	mgr, err := manager.New(&manager.Config{
		Watch:            cfg.Document.Watch && watchPath != "",
		WatchPath:        watchPath,
		DebounceInterval: cfg.Document.DebounceInterval,
	}, eng, src, logger)
	if err != nil {
		c.close(context.Background())
		return nil, err
	}
	c.manager = mgr

	return c, nil
}

func (c *components) documentSource(override string) (source.Source, string, error) {
	if override == "" && c.cfg.Document.Git.Enabled {
		if err := resolveGitSecrets(c.cfg, c.logger); err != nil {
			return nil, "", err
		}
		repo, err := git.NewRepository(&c.cfg.Document.Git)
		if err != nil {
			return nil, "", err
		}
		c.repo = repo
		return git.NewSource(repo, c.logger), "", nil
	}

	path := override
	if path == "" {
		path = c.cfg.Document.Path
	}
	if path == "" {
		return nil, "", errNoDocument
	}
	return source.NewFileSource(path, c.logger), path, nil
}

// resolveGitSecrets expands ${secret:name} references in the repository URL
// and credentials.
func resolveGitSecrets(cfg *config.Config, logger *slog.Logger) error {
	g := &cfg.Document.Git
	fields := []*string{&g.Repository, &g.Auth.Token, &g.Auth.SSHKeyPassphrase}

	found := false
	for _, f := range fields {
		found = found || secrets.HasReference(*f)
	}
	if !found {
		return nil
	}

	r, err := secrets.FromConfig(&cfg.Secrets, logger)
	if err != nil {
		return err
	}
	if err := r.ExpandAll(context.Background(), fields...); err != nil {
		return fmt.Errorf("failed to resolve git credentials: %w", err)
	}
	return nil
}

// start loads the constitution and starts watchers, polling and pruning.
func (c *components) start(ctx context.Context) error {
	if err := c.manager.Start(ctx); err != nil {
		return err
	}

	if c.repo != nil && c.cfg.Document.Git.Poll.Enabled {
		c.poller = git.NewPoller(c.repo, c.cfg.Document.Git.Poll.Interval, c.manager.ReloadNow, c.logger)
		if err := c.poller.Start(ctx); err != nil {
			return err
		}
	}

	if c.pruner != nil {
		if err := c.pruner.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// close stops background work and flushes evidence and spans, in that
// order.
func (c *components) close(ctx context.Context) error {
	var errs []error

	if c.poller != nil {
		c.poller.Stop()
	}
	if c.manager != nil {
		errs = append(errs, c.manager.Stop())
	}
	if c.pruner != nil {
		c.pruner.Stop()
	}
	if c.recorder != nil {
		errs = append(errs, c.recorder.Close())
	}
	if c.storage != nil {
		errs = append(errs, c.storage.Close())
	}
	if c.tracer != nil {
		errs = append(errs, c.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
