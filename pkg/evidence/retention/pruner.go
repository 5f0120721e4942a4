package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/evidence/export"
	"mercator-hq/constitution/pkg/evidence/query"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep records. 0 keeps forever.
	RetentionDays int

	// PruneSchedule is a cron expression, e.g. "0 3 * * *". Empty disables
	// scheduled pruning.
	PruneSchedule string

	// ArchiveBeforeDelete writes records to ArchivePath before deleting.
	ArchiveBeforeDelete bool

	// ArchivePath is the archive directory.
	ArchivePath string

	// MaxRecords is the maximum number of records to keep. 0 is unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Pruner enforces retention on an evidence store.
type Pruner struct {
	storage   evidence.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage evidence.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "evidence.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune runs age-based then count-based pruning and returns the number of
// records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("evidence pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	q := &evidence.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		records, err := p.collect(ctx, q, 0)
		if err != nil {
			return 0, evidence.NewRetentionError(p.config.RetentionDays, err)
		}
		if err := p.archive(ctx, "age", records); err != nil {
			return 0, evidence.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, q)
	if err != nil {
		return 0, evidence.NewRetentionError(p.config.RetentionDays, err)
	}
	p.logger.Debug("pruned records by age", "deleted_count", deleted, "cutoff", cutoff)
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &evidence.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	oldest, err := p.collect(ctx, &evidence.Query{SortOrder: "asc"}, int(excess))
	if err != nil {
		return 0, fmt.Errorf("failed to query records: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, "count", oldest); err != nil {
			return 0, fmt.Errorf("archive failed: %w", err)
		}
	}

	cutoff := oldest[len(oldest)-1].EvaluatedAt
	deleted, err := p.storage.Delete(ctx, &evidence.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	p.logger.Debug("pruned records by count", "deleted_count", deleted, "max_records", p.config.MaxRecords)
	return deleted, nil
}

// collect pages through matching records. A positive limit stops early.
func (p *Pruner) collect(ctx context.Context, q *evidence.Query, limit int) ([]*evidence.Record, error) {
	var out []*evidence.Record
	page := *q
	page.Limit = query.MaxLimit
	for {
		if limit > 0 && limit-len(out) < page.Limit {
			page.Limit = limit - len(out)
		}
		records, err := p.storage.Query(ctx, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
		if len(records) < page.Limit || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		page.Offset += len(records)
	}
}

func (p *Pruner) archive(ctx context.Context, reason string, records []*evidence.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("evidence-%s-%s.json", reason, p.now().UTC().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		return fmt.Errorf("failed to export records to archive: %w", err)
	}

	p.logger.Info("evidence archived", "archive_file", path, "record_count", len(records))
	return nil
}

// Start starts scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled prune.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
