package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/policy/engine"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Enabled enables evidence recording.
	Enabled bool

	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds enqueueing and each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// HashPayload stores a SHA-256 of the evaluated payload.
	// Default: true
	HashPayload bool

	// PreviewLength is the length of the stored payload preview. Zero
	// disables previews.
	// Default: 200
	PreviewLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		HashPayload:   true,
		PreviewLength: 200,
	}
}

// Recorder records engine decisions asynchronously.
type Recorder struct {
	storage    evidence.Storage
	config     *Config
	recordChan chan *evidence.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	now        func() time.Time
}

// NewRecorder creates a recorder writing to storage.
func NewRecorder(storage evidence.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *evidence.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "evidence.recorder"),
		now:        time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("evidence recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"hash_payload", config.HashPayload,
	)
	return r
}

// RecordDecision enqueues the record of one check. It returns an error
// when the queue stays full for WriteTimeout or the recorder is closed.
func (r *Recorder) RecordDecision(ctx context.Context, rec engine.DecisionRecord) error {
	if !r.config.Enabled || rec.Decision == nil {
		return nil
	}

	record := r.buildRecord(rec)

	select {
	case <-r.done:
		return evidence.NewRecorderError(record.ID, fmt.Errorf("recorder closed"))
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		return nil
	case <-timer.C:
		r.logger.Warn("evidence queue full, dropping record", "record_id", record.ID)
		return evidence.NewRecorderError(record.ID, fmt.Errorf("queue full"))
	case <-ctx.Done():
		return evidence.NewRecorderError(record.ID, ctx.Err())
	case <-r.done:
		return evidence.NewRecorderError(record.ID, fmt.Errorf("recorder closed"))
	}
}

// Close stops accepting records and waits until queued ones are written.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)
		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *evidence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	record.RecordedAt = r.now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"error", err,
		)
		return
	}
	r.logger.Debug("evidence record stored", "record_id", record.ID, "stage", record.Stage, "outcome", record.Outcome)
}

func (r *Recorder) buildRecord(rec engine.DecisionRecord) *evidence.Record {
	d := rec.Decision
	record := &evidence.Record{
		ID:              uuid.NewString(),
		Token:           d.Token,
		SessionID:       rec.SessionID,
		ToolName:        rec.ToolName,
		Stage:           string(d.Stage),
		State:           string(d.State),
		Outcome:         string(d.Outcome),
		Allowed:         d.Allowed,
		Severity:        d.ResolutionSeverity.String(),
		Message:         d.Message,
		Failure:         d.Failure,
		Sanitized:       d.Sanitized != nil,
		DocumentVersion: d.DocumentVersion,
		EvaluatedAt:     d.EvaluatedAt,
		Duration:        d.Duration,
	}
	if rec.Token != "" {
		record.Token = rec.Token
	}

	for _, v := range d.Violations {
		record.Violations = append(record.Violations, evidence.ViolationRecord{
			RuleID:   v.RuleID,
			Category: string(v.Category),
			Severity: v.Severity.String(),
			Action:   string(v.Action),
		})
	}
	for _, diag := range d.Diagnostics {
		record.Diagnostics = append(record.Diagnostics, fmt.Sprintf("%s: %s", diag.RuleID, diag.Reason))
	}

	if r.config.HashPayload {
		record.PayloadHash = HashString(rec.Payload)
	}
	if r.config.PreviewLength > 0 {
		record.PayloadPreview = Preview(previewSource(rec), r.config.PreviewLength)
	}
	return record
}

// previewSource picks text safe to keep: the sanitized payload when
// redaction ran, nothing when the payload was blocked, the payload otherwise.
func previewSource(rec engine.DecisionRecord) string {
	switch {
	case rec.Decision.Sanitized != nil:
		return *rec.Decision.Sanitized
	case !rec.Decision.Allowed:
		return ""
	}
	return rec.Payload
}
