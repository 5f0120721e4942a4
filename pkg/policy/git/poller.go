package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReloadFunc applies the current checkout, typically manager.ReloadNow.
type ReloadFunc func(ctx context.Context) error

// PollStatus is a snapshot of the poller.
type PollStatus struct {
	Running bool
	Polls   int64

	// Applied is the last commit whose document was accepted.
	Applied string

	// Rejected is the last commit whose document was rejected.
	Rejected string

	// Skipped counts commits that did not touch the constitution.
	Skipped int64

	LastError error
	LastPoll  time.Time
}

// Poller pulls the remote on an interval and reloads when the constitution
// file changes.
type Poller struct {
	repo     *Repository
	interval time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	mu     sync.Mutex
	status PollStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(repo *Repository, interval time.Duration, reload ReloadFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		repo:     repo,
		interval: interval,
		reload:   reload,
		logger:   logger.With("component", "git.poller"),
	}
}

// Start begins polling. The repository must already be cloned, which the
// initial manager load does through Source.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.interval)
	}
	head, err := p.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to read initial commit: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Running {
		return errors.New("poller already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.status.Running = true
	p.status.Applied = head.SHA

	go p.loop(ctx, p.done)

	p.logger.Info("git poller started", "interval", p.interval, "commit", head.Short())
	return nil
}

// Stop stops polling and waits for an in-flight poll.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.status.Running = false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Status returns a snapshot.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Check(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("git poll failed", "error", err)
			}
		}
	}
}

// Check pulls once and reloads if the constitution changed. A commit that
// was rejected before is not retried.
func (p *Poller) Check(ctx context.Context) error {
	result, err := p.repo.Pull(ctx)

	p.mu.Lock()
	p.status.Polls++
	p.status.LastPoll = time.Now()
	p.status.LastError = err
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if !result.HadChanges() {
		return nil
	}

	to := shortSHA(result.ToSHA)
	if !result.Touches(p.repo.File()) {
		p.mu.Lock()
		p.status.Skipped++
		p.mu.Unlock()
		p.logger.Debug("commit does not touch the constitution", "commit", to, "changed_files", len(result.ChangedFiles))
		return nil
	}

	p.mu.Lock()
	rejected := p.status.Rejected == result.ToSHA
	p.mu.Unlock()
	if rejected {
		return nil
	}

	p.logger.Info("constitution changed upstream", "from", shortSHA(result.FromSHA), "to", to)
	err = p.reload(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastError = err
	if err != nil {
		p.status.Rejected = result.ToSHA
		return fmt.Errorf("commit %s rejected: %w", to, err)
	}
	p.status.Applied = result.ToSHA
	return nil
}
