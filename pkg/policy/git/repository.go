package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"mercator-hq/constitution/pkg/config"
)

// ErrNotCloned is returned by operations that need a checkout.
var ErrNotCloned = errors.New("repository not cloned")

// CommitInfo describes one commit.
type CommitInfo struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Short returns the abbreviated SHA.
func (c *CommitInfo) Short() string {
	return shortSHA(c.SHA)
}

// PullResult reports what a pull changed.
type PullResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string
}

// HadChanges reports whether HEAD moved.
func (r *PullResult) HadChanges() bool {
	return r.FromSHA != r.ToSHA
}

// Touches reports whether file is among the changed files.
func (r *PullResult) Touches(file string) bool {
	want := path.Clean(filepath.ToSlash(file))
	for _, f := range r.ChangedFiles {
		if path.Clean(f) == want {
			return true
		}
	}
	return false
}

// Metrics counts repository operations.
type Metrics struct {
	CloneDuration   time.Duration
	PullDuration    time.Duration
	LastPullTime    time.Time
	SuccessfulPulls int64
	FailedPulls     int64
}

// Repository is a local checkout of the configured branch.
type Repository struct {
	cfg       config.GitConfig
	localPath string
	creds     Credentials

	mu      sync.RWMutex
	repo    *gogit.Repository
	metrics Metrics
}

// NewRepository validates cfg and prepares a repository. Nothing is fetched
// until Clone.
func NewRepository(cfg *config.GitConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("git config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("constitution file cannot be empty")
	}

	creds, err := credentialsFor(cfg.Auth)
	if err != nil {
		return nil, err
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "constitution-repo")
	}

	return &Repository{cfg: *cfg, localPath: localPath, creds: creds}, nil
}

// Clone clones the branch, or opens an existing checkout at the local path
// unless CleanOnStart is set.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() { r.metrics.CloneDuration = time.Since(start) }()

	if r.cfg.Clone.CleanOnStart {
		if err := os.RemoveAll(r.localPath); err != nil {
			return fmt.Errorf("failed to clean existing checkout: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(r.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing checkout: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.localPath, 0o755); err != nil {
		return fmt.Errorf("failed to create checkout directory: %w", err)
	}

	auth, err := r.creds()
	if err != nil {
		return fmt.Errorf("git credentials: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(ctx, r.localPath, false, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Depth:         r.cfg.Clone.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", r.cfg.Repository, err)
	}

	r.repo = repo
	return nil
}

// Pull fast-forwards the checkout and lists the files changed.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	start := time.Now()
	defer func() {
		r.metrics.PullDuration = time.Since(start)
		r.metrics.LastPullTime = time.Now()
	}()

	from, err := r.headLocked()
	if err != nil {
		return nil, err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := r.creds()
	if err != nil {
		return nil, fmt.Errorf("git credentials: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = worktree.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		r.metrics.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}
	r.metrics.SuccessfulPulls++

	to, err := r.headLocked()
	if err != nil {
		return nil, err
	}

	result := &PullResult{FromSHA: from.String(), ToSHA: to.String()}
	if result.HadChanges() {
		result.ChangedFiles, err = r.changedFilesLocked(from, to)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Head describes the checked-out commit.
func (r *Repository) Head() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}
	hash, err := r.headLocked()
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", shortSHA(hash.String()), err)
	}
	return &CommitInfo{
		SHA:       commit.Hash.String(),
		Author:    commit.Author.Name,
		Email:     commit.Author.Email,
		Timestamp: commit.Author.When,
		Message:   commit.Message,
	}, nil
}

// ReadFile returns the constitution as checked out.
func (r *Repository) ReadFile() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}
	return os.ReadFile(r.filePath())
}

// Cloned reports whether Clone succeeded.
func (r *Repository) Cloned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repo != nil
}

// Metrics returns a snapshot of the operation counters.
func (r *Repository) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// URL returns the remote repository.
func (r *Repository) URL() string { return r.cfg.Repository }

// Branch returns the tracked branch.
func (r *Repository) Branch() string { return r.cfg.Branch }

// File returns the constitution path inside the repository.
func (r *Repository) File() string { return r.cfg.File }

// LocalPath returns the checkout directory.
func (r *Repository) LocalPath() string { return r.localPath }

func (r *Repository) filePath() string {
	return filepath.Join(r.localPath, filepath.FromSlash(r.cfg.File))
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Poll.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Poll.Timeout)
}

func (r *Repository) headLocked() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash(), nil
}

func (r *Repository) changedFilesLocked(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", shortSHA(from.String()), err)
	}
	toCommit, err := r.repo.CommitObject(to)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", shortSHA(to.String()), err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
