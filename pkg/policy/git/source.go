package git

import (
	"context"
	"fmt"
	"log/slog"
)

// Source reads the constitution from a Repository checkout. The first Load
// clones the repository when needed.
type Source struct {
	repo   *Repository
	logger *slog.Logger
}

// NewSource adapts repo to source.Source.
func NewSource(repo *Repository, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{repo: repo, logger: logger.With("component", "git.source")}
}

// Load returns the checked-out document. The origin is the file path
// inside the repository followed by the abbreviated commit, for example
// "constitution.yaml@1a2b3c4d".
func (s *Source) Load(ctx context.Context) ([]byte, string, error) {
	origin := s.repo.File()
	if err := ctx.Err(); err != nil {
		return nil, origin, err
	}

	if !s.repo.Cloned() {
		if err := s.repo.Clone(ctx); err != nil {
			return nil, origin, err
		}
		s.logger.Info("repository cloned",
			"repository", s.repo.URL(),
			"branch", s.repo.Branch(),
			"duration", s.repo.Metrics().CloneDuration)
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, origin, err
	}
	origin = fmt.Sprintf("%s@%s", s.repo.File(), head.Short())

	data, err := s.repo.ReadFile()
	if err != nil {
		return nil, origin, fmt.Errorf("failed to read %s: %w", origin, err)
	}

	s.logger.Debug("loaded constitution source", "origin", origin, "bytes", len(data))
	return data, origin, nil
}
