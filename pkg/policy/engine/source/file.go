package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Source loads a constitution document.
type Source interface {
	// Load returns the document bytes and their origin.
	Load(ctx context.Context) ([]byte, string, error)
}

// DefaultMaxFileSize bounds the size of a constitution file.
const DefaultMaxFileSize = 4 << 20

// FileSource loads a constitution from a file on disk.
type FileSource struct {
	path    string
	maxSize int64
	logger  *slog.Logger
}

// NewFileSource creates a file-based source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:    path,
		maxSize: DefaultMaxFileSize,
		logger:  logger,
	}
}

// Path returns the file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads the file.
func (s *FileSource) Load(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.path, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, s.path, fmt.Errorf("failed to stat %q: %w", s.path, err)
	}
	if info.IsDir() {
		return nil, s.path, fmt.Errorf("%q is a directory, want a constitution file", s.path)
	}
	if info.Size() > s.maxSize {
		return nil, s.path, fmt.Errorf("%q is %d bytes, limit is %d", s.path, info.Size(), s.maxSize)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, s.path, fmt.Errorf("failed to open %q: %w", s.path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxSize+1))
	if err != nil {
		return nil, s.path, fmt.Errorf("failed to read %q: %w", s.path, err)
	}

	s.logger.Debug("loaded constitution source", "path", s.path, "bytes", len(data))
	return data, s.path, nil
}
