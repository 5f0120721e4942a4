package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"mercator-hq/constitution/pkg/config"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]*)\}`)

// Resolver looks secrets up in its providers, first hit wins.
type Resolver struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// NewResolver creates a resolver over providers.
func NewResolver(providers []Provider, ttl time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		providers: providers,
		cache:     newCache(ttl),
		logger:    logger.With("component", "secrets"),
	}
}

// FromConfig builds the environment provider, then the file provider when
// a directory is configured.
func FromConfig(cfg *config.SecretsConfig, logger *slog.Logger) (*Resolver, error) {
	providers := []Provider{NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return NewResolver(providers, cfg.CacheTTL, logger), nil
}

// Get returns the value of name from the cache or the first provider that
// has it. A provider failing for a reason other than ErrNotFound stops the
// search.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if v, ok := r.cache.get(name); ok {
		return v, nil
	}

	for _, p := range r.providers {
		v, err := p.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %s from %s provider: %w", redactName(name), p.Name(), err)
		}
		r.logger.Debug("secret resolved", "name", redactName(name), "provider", p.Name())
		r.cache.set(name, v)
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, redactName(name))
}

// Expand replaces every ${secret:name} in s. Unresolved references are
// left in place and reported together.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		if name == "" {
			errs = append(errs, errors.New("empty secret reference"))
			return ref
		}
		v, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// ExpandAll expands each field in place.
func (r *Resolver) ExpandAll(ctx context.Context, fields ...*string) error {
	var errs []error
	for _, f := range fields {
		v, err := r.Expand(ctx, *f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f = v
	}
	return errors.Join(errs...)
}

// Flush drops cached values so rotated secrets are read again.
func (r *Resolver) Flush() {
	r.cache.clear()
}

// HasReference reports whether s contains a secret reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}

// redactName keeps the ends of a secret name for logs.
func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
