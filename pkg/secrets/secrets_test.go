package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/constitution/pkg/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envProvider(vars map[string]string) *EnvProvider {
	p := NewEnvProvider("CONSTITUTION_SECRET_")
	p.lookup = func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
	return p
}

// countingProvider counts lookups.
type countingProvider struct {
	values map[string]string
	calls  int
}

func (p *countingProvider) Get(_ context.Context, name string) (string, error) {
	p.calls++
	v, ok := p.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (p *countingProvider) Name() string { return "counting" }

func TestEnvProvider(t *testing.T) {
	p := envProvider(map[string]string{
		"CONSTITUTION_SECRET_GIT_TOKEN": "ghp_abc",
		"CONSTITUTION_SECRET_EMPTY":     "",
	})

	tests := []struct {
		name     string
		secret   string
		want     string
		notFound bool
	}{
		{"hyphenated name", "git-token", "ghp_abc", false},
		{"dotted name", "git.token", "ghp_abc", false},
		{"empty value", "empty", "", true},
		{"unset", "missing", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Get(context.Background(), tt.secret)
			if tt.notFound {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Get(%q) error = %v, want ErrNotFound", tt.secret, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Get(%q) = %q, %v, want %q", tt.secret, got, err, tt.want)
			}
		})
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	write := func(name, value string, perm os.FileMode) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(value), perm); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if err := os.Chmod(path, perm); err != nil {
			t.Fatalf("Chmod() error = %v", err)
		}
	}
	write("git-token", "ghp_file\n", 0o600)
	write("open", "visible", 0o644)

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v, want nil", err)
	}

	got, err := p.Get(context.Background(), "git-token")
	if err != nil || got != "ghp_file" {
		t.Errorf("Get(git-token) = %q, %v, want ghp_file", got, err)
	}

	tests := []struct {
		name     string
		secret   string
		notFound bool
	}{
		{"group readable", "open", false},
		{"traversal", "../etc/passwd", false},
		{"absolute", "/etc/passwd", false},
		{"missing", "nope", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Get(context.Background(), tt.secret)
			if err == nil {
				t.Fatalf("Get(%q) error = nil, want error", tt.secret)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Errorf("Get(%q) error = %v, ErrNotFound %v", tt.secret, err, tt.notFound)
			}
		})
	}

	if _, err := NewFileProvider(filepath.Join(dir, "git-token")); err == nil {
		t.Error("NewFileProvider(file) error = nil, want not a directory")
	}
}

func TestResolverOrderAndCache(t *testing.T) {
	first := &countingProvider{values: map[string]string{"a": "from-first"}}
	second := &countingProvider{values: map[string]string{"a": "from-second", "b": "only-second"}}
	r := NewResolver([]Provider{first, second}, time.Minute, quietLogger())
	ctx := context.Background()

	if v, err := r.Get(ctx, "a"); err != nil || v != "from-first" {
		t.Errorf("Get(a) = %q, %v, want from-first", v, err)
	}
	if v, err := r.Get(ctx, "b"); err != nil || v != "only-second" {
		t.Errorf("Get(b) = %q, %v, want only-second", v, err)
	}

	calls := first.calls
	if _, err := r.Get(ctx, "a"); err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	if first.calls != calls {
		t.Errorf("provider calls = %d, want cached value reused", first.calls)
	}

	r.Flush()
	if _, err := r.Get(ctx, "a"); err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	if first.calls != calls+1 {
		t.Errorf("provider calls after Flush = %d, want %d", first.calls, calls+1)
	}

	if _, err := r.Get(ctx, "zzzz-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCache(time.Minute)
	c.now = func() time.Time { return now }

	c.set("k", "v")
	if v, ok := c.get("k"); !ok || v != "v" {
		t.Fatalf("get() = %q, %v, want v", v, ok)
	}
	now = now.Add(time.Minute)
	if _, ok := c.get("k"); ok {
		t.Error("get() after TTL = ok, want expired")
	}
	if c.len() != 0 {
		t.Errorf("len() = %d, want expired entry removed", c.len())
	}

	off := newCache(0)
	off.set("k", "v")
	if off.len() != 0 {
		t.Error("zero TTL cache stored a value")
	}
}

func TestExpand(t *testing.T) {
	r := NewResolver([]Provider{envProvider(map[string]string{
		"CONSTITUTION_SECRET_GIT_TOKEN": "ghp_abc",
		"CONSTITUTION_SECRET_HOST":      "git.example.com",
	})}, 0, quietLogger())

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"no reference", "plain", "plain", false},
		{"whole value", "${secret:git-token}", "ghp_abc", false},
		{"embedded", "https://${secret:host}/org/policies.git", "https://git.example.com/org/policies.git", false},
		{"missing kept", "${secret:nope}", "${secret:nope}", true},
		{"empty name", "${secret:}", "${secret:}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Expand(context.Background(), tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err != nil && strings.Contains(err.Error(), "ghp_abc") {
				t.Errorf("error %q leaks a secret value", err)
			}
		})
	}
}

func TestExpandAll(t *testing.T) {
	r := NewResolver([]Provider{envProvider(map[string]string{
		"CONSTITUTION_SECRET_GIT_TOKEN": "ghp_abc",
	})}, 0, quietLogger())

	token := "${secret:git-token}"
	pass := "${secret:ssh-pass}"
	err := r.ExpandAll(context.Background(), &token, &pass)
	if err == nil {
		t.Fatal("ExpandAll() error = nil, want missing ssh-pass")
	}
	if token != "ghp_abc" {
		t.Errorf("token = %q, want resolved despite other failure", token)
	}
	if !HasReference(pass) {
		t.Errorf("pass = %q, want reference kept", pass)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Secrets

	r, err := FromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("FromConfig() error = %v, want nil", err)
	}
	if len(r.providers) != 1 || r.providers[0].Name() != "env" {
		t.Errorf("providers = %v, want env only", r.providers)
	}

	cfg.Dir = t.TempDir()
	r, err = FromConfig(&cfg, quietLogger())
	if err != nil {
		t.Fatalf("FromConfig(dir) error = %v, want nil", err)
	}
	if len(r.providers) != 2 || r.providers[1].Name() != "file" {
		t.Errorf("providers = %v, want env then file", r.providers)
	}

	cfg.Dir = filepath.Join(cfg.Dir, "missing")
	if _, err := FromConfig(&cfg, nil); err == nil {
		t.Error("FromConfig(missing dir) error = nil, want error")
	}
}
