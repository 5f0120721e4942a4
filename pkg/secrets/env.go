package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. The variable is the
// prefix followed by the upper-cased name with hyphens and dots replaced by
// underscores.
type EnvProvider struct {
	Prefix string

	// lookup defaults to os.LookupEnv.
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

// Get reads the variable for name. An empty variable counts as unset.
func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	key := p.Variable(name)
	value, ok := p.lookup(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, key)
	}
	return value, nil
}

// Variable returns the environment variable holding name.
func (p *EnvProvider) Variable(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.Prefix + strings.ToUpper(r.Replace(name))
}

func (p *EnvProvider) Name() string { return "env" }
