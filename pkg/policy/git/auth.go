package git

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"mercator-hq/constitution/pkg/config"
)

// Credentials produces the transport auth for one clone or pull. A nil
// method with a nil error means anonymous access.
type Credentials func() (transport.AuthMethod, error)

// credentialsFor maps the auth config to Credentials. They are resolved on
// every fetch, so a rotated key file is picked up without a restart.
func credentialsFor(cfg config.GitAuthConfig) (Credentials, error) {
	switch cfg.Type {
	case "", "none":
		return anonymous, nil
	case "token":
		if cfg.Token == "" {
			return nil, errors.New("token auth requires a token")
		}
		return tokenCredentials(cfg.Token), nil
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return nil, errors.New("ssh auth requires ssh_key_path")
		}
		return sshCredentials(cfg.SSHKeyPath, cfg.SSHKeyPassphrase), nil
	}
	return nil, fmt.Errorf("unknown git auth type %q", cfg.Type)
}

func anonymous() (transport.AuthMethod, error) { return nil, nil }

// tokenCredentials sends the token as a basic auth password. Hosts ignore
// the username.
func tokenCredentials(token string) Credentials {
	return func() (transport.AuthMethod, error) {
		if token == "" {
			return nil, errors.New("empty git token")
		}
		return &http.BasicAuth{Username: "git", Password: token}, nil
	}
}

// sshCredentials loads a private key that must not be group or world
// accessible.
func sshCredentials(keyPath, passphrase string) Credentials {
	return func() (transport.AuthMethod, error) {
		info, err := os.Stat(keyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh key %s: %w", keyPath, err)
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return nil, fmt.Errorf("ssh key %s permissions too open (%o), want 0600", keyPath, perm)
		}
		keys, err := ssh.NewPublicKeysFromFile("git", keyPath, passphrase)
		if err != nil {
			return nil, fmt.Errorf("ssh key %s: %w", keyPath, err)
		}
		return keys, nil
	}
}
