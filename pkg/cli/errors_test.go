package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("format", "unsupported output format")

	want := "config error in format: unsupported output format"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("validation failed")
	err := NewCommandError("lint", underlying)

	want := "command lint failed: validation failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is(err, underlying) = false, want true")
	}
}

func TestExitError(t *testing.T) {
	if got := NewExitError(2, nil).Error(); got != "exit status 2" {
		t.Errorf("Error() = %q, want exit status 2", got)
	}

	underlying := errors.New("blocked")
	err := NewExitError(2, underlying)
	if err.Error() != "blocked" {
		t.Errorf("Error() = %q, want blocked", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is(err, underlying) = false, want true")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"command", NewCommandError("check", errors.New("boom")), 1},
		{"exit", NewExitError(2, nil), 2},
		{"wrapped exit", fmt.Errorf("check: %w", NewExitError(3, nil)), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
