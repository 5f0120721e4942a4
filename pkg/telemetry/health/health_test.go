package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{
			name:   "no checks",
			checks: nil,
			want:   "ready",
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"constitution": func(context.Context) error { return nil },
				"evidence":     func(context.Context) error { return nil },
			},
			want: "ready",
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"constitution": func(context.Context) error { return errors.New("no document loaded") },
				"evidence":     func(context.Context) error { return nil },
			},
			want: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second, "test")
			for name, check := range tt.checks {
				c.Register(name, check)
			}

			got := c.Readiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Readiness().Status = %q, want %q", got.Status, tt.want)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("len(Checks) = %d, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestReadiness_Timeout(t *testing.T) {
	c := New(10*time.Millisecond, "")
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	got := c.Readiness(context.Background())
	if got.Status != "not_ready" {
		t.Fatalf("Status = %q, want not_ready", got.Status)
	}
	if got.Checks["slow"].Message != "health check timeout" {
		t.Errorf("Message = %q, want timeout", got.Checks["slow"].Message)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second, "1.2.3")
	ready := false
	c.Register("constitution", func(context.Context) error {
		if !ready {
			return errors.New("no document loaded")
		}
		return nil
	})

	mux := http.NewServeMux()
	c.Mount(mux)

	tests := []struct {
		name   string
		method string
		path   string
		ready  bool
		code   int
	}{
		{"liveness", http.MethodGet, "/healthz", false, http.StatusOK},
		{"not ready", http.MethodGet, "/readyz", false, http.StatusServiceUnavailable},
		{"ready", http.MethodGet, "/readyz", true, http.StatusOK},
		{"head", http.MethodHead, "/readyz", true, http.StatusOK},
		{"post rejected", http.MethodPost, "/healthz", true, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready = tt.ready
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.method != http.MethodGet {
				return
			}
			var status Status
			if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
				t.Fatalf("Decode() error = %v, want nil", err)
			}
			if status.Version != "1.2.3" {
				t.Errorf("Version = %q, want 1.2.3", status.Version)
			}
		})
	}
}

func TestNames(t *testing.T) {
	c := New(0, "")
	c.Register("evidence", func(context.Context) error { return nil })
	c.Register("constitution", func(context.Context) error { return nil })

	names := c.Names()
	if len(names) != 2 || names[0] != "constitution" || names[1] != "evidence" {
		t.Errorf("Names() = %v, want [constitution evidence]", names)
	}
}
