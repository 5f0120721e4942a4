package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"mercator-hq/constitution/pkg/policy/engine"
	"mercator-hq/constitution/pkg/policy/engine/source"
)

const validDoc = `version: "1.0"
rules:
  - id: no-diagnosis
    category: medical-safety
    severity: block
    condition: {type: keyword, keywords: ["diagnose me"]}
    action: block
    message: "no"
`

const updatedDoc = `version: "1.0"
rules:
  - id: no-prescription
    category: medical-safety
    severity: block
    condition: {type: keyword, keywords: ["prescribe"]}
    action: block
    message: "no"
`

type countingReloader struct {
	mu    sync.Mutex
	calls int
	last  string
	err   error
}

func (r *countingReloader) Reload(data []byte, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = string(data)
	return r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	src := source.NewMemorySource("inline", validDoc)
	if _, err := New(nil, nil, src, nil); err == nil {
		t.Error("New() with nil reloader should fail")
	}
	if _, err := New(nil, &countingReloader{}, nil, nil); err == nil {
		t.Error("New() with nil source should fail")
	}
	if _, err := New(&Config{Watch: true}, &countingReloader{}, src, nil); err == nil {
		t.Error("New() watching without a path should fail")
	}
}

func TestStartLoadsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := &countingReloader{}
	m, err := New(nil, r, source.NewMemorySource("inline", validDoc), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}

	if r.calls != 1 || r.last != validDoc {
		t.Errorf("reloader calls = %d, want 1 with the source contents", r.calls)
	}
	st := m.Status()
	if st.Reloads != 1 || st.LastError != nil || st.Origin != "inline" {
		t.Errorf("Status() = %+v", st)
	}
}

func TestStartReturnsInitialError(t *testing.T) {
	r := &countingReloader{err: errors.New("bad document")}
	m, err := New(nil, r, source.NewMemorySource("inline", "x"), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want the reload error")
	}

	ev := <-m.Events()
	if ev.Trigger != TriggerInitial || ev.Err == nil {
		t.Errorf("event = %+v, want failed initial reload", ev)
	}
	if m.Status().FailedReloads != 1 {
		t.Errorf("FailedReloads = %d, want 1", m.Status().FailedReloads)
	}
}

func TestReloadNow(t *testing.T) {
	r := &countingReloader{}
	src := source.NewMemorySource("inline", validDoc)
	m, err := New(nil, r, src, quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	src.Set(updatedDoc)
	if err := m.ReloadNow(context.Background()); err != nil {
		t.Fatalf("ReloadNow() error = %v, want nil", err)
	}
	if r.last != updatedDoc {
		t.Errorf("reloader received %q, want the updated document", r.last)
	}
}

func TestWatchReloadsEngine(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "constitution.yaml")
	writeFile(t, path, validDoc)

	eng, err := engine.New(nil, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("engine.New() error = %v, want nil", err)
	}

	cfg := &Config{Watch: true, WatchPath: path, DebounceInterval: 20 * time.Millisecond}
	m, err := New(cfg, eng, source.NewFileSource(path, quietLogger()), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	defer func() {
		if err := m.Stop(); err != nil {
			t.Errorf("Stop() error = %v, want nil", err)
		}
	}()
	<-m.Events()

	writeFile(t, path, updatedDoc)

	select {
	case ev := <-m.Events():
		if ev.Trigger != TriggerWatch || ev.Err != nil {
			t.Fatalf("event = %+v, want successful watch reload", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch reload")
	}

	if _, ok := eng.Document().Rule("no-prescription"); !ok {
		t.Error("engine did not pick up the updated document")
	}
}

func TestWatchKeepsDocumentOnBadEdit(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "constitution.yaml")
	writeFile(t, path, validDoc)

	eng, err := engine.New(nil, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("engine.New() error = %v, want nil", err)
	}
	cfg := &Config{Watch: true, WatchPath: path, DebounceInterval: 20 * time.Millisecond}
	m, err := New(cfg, eng, source.NewFileSource(path, quietLogger()), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	defer m.Stop()
	<-m.Events()

	writeFile(t, path, "version: \"1.0\"\nrules: [\n")

	select {
	case ev := <-m.Events():
		if ev.Err == nil {
			t.Fatal("broken document reloaded without error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch reload")
	}

	if _, ok := eng.Document().Rule("no-diagnosis"); !ok {
		t.Error("previous document should remain in force")
	}
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	time.Sleep(150 * time.Millisecond)
	d.Stop()

	if got := calls.Load(); got != 1 {
		t.Errorf("callback ran %d times, want 1", got)
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	if got := calls.Load(); got != 0 {
		t.Errorf("callback ran %d times after Stop, want 0", got)
	}
}
