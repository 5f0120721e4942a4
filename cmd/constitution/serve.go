package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/constitution/pkg/cli"
	"mercator-hq/constitution/pkg/evidence"
	"mercator-hq/constitution/pkg/policy/engine"
	"mercator-hq/constitution/pkg/telemetry/health"
	"mercator-hq/constitution/pkg/telemetry/logging"
)

// maxLineSize bounds one protocol line.
const maxLineSize = 4 << 20

var serveFlags struct {
	file string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve checks as JSON lines on stdin/stdout",
	Long: `Load the constitution and answer check requests, one JSON object per line.

Requests:

  {"id":"1","op":"pre_check","request":{"text":"...","tool":"lookup"}}
  {"id":"2","op":"begin","token":"<token from pre_check>"}
  {"id":"3","op":"post_check","token":"<token>","output":{"text":"..."}}
  {"id":"4","op":"reload"}
  {"id":"5","op":"stats"}

Every request gets exactly one response line with the same id. Logs go to
stderr. SIGHUP reloads the constitution; SIGINT and SIGTERM stop the server.

When metrics are enabled, metrics.address also serves /healthz and /readyz.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.file, "file", "f", "", "constitution file (overrides document.path)")
}

// serveRequest is one protocol line.
type serveRequest struct {
	ID      string       `json:"id"`
	Op      string       `json:"op"`
	Request *checkInput  `json:"request,omitempty"`
	Token   string       `json:"token,omitempty"`
	Output  *outputInput `json:"output,omitempty"`
}

// serveResponse answers one serveRequest.
type serveResponse struct {
	ID       string           `json:"id"`
	Decision *engine.Decision `json:"decision,omitempty"`
	Stats    *engine.Stats    `json:"stats,omitempty"`
	Error    string           `json:"error,omitempty"`

	// Reason is set for out-of-sequence post-checks.
	Reason string `json:"reason,omitempty"`
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	// Spans must not interleave with protocol lines on stdout.
	c, err := build(cfg, logger, buildOptions{documentPath: serveFlags.file, traceWriter: os.Stderr})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if err := c.start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	if cfg.Metrics.Enabled {
		srv, err := c.listen(ctx)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	hup, stopHup := cli.Hangups()
	defer stopHup()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("SIGHUP received, reloading constitution")
				_ = c.manager.ReloadNow(ctx)
			}
		}
	}()

	s := &server{engine: c.engine, reload: c.manager.ReloadNow, logger: logger}
	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()

	done := make(chan error, 1)
	go func() { done <- s.serveStream(ctx, in, out) }()

	logger.Info("serving checks on stdin", "document", c.manager.Status().Origin)
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-done:
		return err
	}
}

// listen serves metrics and health probes on metrics.address.
func (c *components) listen(ctx context.Context) (*http.Server, error) {
	checker := health.New(2*time.Second, Version)
	checker.Register("constitution", func(context.Context) error {
		if c.engine.Document() == nil {
			return engine.ErrNoDocument
		}
		return nil
	})
	if c.storage != nil {
		checker.Register("evidence", func(ctx context.Context) error {
			_, err := c.storage.Count(ctx, &evidence.Query{})
			return err
		})
	}

	mux := http.NewServeMux()
	mux.Handle(c.cfg.Metrics.Path, c.metrics.Handler())
	checker.Mount(mux)

	ln, err := net.Listen("tcp", c.cfg.Metrics.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", c.cfg.Metrics.Address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", "error", err)
		}
	}()

	c.logger.Info("metrics server started", "address", ln.Addr().String(), "path", c.cfg.Metrics.Path)
	return srv, nil
}

// server answers protocol lines.
type server struct {
	engine *engine.Engine
	reload func(ctx context.Context) error
	logger *slog.Logger
}

// serveStream handles lines from r until EOF, writing one response per
// request to w.
func (s *server) serveStream(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req serveRequest
		var resp *serveResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp = &serveResponse{Error: fmt.Sprintf("invalid request: %v", err)}
		} else {
			resp = s.handle(ctx, &req)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func (s *server) handle(ctx context.Context, req *serveRequest) *serveResponse {
	ctx = logging.WithRequestID(ctx, req.ID)
	resp := &serveResponse{ID: req.ID}

	switch req.Op {
	case "pre_check":
		if req.Request == nil {
			resp.Error = "pre_check requires a request"
			return resp
		}
		ctx = logging.WithSession(ctx, req.Request.SessionID)
		ctx = logging.WithTool(ctx, req.Request.Tool)
		resp.Decision = s.engine.PreCheck(ctx, req.Request.request())

	case "begin":
		if err := s.engine.BeginToolExecution(req.Token); err != nil {
			resp.Error = err.Error()
			resp.Reason = sequenceReason(err)
		}

	case "post_check":
		out := req.Output
		if out == nil {
			out = &outputInput{}
		}
		ctx = logging.WithToken(ctx, req.Token)
		d, err := s.engine.PostCheck(ctx, req.Token, out.toolOutput())
		resp.Decision = d
		if err != nil {
			resp.Error = err.Error()
			resp.Reason = sequenceReason(err)
		}

	case "reload":
		if err := s.reload(ctx); err != nil {
			resp.Error = err.Error()
		}

	case "stats":
		st := s.engine.Stats()
		resp.Stats = &st

	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
	}

	if resp.Error != "" {
		s.logger.DebugContext(ctx, "request failed", "op", req.Op, "error", resp.Error)
	}
	return resp
}

func sequenceReason(err error) string {
	var oos *engine.OutOfSequenceError
	if errors.As(err, &oos) {
		return string(oos.Reason)
	}
	return ""
}
