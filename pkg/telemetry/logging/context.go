package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	sessionKey contextKey = "session_id"
	toolKey    contextKey = "tool"
	tokenKey   contextKey = "token"
	requestKey contextKey = "request_id"
)

// WithSession attaches a session identifier to ctx.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// Session returns the session identifier attached to ctx.
func Session(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}

// WithTool attaches the intended tool name to ctx.
func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, toolKey, tool)
}

// Tool returns the tool name attached to ctx.
func Tool(ctx context.Context) string {
	s, _ := ctx.Value(toolKey).(string)
	return s
}

// WithToken attaches a pre-check token to ctx. Redacting loggers mask it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// Token returns the pre-check token attached to ctx.
func Token(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey).(string)
	return s
}

// WithRequestID attaches a caller-supplied request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// RequestID returns the request id attached to ctx.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestKey).(string)
	return s
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, key := range []contextKey{requestKey, sessionKey, toolKey, tokenKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}
