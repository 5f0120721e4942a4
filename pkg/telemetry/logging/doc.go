// Package logging builds *slog.Logger values with PII redaction.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	logger.Info("check completed",
//	    "session_id", "s-1",
//	    "token", "5b1f...",   // masked, sensitive key
//	    "note", "mail a@b.io", // email masked
//	)
//
// Redaction runs inside the handler, so it covers attributes added with
// With and groups as well as the message.
//
// # Context Fields
//
// WithSession, WithTool and WithToken attach identifiers to a context. The
// handler adds them to every record logged through a *Context method:
//
//	ctx = logging.WithSession(ctx, "s-1")
//	logger.InfoContext(ctx, "pre-check") // includes session_id=s-1
package logging
