// Package engine gates an agent's tool calls against a loaded constitution.
//
// The engine runs two passes per request. PreCheck evaluates the user's
// request before any tool is selected; PostCheck evaluates the tool's output
// before it reaches the user. Each pass produces a Decision, the single
// contract shared with the orchestrator.
//
// # State Machine
//
//	IDLE → PRE_CHECK → PRE_BLOCKED
//	                 → PRE_ALLOWED → TOOL_EXECUTION → POST_CHECK → POST_BLOCKED
//	                                                             → POST_ALLOWED → DONE
//
// An allowed PreCheck issues a one-shot token. PostCheck must present it;
// an unknown, expired or consumed token is rejected with *OutOfSequenceError
// and a blocked decision, and the tool output must be discarded.
//
// # Conflict Resolution
//
// The resolution severity is the maximum severity of all violations in the
// pass. A decision is allowed if and only if that severity is below block.
// The user-facing message comes from the highest severity violation,
// earliest declared on ties. When an allowed pass fires redact rules, every
// matched span is replaced by the placeholder and the sanitized payload is
// rescanned before it is returned.
//
// # Reload
//
// Reload parses, validates and compiles a new document, then swaps it in
// atomically. In-flight checks keep the document they started with. A
// failed reload leaves the previous document in force and returns the
// parse errors. Until a first document loads, every check is decided by
// the fail mode, fail-closed by default.
//
// # Basic Usage
//
//	eng, err := engine.New(engine.DefaultConfig(), engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := eng.ReloadFile("constitution.yaml"); err != nil {
//	    return err
//	}
//
//	pre := eng.PreCheck(ctx, &engine.Request{Text: userText, ToolName: "query_records"})
//	if !pre.Allowed {
//	    return pre.Message
//	}
//	out := runTool(...)
//	post, err := eng.PostCheck(ctx, pre.Token, &engine.ToolOutput{Text: out})
package engine
