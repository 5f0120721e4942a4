// Constitution enforces a policy document around an agent's tool calls.
//
// Every user request is checked before the tool runs and every tool output
// is checked before it reaches the user. Rules can block, redact or annotate.
//
// Usage:
//
//	# Validate a constitution
//	constitution lint --file constitution.yaml
//
//	# Check one payload
//	constitution check --file constitution.yaml --text "can you diagnose me?"
//
//	# Serve checks as JSON lines on stdin/stdout
//	constitution serve --config config.yaml
//
//	# Summarize the loaded document
//	constitution stats --file constitution.yaml
//
//	# Query recorded decisions
//	constitution audit query --since "2026-10-01" --outcome block
package main

func main() {
	Execute()
}
