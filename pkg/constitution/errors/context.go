package errors

import (
	"fmt"
	"strings"
)

// ExtractContext renders the lines surrounding line (1-based) of source,
// marking the offending line and column.
func ExtractContext(source []byte, line, column, contextLines int) string {
	if line <= 0 || len(source) == 0 {
		return ""
	}

	lines := strings.Split(strings.TrimRight(string(source), "\n"), "\n")
	errorLine := line - 1
	if errorLine >= len(lines) {
		return ""
	}

	start := max(errorLine-contextLines, 0)
	end := min(errorLine+contextLines, len(lines)-1)

	var sb strings.Builder
	width := len(fmt.Sprintf("%d", end+1))

	for i := start; i <= end; i++ {
		prefix := "  "
		if i == errorLine {
			prefix = "->"
		}
		sb.WriteString(fmt.Sprintf("%s %*d | %s\n", prefix, width, i+1, lines[i]))

		if i == errorLine && column > 0 {
			sb.WriteString(fmt.Sprintf("   %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", column-1)))
		}
	}

	return sb.String()
}

// AttachContext fills the Context of every error in the list from source.
func AttachContext(el *ErrorList, source []byte, contextLines int) {
	if el == nil {
		return
	}
	for _, err := range el.Errors {
		if err.Context == "" && err.Location.IsValid() {
			err.Context = ExtractContext(source, err.Location.Line, err.Location.Column, contextLines)
		}
	}
}
