package ast

import "fmt"

// Location is the position of a node in the source document.
type Location struct {
	File   string // Path to the document, empty for in-memory sources
	Line   int    // 1-based
	Column int    // 1-based
}

// String formats the location as "file:line:column".
func (l Location) String() string {
	file := l.File
	if file == "" {
		file = "<memory>"
	}
	if l.Line == 0 {
		return file
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// IsValid reports whether the location carries a line number.
func (l Location) IsValid() bool {
	return l.Line > 0
}
