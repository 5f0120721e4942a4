package parser

import (
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"mercator-hq/constitution/pkg/constitution/ast"
)

// field is a mapping entry with the node of its key, used for locations.
type field struct {
	key   *yaml.Node
	value *yaml.Node
}

// mapping indexes the entries of a YAML mapping node, preserving order.
type mapping struct {
	node    *yaml.Node
	entries map[string]field
	order   []string
}

func newMapping(node *yaml.Node) *mapping {
	m := &mapping{node: node, entries: make(map[string]field)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if _, dup := m.entries[k.Value]; !dup {
			m.order = append(m.order, k.Value)
		}
		m.entries[k.Value] = field{key: k, value: v}
	}
	return m
}

func (m *mapping) get(name string) (*yaml.Node, bool) {
	f, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return f.value, true
}

// duplicates returns keys declared more than once.
func (m *mapping) duplicates() []*yaml.Node {
	seen := make(map[string]bool)
	var dups []*yaml.Node
	for i := 0; i+1 < len(m.node.Content); i += 2 {
		k := m.node.Content[i]
		if seen[k.Value] {
			dups = append(dups, k)
		}
		seen[k.Value] = true
	}
	return dups
}

func location(node *yaml.Node, source string) ast.Location {
	if node == nil {
		return ast.Location{File: source}
	}
	return ast.Location{File: source, Line: node.Line, Column: node.Column}
}

// decodeAny converts a YAML node into plain Go values.
func decodeAny(node *yaml.Node) any {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil
	}
	return v
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// yamlErrorPosition extracts the line reported by a yaml.v3 error.
func yamlErrorPosition(err error) (int, int) {
	if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return n, 1
		}
	}
	return 1, 1
}
