package detect

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"mercator-hq/constitution/pkg/constitution/ast"
)

type requiredFieldDetector struct {
	fields []string
}

func compileRequiredField(cond ast.Condition, _ *Registry) (Detector, error) {
	c := cond.(*ast.RequiredFieldCondition)
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("required_field condition has no fields")
	}
	return &requiredFieldDetector{fields: c.Fields}, nil
}

func (d *requiredFieldDetector) Detect(_ context.Context, in *Input) MatchResult {
	var missing []string
	for _, f := range d.fields {
		if v, ok := in.Lookup(f); !ok || isEmpty(v) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return noMatch()
	}
	return MatchResult{Matched: true, Context: "missing field(s): " + strings.Join(missing, ", ")}
}

type structureDetector struct {
	cond *ast.StructureCondition
}

func compileStructure(cond ast.Condition, _ *Registry) (Detector, error) {
	return &structureDetector{cond: cond.(*ast.StructureCondition)}, nil
}

func (d *structureDetector) Detect(_ context.Context, in *Input) MatchResult {
	c := d.cond
	v, ok := in.Lookup(c.Field)
	if !ok || v == nil {
		if c.Required {
			return MatchResult{Matched: true, Context: fmt.Sprintf("field %s is missing", c.Field)}
		}
		return noMatch()
	}

	shape := shapeOf(v)
	if c.Expect != "" && shape != c.Expect {
		return MatchResult{Matched: true, Context: fmt.Sprintf("field %s is %s, expected %s", c.Field, shape, c.Expect)}
	}

	if c.MaxLength > 0 {
		if s, isStr := v.(string); isStr {
			if n := utf8.RuneCountInString(s); n > c.MaxLength {
				return MatchResult{Matched: true, Context: fmt.Sprintf("field %s has length %d, limit %d", c.Field, n, c.MaxLength)}
			}
		}
	}

	if c.MaxItems > 0 && (shape == ast.ShapeList || shape == ast.ShapeMap) {
		if n := reflect.ValueOf(v).Len(); n > c.MaxItems {
			return MatchResult{Matched: true, Context: fmt.Sprintf("field %s has %d items, limit %d", c.Field, n, c.MaxItems)}
		}
	}

	return noMatch()
}

func shapeOf(v any) ast.StructureKind {
	switch v.(type) {
	case string:
		return ast.ShapeString
	case bool:
		return ast.ShapeBool
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ast.ShapeNumber
	case reflect.Slice, reflect.Array:
		return ast.ShapeList
	case reflect.Map:
		return ast.ShapeMap
	case reflect.String:
		return ast.ShapeString
	case reflect.Bool:
		return ast.ShapeBool
	}
	return ast.StructureKind(fmt.Sprintf("%T", v))
}
