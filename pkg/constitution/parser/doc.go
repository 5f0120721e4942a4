// Package parser turns constitution source text into an immutable ast.Document.
//
// Two formats are accepted. The structured format is a YAML mapping with a
// version and a list of rules; it is read through yaml.Node so every error
// carries a line and column. The legacy format is free English text, from
// which prohibited phrases are extracted into a single advisory rule.
//
// The parser never stops at the first problem: every structural error in a
// document is collected and returned together as an *errors.ErrorList.
//
// # Basic Usage
//
//	p := parser.NewParser()
//	doc, err := p.ParseFile("constitution.yaml")
//	if err != nil {
//	    var list *errors.ErrorList
//	    if stderrors.As(err, &list) {
//	        for _, e := range list.Errors {
//	            fmt.Println(e.Location, e.Reason)
//	        }
//	    }
//	}
package parser
