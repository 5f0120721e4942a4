// Package export writes evidence records as JSON or CSV.
//
//	exporter := export.NewJSONExporter(true)
//	err := exporter.Export(ctx, records, os.Stdout)
//
// CSV rows flatten violations into a semicolon-separated list of rule ids.
package export
