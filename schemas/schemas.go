// Package schemas embeds the JSON schemas for mockview's file formats.
package schemas

import _ "embed"

// ScriptSchemaJSON describes simulation scripts.
//
//go:embed script.schema.json
var ScriptSchemaJSON string

// ConfigSchemaJSON describes .mockview.yaml.
//
//go:embed config.schema.json
var ConfigSchemaJSON string

// ReportSchemaJSON describes exported session reports.
//
//go:embed report.schema.json
var ReportSchemaJSON string
