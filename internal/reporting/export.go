package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/validation"
)

// MarshalReport encodes r as indented JSON and checks it against the report
// schema.
func MarshalReport(r *models.SessionReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}
	if errs := validation.ValidateReportBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("report %s does not match schema:\n  %s", r.SessionID, strings.Join(errs, "\n  "))
	}
	return append(data, '\n'), nil
}

// Format is a report output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatJUnit    Format = "junit"
)

// ParseFormat checks that s names a known format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatMarkdown, FormatHTML, FormatText, FormatJUnit:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Render encodes r in the given format.
func Render(r *models.SessionReport, f Format) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		return MarshalReport(r)
	case FormatMarkdown:
		return []byte(RenderMarkdown(r)), nil
	case FormatHTML:
		return RenderHTML(r)
	case FormatText:
		return []byte(FormatSummaryReport(r)), nil
	case FormatJUnit:
		return MarshalJUnit(r)
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

// Exporter publishes a finished report.
type Exporter interface {
	Export(ctx context.Context, r *models.SessionReport) (string, error)
}

// FileExporter writes <dir>/<session id>.json.
type FileExporter struct {
	Dir string
}

// Export writes the JSON report and returns its path.
func (e FileExporter) Export(ctx context.Context, r *models.SessionReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := MarshalReport(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(e.Dir, r.SessionID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
