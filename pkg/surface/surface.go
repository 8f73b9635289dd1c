// Package surface defines output rendering for graded inspections.
// Implementations handle different output targets: terminal, Markdown, JSON.
package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/inspectra/inspectra/internal/inspection"
)

// Renderer produces formatted output from an inspection Result.
type Renderer interface {
	// Render writes the formatted inspection result to the writer.
	Render(w io.Writer, result *inspection.Result) error
}

// Formats lists the names accepted by ForFormat.
func Formats() []string {
	return []string{"text", "markdown", "json"}
}

// ForFormat returns the renderer for a named output format.
func ForFormat(name string) (Renderer, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return &TerminalRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want one of %v)", name, Formats())
	}
}

// formatGrade renders an optional grade, trimming trailing zeros.
func formatGrade(g *float64) string {
	if g == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g", *g)
}
