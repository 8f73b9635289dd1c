package surface

import (
	"fmt"
	"io"
	"strings"

	"github.com/inspectra/inspectra/internal/inspection"
)

// MarkdownRenderer produces a Markdown report of a Result, suitable for
// attaching to tickets or chat messages.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(w io.Writer, result *inspection.Result) error {
	_, err := io.WriteString(w, buildMarkdownSummary(result))
	return err
}

func buildMarkdownSummary(result *inspection.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## %s: Grade %s\n\n", result.Name, formatGrade(result.Grade))
	if result.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", result.Description)
	}
	fmt.Fprintf(&sb, "_Strategy: %s. Target %s, organ %s._\n\n",
		result.Strategy, result.InspectionTargetID, result.InspectionOrganID)

	for _, d := range result.Directions {
		fmt.Fprintf(&sb, "### %s: %s\n\n", mdLabel(d.Name, d.ID), formatGrade(d.Grade))
		if len(d.Topics) == 0 {
			sb.WriteString("_No topics._\n\n")
			continue
		}
		sb.WriteString("| Topic | Grade | Notes |\n|-------|-------|-------|\n")
		for _, t := range d.Topics {
			name := mdLabel(t.Name, t.ID)
			if t.IsCritical {
				name = ":red_circle: " + name
			}
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", escapeCell(name), formatGrade(t.Grade), escapeCell(t.Description))
		}
		sb.WriteString("\n")
	}

	if len(result.Files) > 0 {
		sb.WriteString("### Files\n\n")
		for _, f := range result.Files {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	return sb.String()
}

func mdLabel(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
