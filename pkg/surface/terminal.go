package surface

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/inspectra/inspectra/internal/inspection"
	"github.com/inspectra/inspectra/pkg/grading"
)

// TerminalRenderer renders a Result as colored terminal output.
type TerminalRenderer struct{}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// gradeColor picks a color from the grade's share of its scale. Items
// without a known scale are left uncolored.
func gradeColor(item grading.ScoredItem) string {
	if noColor() || item.Grade == nil || item.ScaleMaxValue == nil || *item.ScaleMaxValue <= 0 {
		return ""
	}
	ratio := *item.Grade / *item.ScaleMaxValue
	switch {
	case ratio >= 0.75:
		return colorGreen
	case ratio >= 0.5:
		return colorYellow
	default:
		return colorRed
	}
}

func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func bold(s string) string {
	if noColor() {
		return s
	}
	return colorBold + s + colorReset
}

func dim(s string) string {
	if noColor() {
		return s
	}
	return colorDim + s + colorReset
}

func colored(s, color string) string {
	if noColor() || color == "" {
		return s
	}
	return color + s + colorReset
}

func (r *TerminalRenderer) Render(w io.Writer, result *inspection.Result) error {
	// Header
	fmt.Fprintf(w, "%s\n",
		bold(fmt.Sprintf("Inspectra: %s: Grade %s (%s)",
			result.Name, formatGrade(result.Grade), result.Strategy)))
	if result.Description != "" {
		for _, line := range wrapText(result.Description, 70) {
			fmt.Fprintf(w, "%s\n", dim(line))
		}
	}
	fmt.Fprintln(w)

	date := "unknown date"
	if !result.InspectionDate.IsZero() {
		date = result.InspectionDate.UTC().Format(time.DateTime) + " UTC"
	}
	fmt.Fprintf(w, "Target %s / organ %s / operator %s / %s\n",
		result.InspectionTargetID, result.InspectionOrganID, result.OperatorID, date)
	if len(result.Files) > 0 {
		fmt.Fprintf(w, "Files: %s\n", strings.Join(result.Files, ", "))
	}
	fmt.Fprintln(w)

	if len(result.Directions) == 0 {
		fmt.Fprintln(w, "No directions.")
		fmt.Fprintln(w)
		return nil
	}

	fmt.Fprintln(w, "Directions:")
	for _, d := range result.Directions {
		fmt.Fprintf(w, "  [%s] %s%s\n",
			colored(formatGrade(d.Grade), gradeColor(d.ScoredItem)), bold(label(d.ScoredItem)), flags(d.ScoredItem))
		for _, t := range d.Topics {
			marker := "•"
			if t.IsCritical {
				marker = colored("●", colorRed)
			}
			fmt.Fprintf(w, "      %s %s  %s%s\n",
				marker, colored(formatGrade(t.Grade), gradeColor(t)), label(t), flags(t))
			if t.Description != "" {
				for _, line := range wrapText(t.Description, 64) {
					fmt.Fprintf(w, "          %s\n", dim(line))
				}
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

// label is the display name of an item, falling back to its id.
func label(item grading.ScoredItem) string {
	if item.Name == "" {
		return item.ID
	}
	return fmt.Sprintf("%s (%s)", item.Name, item.ID)
}

func flags(item grading.ScoredItem) string {
	var parts []string
	if item.IsCritical {
		parts = append(parts, "critical")
	}
	if item.IsIgnored {
		parts = append(parts, "ignored")
	}
	if item.Weight != nil {
		parts = append(parts, fmt.Sprintf("weight %g", *item.Weight))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dim("["+strings.Join(parts, ", ")+"]")
}

// wrapText wraps a string at the given width, returning lines.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]

	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
		} else {
			current += " " + word
		}
	}
	lines = append(lines, current)
	return lines
}
