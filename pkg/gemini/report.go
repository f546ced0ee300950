package gemini

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	validStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EAB308"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// PrintReport writes a human-readable report. Valid tools are listed only
// when verbose is set.
func PrintReport(w io.Writer, report CompatibilityReport, verbose bool) {
	fmt.Fprintf(w, "Gemini compatibility: %d tools, %s, %s\n",
		report.TotalTools,
		validStyle.Render(fmt.Sprintf("%d valid", report.ValidTools)),
		invalidStyle.Render(fmt.Sprintf("%d invalid", report.InvalidTools)))

	for _, r := range report.Results {
		if r.IsValid && len(r.Warnings) == 0 && !verbose {
			continue
		}
		mark := validStyle.Render("✓")
		if !r.IsValid {
			mark = invalidStyle.Render("✗")
		}
		fmt.Fprintf(w, "%s %s\n", mark, r.ToolName)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s %s\n", invalidStyle.Render("error:"), e)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "    %s %s\n", warnStyle.Render("warning:"), dimStyle.Render(warn))
		}
	}
}
