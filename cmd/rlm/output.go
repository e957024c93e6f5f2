package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/ShayCichocki/rlm/internal/staleness"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("252"))
)

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHeading prints a bold section title.
func printHeading(title string) {
	fmt.Println(headingStyle.Render(title))
}

// renderTable renders rows under headers with rounded borders.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// printReport prints a staleness report.
func printReport(path string, r *staleness.Report) {
	switch {
	case r.Reason == staleness.ReasonNoData:
		printStatus("?", fmt.Sprintf("%s has not been analyzed", path), color.FgYellow)
	case r.Stale:
		printStatus("✗", fmt.Sprintf("%s is stale: %s", path, r.Summary()), color.FgRed)
	default:
		printStatus("✓", fmt.Sprintf("%s is current", path), color.FgGreen)
	}
	if r.LastAnalysis != nil {
		fmt.Printf("  %s %s (%s)\n", mutedStyle.Render("last analysis:"), r.LastAnalysis.Local().Format(time.DateTime), r.Baseline)
	}
	printFiles("changed", r.ChangedFiles, color.FgYellow)
	printFiles("new", r.NewFiles, color.FgGreen)
	printFiles("deleted", r.DeletedFiles, color.FgRed)
	fmt.Printf("  %s %s\n", mutedStyle.Render("recommendation:"), r.Recommendation)
}

// maxListedFiles bounds the per-category file lists in reports.
const maxListedFiles = 20

func printFiles(label string, files []string, attr color.Attribute) {
	if len(files) == 0 {
		return
	}
	c := color.New(attr)
	fmt.Printf("  %s (%d)\n", label, len(files))
	for i, f := range files {
		if i == maxListedFiles {
			fmt.Printf("    %s\n", mutedStyle.Render(fmt.Sprintf("... and %d more", len(files)-maxListedFiles)))
			break
		}
		fmt.Printf("    %s %s\n", c.Sprint("•"), f)
	}
}

// oneLine collapses s to a single line of at most n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
