// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/nextraction/insight-engine/internal/markdown"
	"github.com/nextraction/insight-engine/internal/pipeline"
	"github.com/nextraction/insight-engine/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintTrendsReport outputs a section-by-section summary of the parsed
// key-trends report.
func (p *Printer) PrintTrendsReport(report *markdown.TrendsReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sections := []struct {
		name    string
		content []markdown.Subsection
	}{
		{"Overview", report.Overview},
		{"Emerging Trends", report.EmergingTrends},
		{"Market Conditions", report.MarketConditions},
		{"Competitive Benchmarks", report.CompetitiveBenchmarks},
		{"User Workarounds", report.UserWorkarounds},
		{"Go-to-Market", report.GoToMarket},
		{"Validation Signals", report.ValidationSignals},
		{"Recommendations", report.Recommendations},
	}

	for _, section := range sections {
		if len(section.content) == 0 {
			continue
		}
		bullets := 0
		for _, sub := range section.content {
			bullets += len(sub.Bullets)
		}
		sb.WriteString(fmt.Sprintf("%-24s %d blocks, %d bullets\n", section.name, len(section.content), bullets))
	}

	p.printBox("KEY TRENDS REPORT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPersonas outputs the generated personas with their roles and the
// size of their pain point and goal lists.
func (p *Printer) PrintPersonas(personas []types.Persona) {
	if len(personas) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generated %d personas:\n\n", len(personas)))

	count := min(len(personas), maxItemsToShow)
	for i := 0; i < count; i++ {
		persona := personas[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, persona.Name))

		role := persona.Role
		if len(role) > 45 {
			role = role[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("    Role: %s\n", role))
		sb.WriteString(fmt.Sprintf("    Pain points: %d  Goals: %d\n", len(persona.PainPoints), len(persona.Goals)))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(personas) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more personas", len(personas)-maxItemsToShow))
	}

	p.printBox("PERSONAS", sb.String())
}

// PrintTimingSummary outputs the per-stage timing breakdown.
func (p *Printer) PrintTimingSummary(timings []pipeline.StageTiming) {
	if len(timings) == 0 {
		return
	}

	var total float64
	for _, t := range timings {
		total += t.Duration.Seconds()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total: %.2fs\n\n", total))
	for _, t := range timings {
		seconds := t.Duration.Seconds()
		percentage := 0.0
		if total > 0 {
			percentage = seconds / total * 100
		}
		sb.WriteString(fmt.Sprintf("%-24s %7.2fs (%4.1f%%)\n", t.Name, seconds, percentage))
	}

	p.printBox("STAGE TIMINGS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOverview outputs the project overview JSON keys.
func (p *Printer) PrintOverview(overview map[string]any) {
	if len(overview) == 0 {
		return
	}

	if raw, ok := overview["error"]; ok {
		p.printBox("PROJECT OVERVIEW", fmt.Sprintf("⚠ Overview was not valid JSON:\n%v", raw))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Overview with %d fields:\n\n", len(overview)))
	for key, value := range overview {
		text := fmt.Sprintf("%v", value)
		if len(text) > 40 {
			text = text[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", key, text))
	}

	p.printBox("PROJECT OVERVIEW", strings.TrimSuffix(sb.String(), "\n"))
}
