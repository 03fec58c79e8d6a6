// Package markdown converts the pipeline's markdown reports into structured
// JSON-ready trees. Both parsers are pure functions of their text input.
package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// Subsection is one parsed block of a trends report section.
type Subsection struct {
	Subheading string   `json:"subheading,omitempty"`
	Content    string   `json:"content,omitempty"`
	Bullets    []string `json:"bullets,omitempty"`
}

// TrendsReport is the structured form of a deep research report. Section
// numbers in the markdown map to fields; numbers outside 1..8 are ignored.
type TrendsReport struct {
	Overview              []Subsection `json:"overview"`
	EmergingTrends        []Subsection `json:"emerging_trends"`
	MarketConditions      []Subsection `json:"market_conditions"`
	CompetitiveBenchmarks []Subsection `json:"competitive_benchmarks"`
	UserWorkarounds       []Subsection `json:"user_workarounds"`
	GoToMarket            []Subsection `json:"go_to_market"`
	ValidationSignals     []Subsection `json:"validation_signals"`
	Recommendations       []Subsection `json:"recommendations"`
}

// Section is one top-level section of a final analysis report.
type Section struct {
	Heading string   `json:"heading"`
	Content string   `json:"content"`
	Bullets []string `json:"bullets"`
}

// FinalAnalysis is the structured form of the final synthesis report.
type FinalAnalysis struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// numberedHeader matches headers like "# 1. Overview" or "### 3. Market Conditions".
var numberedHeader = regexp.MustCompile(`^#{1,3} (\d+)\.\s+(.*)`)

// boldSubheading matches a line that is entirely a bold subheading,
// with an optional trailing colon.
var boldSubheading = regexp.MustCompile(`^\*\*(.*?)\*\*:?$`)

// ParseTrendsReport parses a numbered-section research report into its
// structured form. Sections are delimited by numbered markdown headers.
// Returns an empty report for empty input.
func ParseTrendsReport(text string) *TrendsReport {
	report := &TrendsReport{
		Overview:              []Subsection{},
		EmergingTrends:        []Subsection{},
		MarketConditions:      []Subsection{},
		CompetitiveBenchmarks: []Subsection{},
		UserWorkarounds:       []Subsection{},
		GoToMarket:            []Subsection{},
		ValidationSignals:     []Subsection{},
		Recommendations:       []Subsection{},
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")

	currentNum := 0
	var currentLines []string

	flush := func() {
		if currentNum == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(currentLines, "\n"))
		if content == "" {
			return
		}
		parsed := parseSectionContent(content)
		switch currentNum {
		case 1:
			report.Overview = parsed
		case 2:
			report.EmergingTrends = parsed
		case 3:
			report.MarketConditions = parsed
		case 4:
			report.CompetitiveBenchmarks = parsed
		case 5:
			report.UserWorkarounds = parsed
		case 6:
			report.GoToMarket = parsed
		case 7:
			report.ValidationSignals = parsed
		case 8:
			report.Recommendations = parsed
		}
	}

	for _, line := range lines {
		if m := numberedHeader.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			currentNum, _ = strconv.Atoi(m[1])
			currentLines = nil
			continue
		}
		currentLines = append(currentLines, line)
	}
	flush()

	return report
}

// parseSectionContent breaks a section body into subsections. A new block
// starts at a bold subheading line or a bold-led bullet. A line that is
// entirely a bold subheading names the block that follows it.
func parseSectionContent(content string) []Subsection {
	var parts []string
	var current []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "**") || strings.HasPrefix(trimmed, "- **") {
			if len(current) > 0 {
				parts = append(parts, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}

	subsections := []Subsection{}
	pendingSubheading := ""

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if m := boldSubheading.FindStringSubmatch(part); m != nil {
			pendingSubheading = strings.TrimSpace(m[1])
			continue
		}

		var contentLines []string
		var bullets []string
		for _, line := range strings.Split(part, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
				bullets = append(bullets, strings.TrimSpace(line[2:]))
			} else {
				contentLines = append(contentLines, line)
			}
		}

		sub := Subsection{
			Content: strings.TrimSpace(strings.Join(contentLines, "\n")),
			Bullets: bullets,
		}
		if pendingSubheading != "" {
			sub.Subheading = pendingSubheading
			pendingSubheading = ""
		}

		if sub.Subheading != "" || sub.Content != "" || len(sub.Bullets) > 0 {
			subsections = append(subsections, sub)
		}
	}

	return subsections
}

// ParseFinalAnalysis parses a final synthesis report. The first top-level
// header becomes the title; each subsequent top-level header opens a section
// whose body is split into bullet lines and remaining content.
func ParseFinalAnalysis(text string) *FinalAnalysis {
	out := &FinalAnalysis{Sections: []Section{}}
	if strings.TrimSpace(text) == "" {
		return out
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")

	currentHeading := ""
	var currentLines []string
	haveSection := false

	flush := func() {
		if !haveSection {
			return
		}
		var bullets []string
		var contentLines []string
		for _, line := range currentLines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "- ") {
				bullets = append(bullets, strings.TrimSpace(line[2:]))
			} else {
				contentLines = append(contentLines, line)
			}
		}
		if bullets == nil {
			bullets = []string{}
		}
		out.Sections = append(out.Sections, Section{
			Heading: currentHeading,
			Content: strings.TrimSpace(strings.Join(contentLines, "\n")),
			Bullets: bullets,
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			heading := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			if out.Title == "" {
				out.Title = heading
				continue
			}
			flush()
			currentHeading = heading
			currentLines = nil
			haveSection = true
			continue
		}
		if haveSection {
			currentLines = append(currentLines, line)
		}
	}
	flush()

	return out
}
