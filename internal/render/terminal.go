/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mikeb26/medchat/internal/workflow"
)

const DefaultWidth = 80

var (
	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	openSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			PaddingLeft(2)

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	typingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// Terminal renders markdown with glamour and lays documents out with
// lipgloss.
type Terminal struct {
	md    *glamour.TermRenderer
	width int
}

// NewTerminal builds a terminal projector. style is a glamour standard
// style name, or "auto".
func NewTerminal(style string, width int) (*Terminal, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	styleOpt := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}

	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("Failed to create markdown renderer: %w", err)
	}

	return &Terminal{md: md, width: width}, nil
}

func (t *Terminal) Render(markdown string) (out string) {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	defer func() {
		if recover() != nil {
			out = markdown
		}
	}()

	rendered, err := t.md.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(rendered, "\n")
}

// Document lays out a full document. Collapsed sections show only their
// title and summary.
func (t *Terminal) Document(doc *workflow.Document) string {
	return t.Layout(Project(doc, t))
}

func (t *Terminal) Layout(v View) string {
	var parts []string

	if v.Mode != workflow.ModeWorkflow {
		if len(v.Attachments) > 0 {
			parts = append(parts, logStyle.Width(t.width).Render(strings.Join(v.Attachments, "\n")))
		}
		if v.Flat != "" {
			parts = append(parts, v.Flat)
		}
	}
	for _, s := range v.Sections {
		parts = append(parts, t.section(s))
	}

	switch {
	case v.Error != "":
		parts = append(parts, errorStyle.Render("✗ "+v.Error))
	case v.IsTyping:
		parts = append(parts, typingStyle.Render("…"))
	}

	return strings.Join(parts, "\n\n")
}

func (t *Terminal) section(s SectionView) string {
	var lines []string

	if s.Title != "" {
		marker := "▾"
		if s.Collapsed {
			marker = "▸"
		}
		style := sectionTitleStyle
		if s.Open {
			style = openSectionStyle
		}
		lines = append(lines, style.Render(marker+" "+s.Title))
	}

	if s.Collapsed {
		if s.Summary != "" {
			lines = append(lines, summaryStyle.Render(s.Summary))
		}
		return strings.Join(lines, "\n")
	}

	if len(s.Logs) > 0 {
		lines = append(lines, logStyle.Width(t.width).Render(strings.Join(s.Logs, "\n")))
	}
	lines = append(lines, s.Results...)
	if s.Summary != "" {
		lines = append(lines, summaryStyle.Render(s.Summary))
	}

	return strings.Join(lines, "\n")
}
