/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package render

import (
	"strings"

	"github.com/mikeb26/medchat/internal/workflow"
)

type SectionView struct {
	Step        string   `json:"step"`
	Title       string   `json:"title"`
	Collapsible bool     `json:"collapsible"`
	Collapsed   bool     `json:"collapsed"`
	Open        bool     `json:"open"`
	Logs        []string `json:"logs"`
	Results     []string `json:"results"`
	Summary     string   `json:"summary,omitempty"`
}

// View is a document snapshot with every markdown fragment already
// rendered.
type View struct {
	Mode workflow.Mode `json:"mode"`
	Flat string        `json:"flat,omitempty"`
	// Attachments holds a flat turn's attachment processing logs.
	Attachments []string      `json:"attachments,omitempty"`
	Sections    []SectionView `json:"sections"`
	IsTyping    bool          `json:"is_typing"`
	IsDone      bool          `json:"is_done"`
	Error       string        `json:"error,omitempty"`
}

// Project renders doc through r. Collapsed sections keep their content so a
// caller can expand them without re-projecting. A nil doc projects to an
// empty view.
func Project(doc *workflow.Document, r Renderer) View {
	if doc == nil {
		return View{Mode: workflow.ModeFlat, Sections: []SectionView{}}
	}
	if r == nil {
		r = PlainRenderer{}
	}
	v := View{
		Mode:     doc.Mode,
		Sections: make([]SectionView, 0, len(doc.Sections)),
		IsTyping: doc.IsTyping,
		IsDone:   doc.IsDone,
		Error:    doc.ErrorMessage,
	}
	if doc.Mode != workflow.ModeWorkflow {
		v.Attachments = logLines(doc.AttachmentLogs)
		v.Flat = r.Render(doc.FlatBuffer)
		return v
	}

	for i, s := range doc.Sections {
		sv := SectionView{
			Step:        s.Step,
			Title:       s.Title,
			Collapsible: s.Collapsible,
			Collapsed:   s.Collapsed,
			Open:        i == doc.OpenSection,
			Logs:        logLines(s.Logs),
			Results:     make([]string, 0, len(s.Results)),
			Summary:     s.Summary,
		}
		for _, res := range s.Results {
			if out := r.Render(res.Content); out != "" {
				sv.Results = append(sv.Results, out)
			}
		}
		v.Sections = append(v.Sections, sv)
	}

	return v
}

func logLines(logs []workflow.LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, strings.TrimRight(l.Content, "\n"))
	}
	return out
}
