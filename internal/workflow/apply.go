/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package workflow

import (
	"maps"

	"github.com/mikeb26/medchat/internal/types"
)

// Outcome describes what applying one event did.
type Outcome struct {
	// Changed is set when the document was mutated.
	Changed bool
	// Dropped names why a routable event found no target.
	Dropped string
	// Unknown carries the type of an unrecognized event.
	Unknown string
	// TitleUpdate is set for title_updated, which never touches the document.
	TitleUpdate *types.TitleUpdatedEvent
	// Terminal is set for done and error.
	Terminal bool
}

const (
	DropNilEvent     = "nil event"
	DropNoLogTarget  = "no section for log"
	DropNoResultSink = "no section for result"
)

// Apply is the pure form of (*Document).Apply: doc is left untouched and the
// updated copy is returned.
func Apply(doc *Document, ev types.Event) (*Document, Outcome) {
	next := doc.Clone()
	out := next.Apply(ev)
	return next, out
}

// Apply mutates d with ev. It never panics, whatever the event sequence.
func (d *Document) Apply(ev types.Event) Outcome {
	switch e := ev.(type) {
	case nil:
		return Outcome{Dropped: DropNilEvent}
	case types.SectionStartEvent:
		return d.startSection(e)
	case types.SectionEndEvent:
		return d.endSection()
	case types.LogEvent:
		return d.appendLog(e)
	case types.ResultEvent:
		return d.applyResult(e)
	case types.TokenEvent:
		return d.appendToken(e)
	case types.TitleUpdatedEvent:
		return Outcome{TitleUpdate: &e}
	case types.DoneEvent:
		d.IsDone = true
		d.IsTyping = false
		if e.MessageID != nil {
			id := *e.MessageID
			d.MessageID = &id
		}
		return Outcome{Changed: true, Terminal: true}
	case types.ErrorEvent:
		d.IsDone = true
		d.IsTyping = false
		d.ErrorMessage = e.Content
		return Outcome{Changed: true, Terminal: true}
	case types.MetadataEvent:
		if len(e.Data) == 0 {
			return Outcome{}
		}
		if d.Metadata == nil {
			d.Metadata = make(map[string]any, len(e.Data))
		}
		maps.Copy(d.Metadata, e.Data)
		return Outcome{Changed: true}
	default:
		return Outcome{Unknown: string(ev.Type())}
	}
}

func (d *Document) startSection(e types.SectionStartEvent) Outcome {
	d.ensureWorkflow()
	d.Sections = append(d.Sections, Section{
		Step:        e.Step,
		Title:       e.Title,
		Collapsible: e.Collapsible,
		Logs:        []LogEntry{},
		Results:     []ResultEntry{},
	})
	d.OpenSection = len(d.Sections) - 1

	return Outcome{Changed: true}
}

func (d *Document) endSection() Outcome {
	open := d.Open()
	if open == nil {
		d.OpenSection = NoSection
		return Outcome{}
	}
	open.Collapsed = open.Collapsible
	d.OpenSection = NoSection

	return Outcome{Changed: true}
}

// target resolves the section a log or result is routed to: the open
// section, then for attachment logs the attachment section, then the most
// recent section with a matching step.
func (d *Document) target(step string, attachment bool) int {
	if d.Open() != nil {
		return d.OpenSection
	}
	if attachment {
		if idx := d.FindStep(StepAttachmentProcessing); idx != NoSection {
			return idx
		}
	}
	if step != "" {
		return d.FindStep(step)
	}
	return NoSection
}

func (d *Document) appendLog(e types.LogEvent) Outcome {
	attachment := e.Source != nil && *e.Source == SourceAttachment
	idx := d.target(e.Step, attachment)
	switch {
	case idx != NoSection:
	case !attachment:
		return Outcome{Dropped: DropNoLogTarget}
	case d.Mode != ModeWorkflow:
		// a flat turn stays flat; the log is held beside the buffer
		d.AttachmentLogs = appendLog(d.AttachmentLogs, e)
		return Outcome{Changed: true}
	default:
		// not opened, so later tokens still start the final report
		d.Sections = append(d.Sections, attachmentSection())
		idx = len(d.Sections) - 1
	}

	s := &d.Sections[idx]
	s.Logs = appendLog(s.Logs, e)

	return Outcome{Changed: true}
}

// appendLog adds e to logs, or extends the last entry when e.Newline is
// explicitly false.
func appendLog(logs []LogEntry, e types.LogEvent) []LogEntry {
	if e.Newline != nil && !*e.Newline && len(logs) > 0 {
		logs[len(logs)-1].Content += e.Content
		return logs
	}
	var src *string
	if e.Source != nil {
		v := *e.Source
		src = &v
	}
	return append(logs, LogEntry{Content: e.Content, Source: src})
}

func (d *Document) applyResult(e types.ResultEvent) Outcome {
	idx := d.target(e.Step, false)
	if idx == NoSection {
		return Outcome{Dropped: DropNoResultSink}
	}

	s := &d.Sections[idx]
	changed := false
	if e.Summary != nil {
		s.Summary = *e.Summary
		changed = true
	}
	if e.Content == nil {
		return Outcome{Changed: changed}
	}

	data := cloneRaw(e.Data)
	switch {
	case len(s.Results) == 0:
		s.Results = append(s.Results, ResultEntry{Content: *e.Content, Data: data})
	case e.IsIncremental:
		last := &s.Results[len(s.Results)-1]
		last.Content += *e.Content
		last.Data = data
	default:
		s.Results[len(s.Results)-1] = ResultEntry{Content: *e.Content, Data: data}
	}

	return Outcome{Changed: true}
}

func (d *Document) appendToken(e types.TokenEvent) Outcome {
	if d.Mode != ModeWorkflow {
		d.FlatBuffer += e.Content
		return Outcome{Changed: true}
	}

	if d.Open() == nil {
		d.Sections = append(d.Sections, Section{
			Step:     StepFinalReport,
			Logs:     []LogEntry{},
			Results:  []ResultEntry{{}},
			Implicit: true,
		})
		d.OpenSection = len(d.Sections) - 1
	}

	s := d.Open()
	if len(s.Results) == 0 {
		s.Results = append(s.Results, ResultEntry{})
	}
	s.Results[len(s.Results)-1].Content += e.Content

	return Outcome{Changed: true}
}
