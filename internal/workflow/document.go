/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package workflow holds the document assembled from one assistant turn's
// event stream, and the reducer that applies events to it.
package workflow

import (
	"encoding/json"
	"maps"

	"github.com/mikeb26/medchat/internal/types"
)

type Mode string

const (
	ModeFlat     Mode = "flat"
	ModeWorkflow Mode = "workflow"
)

const (
	StepFinalReport          = "final_report"
	StepAttachmentProcessing = "attachment_processing"
	StepPreamble             = "preamble"

	SourceAttachment = "attachment"

	AttachmentSectionTitle = "附件处理"

	// NoSection is the value of Document.OpenSection when nothing is open.
	NoSection = -1
)

// ModeFor picks the document mode for a turn started with the given request
// mode.
func ModeFor(m types.ChatMode) Mode {
	if m == types.ChatModeMultiSource {
		return ModeWorkflow
	}
	return ModeFlat
}

type LogEntry struct {
	Content string  `json:"content"`
	Source  *string `json:"source"`
}

type ResultEntry struct {
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
}

type Section struct {
	Step        string        `json:"step"`
	Title       string        `json:"title"`
	Collapsible bool          `json:"collapsible"`
	Collapsed   bool          `json:"collapsed"`
	Logs        []LogEntry    `json:"logs"`
	Results     []ResultEntry `json:"results"`
	Summary     string        `json:"summary"`

	// Implicit is set on sections created by a fallback rule rather than by
	// a section_start event.
	Implicit bool `json:"implicit,omitempty"`
}

// Document is the renderable state of one turn. In flat mode Sections is
// empty; in workflow mode FlatBuffer and AttachmentLogs are empty.
type Document struct {
	Mode       Mode      `json:"mode"`
	Sections   []Section `json:"sections"`
	FlatBuffer string    `json:"flat_buffer"`
	// AttachmentLogs collects attachment processing logs of a flat turn,
	// which has no section to hold them.
	AttachmentLogs []LogEntry     `json:"attachment_logs,omitempty"`
	OpenSection    int            `json:"open_section"`
	IsTyping       bool           `json:"is_typing"`
	IsDone         bool           `json:"is_done"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	MessageID      *int64         `json:"message_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// New returns an empty document for a turn that is about to stream.
func New(mode Mode) *Document {
	if mode != ModeWorkflow {
		mode = ModeFlat
	}
	return &Document{
		Mode:        mode,
		Sections:    []Section{},
		OpenSection: NoSection,
		IsTyping:    true,
	}
}

// Open returns the currently-open section, or nil.
func (d *Document) Open() *Section {
	if d.OpenSection < 0 || d.OpenSection >= len(d.Sections) {
		return nil
	}
	return &d.Sections[d.OpenSection]
}

// FindStep returns the index of the most recently created section with the
// given step, or NoSection.
func (d *Document) FindStep(step string) int {
	for i := len(d.Sections) - 1; i >= 0; i-- {
		if d.Sections[i].Step == step {
			return i
		}
	}
	return NoSection
}

// Halt stops the typing indicator without marking the turn done. Used when
// the client abandons the stream.
func (d *Document) Halt() {
	d.IsTyping = false
}

// Fail records a transport failure. The partial document is kept.
func (d *Document) Fail(msg string) {
	d.IsTyping = false
	d.ErrorMessage = msg
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	c := *d
	c.Sections = make([]Section, len(d.Sections))
	for i, s := range d.Sections {
		s.Logs = append(make([]LogEntry, 0, len(s.Logs)), s.Logs...)
		results := make([]ResultEntry, len(s.Results))
		for j, r := range s.Results {
			results[j] = ResultEntry{Content: r.Content, Data: cloneRaw(r.Data)}
		}
		s.Results = results
		c.Sections[i] = s
	}
	if d.AttachmentLogs != nil {
		c.AttachmentLogs = append(make([]LogEntry, 0, len(d.AttachmentLogs)), d.AttachmentLogs...)
	}
	if d.MessageID != nil {
		id := *d.MessageID
		c.MessageID = &id
	}
	if d.Metadata != nil {
		c.Metadata = maps.Clone(d.Metadata)
	}

	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

// ensureWorkflow switches a flat document to workflow mode. Buffered flat
// text moves into a leading preamble section and held attachment logs into
// an attachment section.
func (d *Document) ensureWorkflow() {
	if d.Mode == ModeWorkflow {
		return
	}
	d.Mode = ModeWorkflow

	var lead []Section
	if len(d.AttachmentLogs) > 0 {
		att := attachmentSection()
		att.Logs = d.AttachmentLogs
		lead = append(lead, att)
		d.AttachmentLogs = nil
	}
	if d.FlatBuffer != "" {
		lead = append(lead, Section{
			Step:     StepPreamble,
			Logs:     []LogEntry{},
			Results:  []ResultEntry{{Content: d.FlatBuffer}},
			Implicit: true,
		})
		d.FlatBuffer = ""
	}
	if len(lead) == 0 {
		return
	}
	d.Sections = append(lead, d.Sections...)
	if d.OpenSection != NoSection {
		d.OpenSection += len(lead)
	}
}

// attachmentSection is the collapsible section that collects attachment
// processing logs in workflow mode.
func attachmentSection() Section {
	return Section{
		Step:        StepAttachmentProcessing,
		Title:       AttachmentSectionTitle,
		Collapsible: true,
		Logs:        []LogEntry{},
		Results:     []ResultEntry{},
		Implicit:    true,
	}
}
