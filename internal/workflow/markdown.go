/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package workflow

import (
	"fmt"
	"strings"
)

// Markdown reconstructs the persisted form of the reply. Flat documents
// yield their buffer. Workflow documents yield a heading per announced
// section followed by its result text.
func (d *Document) Markdown() string {
	if d.Mode != ModeWorkflow {
		return d.FlatBuffer
	}

	var sb strings.Builder
	for _, s := range d.Sections {
		if !s.Implicit {
			fmt.Fprintf(&sb, "\n## %v\n", s.Title)
		}
		for _, r := range s.Results {
			if strings.TrimSpace(r.Content) == "" {
				continue
			}
			sb.WriteString(r.Content)
			if !s.Implicit {
				sb.WriteString("\n")
			}
		}
	}

	return strings.TrimSpace(sb.String())
}

// Text is the answer text suitable for a one-line preview.
func (d *Document) Text() string {
	if d.Mode != ModeWorkflow {
		return d.FlatBuffer
	}
	if idx := d.FindStep(StepFinalReport); idx != NoSection {
		var sb strings.Builder
		for _, r := range d.Sections[idx].Results {
			sb.WriteString(r.Content)
		}
		return sb.String()
	}
	return d.Markdown()
}
