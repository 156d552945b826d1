/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/mikeb26/medchat/internal/workflow"
	"gopkg.in/yaml.v3"
)

// Exporter writes a document snapshot in one output format.
type Exporter interface {
	Export(doc *workflow.Document, w io.Writer) error
	Extension() string
}

func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "html":
		return &HTMLExporter{renderer: NewHTMLRenderer()}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md, html)", format)
	}
}

type JSONExporter struct{}

func (e *JSONExporter) Export(doc *workflow.Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (e *JSONExporter) Extension() string {
	return "json"
}

// YAMLExporter goes through the JSON form so keys and raw result data match
// the JSON export.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(doc *workflow.Document, w io.Writer) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(generic)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}

type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(doc *workflow.Document, w io.Writer) error {
	_, err := io.WriteString(w, doc.Markdown()+"\n")
	return err
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}

type HTMLExporter struct {
	renderer Renderer
}

func (e *HTMLExporter) Export(doc *workflow.Document, w io.Writer) error {
	v := Project(doc, e.renderer)

	var sb strings.Builder
	sb.WriteString("<article class=\"medchat-turn\">\n")
	if len(v.Attachments) > 0 {
		fmt.Fprintf(&sb, "<pre class=\"logs attachments\">%v</pre>\n",
			html.EscapeString(strings.Join(v.Attachments, "\n")))
	}
	if v.Flat != "" {
		sb.WriteString(v.Flat)
	}
	for _, s := range v.Sections {
		if s.Collapsible {
			open := ""
			if !s.Collapsed {
				open = " open"
			}
			fmt.Fprintf(&sb, "<details class=\"section\" data-step=\"%v\"%v>\n",
				html.EscapeString(s.Step), open)
			fmt.Fprintf(&sb, "<summary>%v", html.EscapeString(s.Title))
			if s.Summary != "" {
				fmt.Fprintf(&sb, " <small>%v</small>", html.EscapeString(s.Summary))
			}
			sb.WriteString("</summary>\n")
		} else {
			fmt.Fprintf(&sb, "<section class=\"section\" data-step=\"%v\">\n",
				html.EscapeString(s.Step))
			if s.Title != "" {
				fmt.Fprintf(&sb, "<h2>%v</h2>\n", html.EscapeString(s.Title))
			}
		}
		if len(s.Logs) > 0 {
			fmt.Fprintf(&sb, "<pre class=\"logs\">%v</pre>\n",
				html.EscapeString(strings.Join(s.Logs, "\n")))
		}
		for _, r := range s.Results {
			sb.WriteString(r)
		}
		if s.Collapsible {
			sb.WriteString("</details>\n")
		} else {
			if s.Summary != "" {
				fmt.Fprintf(&sb, "<p class=\"summary\">%v</p>\n", html.EscapeString(s.Summary))
			}
			sb.WriteString("</section>\n")
		}
	}
	if v.Error != "" {
		fmt.Fprintf(&sb, "<p class=\"error\">%v</p>\n", html.EscapeString(v.Error))
	}
	sb.WriteString("</article>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func (e *HTMLExporter) Extension() string {
	return "html"
}
