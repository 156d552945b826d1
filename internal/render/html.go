/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */

// Package render projects workflow documents into user-visible output.
package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown to display text. Implementations must be
// total: they never panic and map "" to "".
type Renderer interface {
	Render(markdown string) string
}

// HTMLRenderer converts GitHub flavored markdown to sanitized HTML.
type HTMLRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

func (r *HTMLRenderer) Render(markdown string) (out string) {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	defer func() {
		if recover() != nil {
			out = escaped(markdown)
		}
	}()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return escaped(markdown)
	}

	return r.policy.Sanitize(buf.String())
}

func escaped(s string) string {
	return "<p>" + html.EscapeString(s) + "</p>"
}

// PlainRenderer returns markdown untouched.
type PlainRenderer struct{}

func (PlainRenderer) Render(markdown string) string {
	return markdown
}
