/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package workflow

import (
	"testing"

	"github.com/mikeb26/medchat/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestMarkdownWorkflow(t *testing.T) {
	doc := applyAll(New(ModeWorkflow),
		types.SectionStartEvent{Step: "search", Title: "文献检索", Collapsible: true},
		types.LogEvent{Content: "querying"},
		types.ResultEvent{Content: types.String("12 papers")},
		types.SectionEndEvent{},
		types.SectionStartEvent{Step: "analyze_papers", Title: "文献分析", Collapsible: true},
		types.ResultEvent{Content: types.String("   ")},
		types.SectionEndEvent{},
		types.TokenEvent{Content: "Final "},
		types.TokenEvent{Content: "answer"},
	)

	assert.Equal(t, "## 文献检索\n12 papers\n\n## 文献分析\nFinal answer", doc.Markdown())
	assert.Equal(t, "Final answer", doc.Text())
}

func TestMarkdownFlat(t *testing.T) {
	doc := applyAll(New(ModeFlat), types.TokenEvent{Content: " a b "})
	assert.Equal(t, " a b ", doc.Markdown())
	assert.Equal(t, " a b ", doc.Text())
}
