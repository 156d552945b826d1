/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mikeb26/medchat/internal/logging"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/workflow"
)

// FailMarker in a prompt makes the generation fail halfway through, so
// clients can exercise the failed-status path.
const FailMarker = "[fail]"

const (
	tokenRunes   = 3
	titleRunes   = 16
	failedReason = "生成失败"
)

// job describes one assistant message being generated.
type job struct {
	MessageID      int64
	ConversationID int64
	Query          string
	Mode           types.ChatMode
	Attachments    []types.Attachment
	FirstTurn      bool
}

type generator struct {
	store     EventStore
	repo      *repository
	logger    logging.Logger
	delay     time.Duration
	retention time.Duration
}

// run produces job's events into the store. The message must already be
// marked generating. It runs detached from any client connection; only ctx
// (the server's lifetime) stops it.
func (g *generator) run(ctx context.Context, j job) {
	events, failAt := script(j)
	doc := workflow.New(workflow.ModeFor(j.Mode))
	for i, ev := range events {
		if i == failAt {
			g.fail(ctx, j, doc, fmt.Errorf("prompt contains %v", FailMarker))
			return
		}
		if err := pause(ctx, g.delay); err != nil {
			g.fail(ctx, j, doc, err)
			return
		}
		if err := g.emit(ctx, j, ev); err != nil {
			g.fail(ctx, j, doc, err)
			return
		}
		doc.Apply(ev)
	}

	content := doc.Markdown()
	if err := g.repo.finishMessage(j.MessageID, content, types.MessageStatusCompleted); err != nil {
		g.fail(ctx, j, doc, fmt.Errorf("Failed to persist message: %w", err))
		return
	}
	if err := g.emit(ctx, j, doneEvent(j.MessageID)); err != nil {
		g.fail(ctx, j, doc, err)
		return
	}
	// the title follows done, as the production backend sends it
	if j.FirstTurn && strings.TrimSpace(content) != "" {
		g.retitle(ctx, j)
	}

	if err := g.store.SetStatus(ctx, j.MessageID, types.MessageStatusCompleted); err != nil {
		g.fail(ctx, j, doc, fmt.Errorf("Failed to mark message completed: %w", err))
		return
	}
	g.expire(ctx, j.MessageID)

	g.logger.Info("devserver", "message generated", map[string]any{
		"message_id": j.MessageID,
		"mode":       string(j.Mode),
		"events":     len(events),
	})
}

func (g *generator) retitle(ctx context.Context, j job) {
	title := titleFor(j.Query)
	if err := g.repo.rename(j.ConversationID, title); err != nil {
		g.logger.Error("devserver", "failed to rename conversation", map[string]any{
			"conversation_id": j.ConversationID,
			"error":           err,
		})
		return
	}
	err := g.emit(ctx, j, types.TitleUpdatedEvent{
		ConversationID: j.ConversationID,
		Title:          title,
	})
	if err != nil {
		g.logger.Error("devserver", "failed to send title", map[string]any{
			"message_id": j.MessageID,
			"error":      err,
		})
	}
}

func (g *generator) expire(ctx context.Context, messageID int64) {
	if err := g.store.Expire(ctx, messageID, g.retention); err != nil {
		g.logger.Error("devserver", "failed to set event log retention", map[string]any{
			"message_id": messageID,
			"error":      err,
		})
	}
}

func (g *generator) emit(ctx context.Context, j job, ev types.Event) error {
	payload, err := types.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return g.store.Append(ctx, j.MessageID, payload)
}

// fail records the message as failed. When the failed status cannot be
// stored the event log is deleted, so streams end instead of polling a
// message that stays generating forever.
func (g *generator) fail(ctx context.Context, j job, doc *workflow.Document, err error) {
	g.logger.Error("devserver", "message generation failed", map[string]any{
		"message_id": j.MessageID,
		"error":      err,
	})
	// The server may be shutting down; record the failure regardless.
	ctx = context.WithoutCancel(ctx)
	if err := g.repo.finishMessage(j.MessageID, doc.Markdown(), types.MessageStatusFailed); err != nil {
		g.logger.Error("devserver", "failed to persist message", map[string]any{
			"message_id": j.MessageID,
			"error":      err,
		})
	}
	if err := g.store.SetStatus(ctx, j.MessageID, types.MessageStatusFailed); err != nil {
		g.logger.Error("devserver", "failed to mark message failed", map[string]any{
			"message_id": j.MessageID,
			"error":      err,
		})
		if err := g.store.Delete(ctx, j.MessageID); err != nil {
			g.logger.Error("devserver", "failed to delete event log", map[string]any{
				"message_id": j.MessageID,
				"error":      err,
			})
		}
		return
	}
	g.expire(ctx, j.MessageID)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// script returns the events for j and the index at which generation
// fails, or -1.
func script(j job) ([]types.Event, int) {
	var events []types.Event
	switch j.Mode {
	case types.ChatModeMultiSource:
		events = multiSourceScript(j.Query)
	case types.ChatModeAttachment:
		events = attachmentScript(j.Query, j.Attachments)
	default:
		events = tokens(answerFor(j.Query))
	}

	if strings.Contains(j.Query, FailMarker) {
		return events, len(events) / 2
	}
	return events, -1
}

func answerFor(query string) string {
	return fmt.Sprintf("关于「%s」：这是开发服务器生成的示例回答，仅用于联调，不构成医疗建议。",
		cleanQuery(query))
}

func cleanQuery(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(query, FailMarker, ""))
}

func titleFor(query string) string {
	r := []rune(cleanQuery(query))
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r)
}

// tokens splits text into token events of a few runes each.
func tokens(text string) []types.Event {
	r := []rune(text)
	out := make([]types.Event, 0, len(r)/tokenRunes+1)
	for len(r) > 0 {
		n := min(tokenRunes, len(r))
		out = append(out, types.TokenEvent{Content: string(r[:n])})
		r = r[n:]
	}
	return out
}

func stepLog(step, content string) types.LogEvent {
	return types.LogEvent{
		Content: content,
		Source:  types.String(step),
		Step:    step,
		Newline: types.Bool(true),
	}
}

func attachmentScript(query string, atts []types.Attachment) []types.Event {
	attLog := func(content string) types.Event {
		return types.LogEvent{
			Content: content,
			Source:  types.String(workflow.SourceAttachment),
			Newline: types.Bool(true),
		}
	}

	if len(atts) == 0 {
		return []types.Event{types.ErrorEvent{Content: "未提供附件"}}
	}

	events := []types.Event{attLog("📎 正在处理附件...\n")}
	for i, att := range atts {
		name := att.OriginalFilename
		if name == "" {
			name = att.Filename
		}
		events = append(events, attLog(fmt.Sprintf("  [%d/%d] 正在上传: %s...\n",
			i+1, len(atts), name)))
	}
	events = append(events, attLog("✅ 附件上传完成，开始分析...\n"))

	return append(events, tokens(answerFor(query))...)
}

func multiSourceScript(query string) []types.Event {
	q := cleanQuery(query)
	var events []types.Event
	section := func(step, title string, collapsible bool, body ...types.Event) {
		events = append(events, types.SectionStartEvent{
			Step: step, Title: title, Collapsible: collapsible,
		})
		events = append(events, body...)
		events = append(events, types.SectionEndEvent{Step: step})
	}

	section("extract_features", "🔍 提取患者特征", true,
		stepLog("extract_features", "正在分析患者信息...\n"),
		types.ResultEvent{
			Step:    "extract_features",
			Content: types.String(fmt.Sprintf("- **主诉**: %s", q)),
			Summary: types.String("✅ 特征提取完成"),
		},
	)
	section("generate_queries", "🔍 生成检索条件", true,
		stepLog("generate_queries", "正在生成检索条件...\n"),
		types.ResultEvent{
			Step:    "generate_queries",
			Content: types.String(fmt.Sprintf("- PubMed: `%s`\n- ClinicalTrials: `%s`", q, q)),
			Summary: types.String("✅ 检索条件已生成"),
		},
	)
	section("search", "📚 执行多源检索", true,
		stepLog("search", "正在检索 PubMed...\n"),
		stepLog("search", "正在检索 ClinicalTrials.gov...\n"),
		types.ResultEvent{
			Step:    "search",
			Content: types.String("### 📊 检索汇总\n\n- **文献总数**: 2 篇\n- **临床试验**: 1 个"),
			Summary: types.String("✅ 检索完成（2 篇文献，1 个试验）"),
			Data:    json.RawMessage(`{"paper_count":2,"trial_count":1}`),
		},
	)

	papers := []types.Event{}
	for i := 1; i <= 2; i++ {
		papers = append(papers,
			stepLog("analyze_papers", fmt.Sprintf("正在分析文献 %d/2...\n", i)),
			types.ResultEvent{
				Step:          "analyze_papers",
				Content:       types.String(fmt.Sprintf("**文献 %d**: 示例摘要。\n", i)),
				IsIncremental: i > 1,
			},
		)
	}
	papers = append(papers, types.ResultEvent{
		Step:    "analyze_papers",
		Summary: types.String("✅ 文献分析完成"),
	})
	section("analyze_papers", "📄 分析文献", true, papers...)

	section("analyze_trials", "💊 分析临床试验", true,
		stepLog("analyze_trials", "正在分析临床试验...\n"),
		types.ResultEvent{
			Step:    "analyze_trials",
			Content: types.String("**试验 1**: 示例试验，招募中。"),
			Summary: types.String("✅ 试验分析完成"),
		},
	)
	events = append(events, types.MetadataEvent{Data: map[string]any{
		"paper_count": 2,
		"trial_count": 1,
	}})

	final := []types.Event{stepLog("generate_final", "正在生成综合报告...\n")}
	final = append(final, tokens(answerFor(query))...)
	final = append(final, types.ResultEvent{
		Step:    "generate_final",
		Summary: types.String("✅ 最终报告生成完成"),
	})
	section("generate_final", "📝 生成最终报告", false, final...)

	return events
}
