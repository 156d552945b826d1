/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mikeb26/medchat/internal/render"
	"github.com/mikeb26/medchat/internal/turns"
	"github.com/mikeb26/medchat/internal/workflow"
	"golang.org/x/term"
)

const redrawInterval = 50 * time.Millisecond

func terminalOf(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return render.DefaultWidth, true
	}
	return width, true
}

// painter redraws a document in place by rewinding over the lines it
// printed last time.
type painter struct {
	out   io.Writer
	term  *render.Terminal
	lines int
}

func (p *painter) paint(doc *workflow.Document) {
	text := p.term.Document(doc)
	if p.lines > 0 {
		// cursor to start of the first painted line, then clear below
		fmt.Fprintf(p.out, "\x1b[%dF\x1b[J", p.lines)
	}
	fmt.Fprintln(p.out, text)
	p.lines = strings.Count(text, "\n") + 1
}

// watch drives turn to its end. On a terminal with no explicit format the
// document is repainted as updates arrive; otherwise the final document is
// written once in format. Ctrl-C cancels the turn instead of killing the
// process.
func (cli *cliContext) watch(out, errOut io.Writer, turn *turns.Turn, format string) (turns.Result, error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var live *painter
	if width, ok := terminalOf(out); ok && format == "" {
		if cli.cfg.UI.Width > 0 {
			width = cli.cfg.UI.Width
		}
		t, err := render.NewTerminal(cli.cfg.UI.Style, width)
		if err != nil {
			return turns.Result{}, err
		}
		live = &painter{out: out, term: t}
	}

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	var pending *workflow.Document
	var res turns.Result
loop:
	for {
		select {
		case <-sigCh:
			turn.Cancel()
		case upd, ok := <-turn.Updates:
			if !ok {
				res = <-turn.Result
				break loop
			}
			pending = upd.Snapshot
		case <-ticker.C:
			if live != nil && pending != nil {
				live.paint(pending)
				pending = nil
			}
		}
	}

	if live != nil {
		live.paint(res.Snapshot)
	} else if err := cli.emit(out, res.Snapshot, format); err != nil {
		return res, err
	}

	switch res.State {
	case turns.TurnStateCancelled:
		fmt.Fprintln(errOut, "Reply cancelled.")
	case turns.TurnStateErrored:
		return res, fmt.Errorf("Reply failed: %w", res.Err)
	}
	if res.RefetchErr != nil {
		fmt.Fprintf(errOut, "*WARN*: could not refresh messages: %v\n", res.RefetchErr)
	}
	return res, nil
}

// emit writes doc once. An empty format means plain markdown.
func (cli *cliContext) emit(out io.Writer, doc *workflow.Document, format string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(out, doc.Markdown())
		return err
	case "terminal":
		width := cli.cfg.UI.Width
		if w, ok := terminalOf(out); ok && width == 0 {
			width = w
		}
		t, err := render.NewTerminal(cli.cfg.UI.Style, width)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, t.Document(doc))
		return err
	}

	exp, err := render.NewExporter(format)
	if err != nil {
		return err
	}
	return exp.Export(doc, out)
}
