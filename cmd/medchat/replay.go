/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mikeb26/medchat/internal/sse"
	"github.com/mikeb26/medchat/internal/workflow"
	"github.com/spf13/cobra"
)

// replayStats counts what a replay did with each frame.
type replayStats struct {
	Frames    int
	Malformed int
	Unknown   int
	Dropped   int
}

// replay rebuilds a document from a captured event stream.
func replay(data []byte, mode workflow.Mode) (*workflow.Document, replayStats) {
	var stats replayStats
	doc := workflow.New(mode)
	for _, r := range sse.DecodeAll(data) {
		stats.Frames++
		if r.Err != nil {
			stats.Malformed++
			continue
		}
		out := doc.Apply(r.Event)
		if out.Unknown != "" {
			stats.Unknown++
		}
		if out.Dropped != "" {
			stats.Dropped++
		}
	}
	return doc, stats
}

func newReplayCmd(cli *cliContext) *cobra.Command {
	var (
		format string
		mode   string
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "replay [capture-file]",
		Short: "Rebuild a reply from a captured event stream",
		Long: `Replay reads a raw event stream (for example saved with
'curl -N ... > capture.sse') from a file, or stdin when the file is '-' or
omitted, and prints the document it produces.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rdr io.Reader = cli.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("Failed to open capture %v: %w", args[0], err)
				}
				defer f.Close()
				rdr = f
			}
			data, err := io.ReadAll(rdr)
			if err != nil {
				return err
			}

			m := workflow.Mode(mode)
			if m != workflow.ModeFlat && m != workflow.ModeWorkflow {
				return fmt.Errorf("unknown mode %q", mode)
			}
			doc, st := replay(data, m)
			if stats {
				fmt.Fprintf(cmd.ErrOrStderr(),
					"frames=%d malformed=%d unknown=%d dropped=%d\n",
					st.Frames, st.Malformed, st.Unknown, st.Dropped)
			}
			return cli.emit(cmd.OutOrStdout(), doc, format)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "", "Output format: text, terminal, md, json, yaml or html")
	flags.StringVar(&mode, "mode", string(workflow.ModeFlat), "Initial document mode: flat or workflow")
	flags.BoolVar(&stats, "stats", false, "Print frame statistics to stderr")

	return cmd
}
