/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/mikeb26/medchat/internal/conversations"
	"github.com/mikeb26/medchat/internal/turns"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/ui"
	"github.com/spf13/cobra"
)

func newAskCmd(cli *cliContext) *cobra.Command {
	var (
		conversationID int64
		mode           string
		attach         []string
		title          string
		format         string
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Ask a question and stream the answer",
		Long: `Ask sends a prompt and renders the answer as it streams. Without
--conversation a new conversation is created. Press Ctrl-C to stop
following the reply; the producer keeps generating and the reply can be
picked up later with 'medchat resume'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				var err error
				prompt, err = ui.NewStdioUI().WithReader(cli.in).
					WithWriter(cmd.ErrOrStderr()).Get("> ")
				if err != nil {
					return err
				}
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt is empty")
			}
			if !types.ChatMode(mode).Valid() {
				return fmt.Errorf("unknown mode %q", mode)
			}
			atts, err := attachmentsFor(attach)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client := cli.client()
			dir := conversations.NewDirectory(client, conversations.DefaultTTL).
				WithLogger(cli.logger)
			if conversationID == 0 {
				conv, err := client.CreateConversation(ctx, title)
				if err != nil {
					return fmt.Errorf("Failed to create conversation: %w", err)
				}
				conversationID = conv.ID
				fmt.Fprintf(cmd.ErrOrStderr(), "conversation %d\n", conv.ID)
			}

			ctrl := turns.NewController(client).WithTitleSink(dir).WithLogger(cli.logger)
			turn, err := ctrl.Start(ctx, turns.StartRequest{
				ConversationID: conversationID,
				Content:        prompt,
				Mode:           types.ChatMode(mode),
				Attachments:    atts,
			})
			if err != nil {
				return err
			}
			if _, err := cli.watch(cmd.OutOrStdout(), cmd.ErrOrStderr(), turn, format); err != nil {
				return err
			}
			// a rename arrives after the answer ends
			<-turn.Done

			if conv, ok, err := dir.Get(ctx, conversationID); err == nil && ok &&
				conv.Title != types.DefaultConversationTitle {
				fmt.Fprintf(cmd.ErrOrStderr(), "conversation %d: %s\n", conv.ID, conv.Title)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64VarP(&conversationID, "conversation", "c", 0, "Conversation to ask in (default: create one)")
	flags.StringVarP(&mode, "mode", "m", string(types.ChatModeNormal), "Answer mode: normal, attachment or multi_source")
	flags.StringSliceVarP(&attach, "attach", "a", nil, "Attach a file (repeatable)")
	flags.StringVar(&title, "title", "", "Title for a newly created conversation")
	flags.StringVarP(&format, "format", "f", "", "Output format: text, terminal, md, json, yaml or html (default: live terminal view)")

	return cmd
}

// attachmentsFor describes local files for the request. Upload is the
// producer's concern; only metadata is sent.
func attachmentsFor(paths []string) ([]types.Attachment, error) {
	atts := make([]types.Attachment, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("Failed to read attachment %v: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("attachment %v is a directory", p)
		}
		name := filepath.Base(abs)
		atts = append(atts, types.Attachment{
			Filename:         name,
			OriginalFilename: name,
			FileSize:         info.Size(),
			MimeType:         mime.TypeByExtension(filepath.Ext(name)),
			FilePath:         abs,
		})
	}
	return atts, nil
}
