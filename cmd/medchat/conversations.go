/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mikeb26/medchat/internal/chatapi"
	"github.com/mikeb26/medchat/internal/render"
	"github.com/mikeb26/medchat/internal/types"
	"github.com/mikeb26/medchat/internal/ui"
	"github.com/spf13/cobra"
)

const (
	RowFmt    = "│ %6v │ %16v │ %8v │ %-24v\n"
	RowSpacer = "───────────────────────────────────────────────────────────────\n"
)

func formatTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	if t.YearDay() == now.YearDay() && t.Year() == now.Year() {
		return t.Format(time.Kitchen)
	}
	return t.Format("Jan 02 15:04")
}

func printConversations(out io.Writer, convs []types.Conversation) {
	now := time.Now()
	fmt.Fprint(out, RowSpacer)
	fmt.Fprintf(out, RowFmt, "id", "last activity", "messages", "title")
	fmt.Fprint(out, RowSpacer)
	for _, c := range convs {
		touched := c.CreatedAt
		if c.UpdatedAt != nil {
			touched = *c.UpdatedAt
		}
		fmt.Fprintf(out, RowFmt, c.ID, formatTime(touched, now), c.MessageCount, c.Title)
	}
	fmt.Fprint(out, RowSpacer)
}

func newConversationsCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := cli.client().ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet. To start one use 'medchat ask'.")
				return nil
			}
			printConversations(cmd.OutOrStdout(), convs)
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new [title]",
			Short: "Create a conversation",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				title := ""
				if len(args) == 1 {
					title = args[0]
				}
				conv, err := cli.client().CreateConversation(cmd.Context(), title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", conv.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <conversation-id>",
			Short: "Print a conversation's messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "conversation id")
				if err != nil {
					return err
				}
				return cli.showConversation(cmd.Context(), cmd.OutOrStdout(), cli.client(), id)
			},
		},
		&cobra.Command{
			Use:   "pick",
			Short: "Choose a conversation interactively and print it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client := cli.client()
				convs, err := client.ListConversations(cmd.Context())
				if err != nil {
					return err
				}
				if len(convs) == 0 {
					return fmt.Errorf("You haven't created any conversations yet. To create one use 'medchat ask'")
				}
				choices := make([]ui.Option, 0, len(convs))
				for _, c := range convs {
					choices = append(choices, ui.Option{
						Key:   fmt.Sprint(c.ID),
						Label: fmt.Sprintf("%s (#%d)", c.Title, c.ID),
					})
				}
				picked, err := ui.NewStdioUI().WithReader(cli.in).WithWriter(cmd.ErrOrStderr()).
					SelectOption("Select a conversation:", choices)
				if err != nil {
					return err
				}
				id, err := parseID(picked.Key, "conversation id")
				if err != nil {
					return err
				}
				return cli.showConversation(cmd.Context(), cmd.OutOrStdout(), client, id)
			},
		},
	)

	return cmd
}

func (cli *cliContext) showConversation(ctx context.Context, out io.Writer,
	client *chatapi.Client, id int64) error {

	msgs, err := client.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	var r render.Renderer = render.PlainRenderer{}
	if width, ok := terminalOf(out); ok {
		if cli.cfg.UI.Width > 0 {
			width = cli.cfg.UI.Width
		}
		t, err := render.NewTerminal(cli.cfg.UI.Style, width)
		if err != nil {
			return err
		}
		r = t
	}

	for _, m := range msgs {
		switch m.MessageType {
		case types.MessageTypeUser:
			fmt.Fprintf(out, "> %s\n\n", m.Content)
		default:
			fmt.Fprintln(out, r.Render(m.Content))
			if m.Status != "" && m.Status != types.MessageStatusCompleted {
				fmt.Fprintf(out, "[%s]\n", m.Status)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
