/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mikeb26/medchat/internal/conversations"
	"github.com/mikeb26/medchat/internal/turns"
	"github.com/spf13/cobra"
)

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("Could not parse %v %q. Please enter a positive number.", what, arg)
	}
	return id, nil
}

func (cli *cliContext) controller() *turns.Controller {
	client := cli.client()
	dir := conversations.NewDirectory(client, conversations.DefaultTTL).WithLogger(cli.logger)
	return turns.NewController(client).WithTitleSink(dir).WithLogger(cli.logger)
}

func newResumeCmd(cli *cliContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "resume <conversation-id>",
		Short: "Reattach to a reply that is still generating",
		Long: `Resume looks at the conversation's latest assistant message and, if the
producer is still generating it, streams the reply from its first event.
A reply that already finished is not replayed; use 'medchat conversations
show' to read it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convID, err := parseID(args[0], "conversation id")
			if err != nil {
				return err
			}

			turn, err := cli.controller().ResumeIfGenerating(cmd.Context(), convID)
			if errors.Is(err, turns.ErrNotGenerating) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Nothing is generating in conversation %d.\n", convID)
				return nil
			}
			if err != nil {
				return err
			}
			_, err = cli.watch(cmd.OutOrStdout(), cmd.ErrOrStderr(), turn, format)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (see 'ask --help')")

	return cmd
}

func newContinueCmd(cli *cliContext) *cobra.Command {
	var (
		format         string
		conversationID int64
	)

	cmd := &cobra.Command{
		Use:   "continue <message-id>",
		Short: "Stream an assistant message's event log directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgID, err := parseID(args[0], "message id")
			if err != nil {
				return err
			}

			turn, err := cli.controller().Resume(cmd.Context(), conversationID, msgID)
			if err != nil {
				return err
			}
			_, err = cli.watch(cmd.OutOrStdout(), cmd.ErrOrStderr(), turn, format)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (see 'ask --help')")
	cmd.Flags().Int64VarP(&conversationID, "conversation", "c", 0, "Conversation the message belongs to")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}
