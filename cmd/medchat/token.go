/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"
	"time"

	"github.com/mikeb26/medchat/internal/devserver"
	"github.com/spf13/cobra"
)

func newTokenCmd(cli *cliContext) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a development bearer token for the devserver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devserver.IssueToken(cli.cfg.DevServer.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "dev", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", devserver.DefaultTokenTTL, "Token lifetime")

	return cmd
}
