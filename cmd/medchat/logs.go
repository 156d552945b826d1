/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"
	"strings"

	"github.com/mikeb26/medchat/internal/logging"
	"github.com/spf13/cobra"
)

func newLogsCmd(cli *cliContext) *cobra.Command {
	var (
		level string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := logging.ReadEntries(cli.cfg.Log.Path, strings.ToUpper(level), limit)
			if err != nil {
				return fmt.Errorf("Failed to read log %v: %w", cli.cfg.Log.Path, err)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%v %-5v %-12v %v", e.Timestamp, e.Level, e.Module, e.Message)
				if len(e.Details) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " %v", e.Details)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Only show entries at this level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")

	return cmd
}
