/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"fmt"

	"github.com/mikeb26/medchat/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var styleChoices = []ui.Option{
	{Key: "auto", Label: "auto (match terminal background)"},
	{Key: "dark", Label: "dark"},
	{Key: "light", Label: "light"},
	{Key: "notty", Label: "notty (no colors)"},
}

func newConfigCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Interactively set the API endpoint, token and display style",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := ui.NewStdioUI().WithReader(cli.in).WithWriter(cmd.OutOrStdout())
			cfg := cli.cfg

			baseURL, err := in.GetDefault("Chat API base URL: ", cfg.Server.BaseURL)
			if err != nil {
				return err
			}
			cfg.Server.BaseURL = baseURL

			token, err := in.GetDefault("Bearer token (empty to keep current): ", "")
			if err != nil {
				return err
			}
			if token != "" {
				cfg.Server.Token = token
			}

			style, err := in.SelectOption("Display style:", styleChoices)
			if err != nil {
				return err
			}
			cfg.UI.Style = style.Key

			if err := cfg.Save(cli.cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %v\n", cli.cfgPath)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *cli.cfg
			if cfg.Server.Token != "" {
				cfg.Server.Token = "********"
			}
			cfg.DevServer.JWTSecret = "********"
			out, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	return cmd
}
