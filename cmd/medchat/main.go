/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikeb26/medchat/internal/chatapi"
	"github.com/mikeb26/medchat/internal/config"
	"github.com/mikeb26/medchat/internal/logging"
	"github.com/spf13/cobra"
)

const CommandName = "medchat"

//go:embed version.txt
var versionTextRaw string
var versionText = strings.TrimSpace(versionTextRaw)

// cliContext is the state shared by every subcommand, populated by the
// root command's pre-run hook.
type cliContext struct {
	cfgPath string
	verbose bool
	baseURL string
	token   string

	cfg    *config.Config
	logger *logging.ZapLogger
	in     io.Reader
}

func (cli *cliContext) init() error {
	if cli.cfgPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cli.cfgPath = path
	}
	cfg, err := config.Load(cli.cfgPath)
	if err != nil {
		return err
	}
	if cli.baseURL != "" {
		cfg.Server.BaseURL = cli.baseURL
	}
	if cli.token != "" {
		cfg.Server.Token = cli.token
	}
	cli.cfg = cfg
	if cli.logger == nil {
		cli.logger = logging.NewFileLogger(cfg.Log.Path, cfg.Log.Verbose || cli.verbose)
	}
	if cli.in == nil {
		cli.in = os.Stdin
	}

	return nil
}

func (cli *cliContext) client() *chatapi.Client {
	return chatapi.NewClient(cli.cfg.Server.BaseURL, cli.cfg.Server.Token)
}

func newRootCmd(cli *cliContext) *cobra.Command {
	root := &cobra.Command{
		Use:   CommandName,
		Short: "Stream answers from the medical literature assistant",
		Long: `medchat talks to the medical literature assistant over its streamed
answer protocol. Answers are rendered live in the terminal as they arrive,
including the collapsible workflow sections of multi-source searches.

Quick Start:
  medchat devserver &                   # local producer for development
  export MEDCHAT_TOKEN=$(medchat token)
  medchat ask "阿司匹林的不良反应"
  medchat ask --mode multi_source "房颤患者如何抗凝"
  medchat resume <conversation-id>      # reattach to a reply still generating`,
		Version:       versionText,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.logger != nil {
				_ = cli.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cli.cfgPath, "config", "", "Config file (default ~/.config/medchat/config.yaml)")
	flags.BoolVarP(&cli.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&cli.baseURL, "base-url", "", "Chat API base URL")
	flags.StringVar(&cli.token, "token", "", "Bearer token for the chat API")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newAskCmd(cli),
		newResumeCmd(cli),
		newContinueCmd(cli),
		newReplayCmd(cli),
		newConversationsCmd(cli),
		newDevServerCmd(cli),
		newTokenCmd(cli),
		newConfigCmd(cli),
		newLogsCmd(cli),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the medchat version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%v-%v\n", CommandName, versionText)
			return nil
		},
	}
}

func main() {
	if err := newRootCmd(&cliContext{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
