/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikeb26/medchat/internal/devserver"
	"github.com/mikeb26/medchat/internal/logging"
	"github.com/spf13/cobra"
)

func newDevServerCmd(cli *cliContext) *cobra.Command {
	var addr, redisURL string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local producer of the answer stream",
		Long: `Devserver serves the chat API with canned answers so the client can be
exercised end to end. Replies are generated in the background and kept for
a retention window, so disconnecting and running 'medchat resume' replays
them. Put "[fail]" in a prompt to make its generation fail halfway.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dc := cli.cfg.DevServer
			if addr != "" {
				dc.Addr = addr
			}
			if redisURL != "" {
				dc.RedisURL = redisURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.NewConsoleLogger(cli.cfg.Log.Path, cli.cfg.Log.Verbose || cli.verbose)
			defer logger.Sync()

			var store devserver.EventStore
			if dc.RedisURL != "" {
				var err error
				store, err = devserver.NewRedisStore(ctx, dc.RedisURL)
				if err != nil {
					return err
				}
			}

			srv := devserver.New(devserver.Options{
				JWTSecret:  dc.JWTSecret,
				TokenDelay: dc.TokenDelay,
				Retention:  dc.Retention,
				Store:      store,
				Logger:     logger,
			})

			token, err := devserver.IssueToken(dc.JWTSecret, "dev", devserver.DefaultTokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "listening on http://%v%v\n", dc.Addr, devserver.APIPrefix)
			fmt.Fprintf(cmd.ErrOrStderr(), "export MEDCHAT_BASE_URL=http://%v%v\n", dc.Addr, devserver.APIPrefix)
			fmt.Fprintf(cmd.ErrOrStderr(), "export MEDCHAT_TOKEN=%v\n", token)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(dc.Addr) }()

			select {
			case err := <-errCh:
				_ = srv.Shutdown()
				return err
			case <-ctx.Done():
			}
			if err := srv.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&redisURL, "redis", "", "Keep event logs in redis at this URL")

	return cmd
}
