package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/platform-qa/internal/bootstrap"
	"github.com/kirillkom/platform-qa/internal/config"
	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
	"github.com/kirillkom/platform-qa/internal/observability/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		parties  []string
		topK     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the party platforms and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if topK > 0 {
				cfg.RAGTopK = topK
			}
			cfg.TelemetryEnabled = false
			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			logger := logging.New(cmd.ErrOrStderr(), "ask", level)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			stream, err := app.Chat.Respond(ctx, ports.ChatRequest{
				Transcript: []domain.Turn{{Role: domain.RoleUser, Content: args[0]}},
				PartyCodes: parties,
			})
			if err != nil {
				return err
			}
			logger.Info("context_ready",
				"result_count", stream.Context.ResultCount,
				"parties_represented", stream.Context.PartiesRepresented,
			)

			out := cmd.OutOrStdout()
			var streamErr error
			for ev := range stream.Events {
				if ev.Err != nil {
					streamErr = ev.Err
					continue
				}
				fmt.Fprint(out, ev.Token)
			}
			fmt.Fprintln(out)
			if streamErr != nil {
				return streamErr
			}
			return ctx.Err()
		},
	}

	cmd.Flags().StringSliceVarP(&parties, "party", "p", nil, "party short code to restrict retrieval to (repeatable)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of fragments to retrieve")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level for stderr output")
	return cmd
}
