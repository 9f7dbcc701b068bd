package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/pkg/channel"
	"chatrelay/pkg/channel/telegram"
	"chatrelay/pkg/completion"
	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/relay"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram relay",
	Long:  "Loads configuration, connects to the completion API, and relays Telegram messages until interrupted. Health and readiness endpoints are served over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		// Configuration and client construction failures are fatal before the
		// serving loop starts.
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		client, err := completion.New(cfg.LLM)
		if err != nil {
			log.Error("Failed to initialize completion client", "error", err)
			os.Exit(1)
		}

		adapter, err := telegram.NewAdapter(cfg.Telegram, client.Model(), appLogger)
		if err != nil {
			log.Error("Failed to configure telegram channel", "error", err)
			os.Exit(1)
		}

		svc, err := relay.NewService(cfg, client, []channel.Adapter{adapter}, appLogger)
		if err != nil {
			log.Error("Failed to initialize relay service", "error", err)
			os.Exit(1)
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Relay started", "channel", adapter.Name(), "model", client.Model())
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
