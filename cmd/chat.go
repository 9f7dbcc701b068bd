package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"chatrelay/pkg/completion"
	"chatrelay/pkg/config"
	"chatrelay/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var promptText string

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt or start an interactive chat",
	Long:  "Connects to the configured completion API and sends one prompt or starts an interactive terminal chat, using the same client the relay uses.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolvePrompt(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		client, err := completion.New(cfg.LLM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize completion client: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := client.Health(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "completion API health check failed: %v\n", err)
			os.Exit(1)
		}

		if prompt != "" {
			if err := chat.RunOneShot(ctx, client.Complete, prompt, client.Model()); err != nil {
				fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if err := chat.RunInteractive(ctx, client.Complete, client.Model()); err != nil {
			fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}
