package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Relay Telegram messages to an LLM completion API",
	Long:  "ChatRelay forwards incoming Telegram text messages to an OpenAI-compatible completion API and sends the generated text back, split to fit Telegram's message-size limit.",
}

// Execute runs the root command and exits nonzero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
