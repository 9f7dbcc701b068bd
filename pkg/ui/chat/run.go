package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// PromptFunc sends one prompt and returns the generated text.
type PromptFunc func(ctx context.Context, prompt string) (string, error)

// RunInteractive starts a terminal chat session against promptFn.
func RunInteractive(ctx context.Context, promptFn PromptFunc, modelID string) error {
	program := tea.NewProgram(newModel(ctx, promptFn, modeInteractive, "", modelID))
	_, err := program.Run()
	return err
}

// RunOneShot sends a single prompt and renders the answer.
func RunOneShot(ctx context.Context, promptFn PromptFunc, prompt string, modelID string) error {
	program := tea.NewProgram(newModel(ctx, promptFn, modeOneShot, prompt, modelID))
	_, err := program.Run()
	return err
}
