// Package completion wraps the remote chat-completions API behind a small
// client: one prompt in, one generated text out.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"chatrelay/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// systemPrompt is the fixed system-role instruction sent with every request.
const systemPrompt = "You are a helpful, intelligent AI assistant on Telegram."

const defaultAPIKeyEnv = "LLM_API_KEY"

// Client issues chat-completion requests against one configured model.
//
// The client is read-only after construction and safe for concurrent use; the
// underlying SDK manages its own connection pool.
type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
}

// New validates LLM configuration, resolves the API key, and constructs a client.
func New(cfg config.LLMConfig) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("llm.model is required")
	}

	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("llm.api_key_env %q is unset or empty", apiKeyEnvName(cfg))
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Health verifies the API is reachable with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// Complete sends one prompt with the fixed system instruction and returns the
// first choice's message content verbatim.
//
// There is no retry and no streaming; the full response is awaited. Errors are
// returned as-is so callers can log the cause before substituting a
// user-facing fallback.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := clientLogger().With("operation", "complete")
	startedAt := time.Now()

	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is required")
	}
	log.Debug("completion request started", "model", c.model, "prompt_length", len(prompt))

	chatCompletion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.SystemMessage(systemPrompt),
			osdk.UserMessage(prompt),
		},
		Model: osdk.ChatModel(c.model),
	})
	if err != nil {
		log.Debug("completion request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("completion failed: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		log.Debug("completion request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no choices")
		return "", errors.New("completion returned no choices")
	}

	text := chatCompletion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		log.Debug("completion request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "empty content")
		return "", errors.New("completion succeeded but returned no text")
	}
	log.Debug("completion request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

func clientLogger() *slog.Logger {
	return slog.Default().With("component", "completion.client")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.LLMConfig) string {
	return strings.TrimSpace(os.Getenv(apiKeyEnvName(cfg)))
}

func apiKeyEnvName(cfg config.LLMConfig) string {
	if name := strings.TrimSpace(cfg.APIKeyEnv); name != "" {
		return name
	}

	return defaultAPIKeyEnv
}
