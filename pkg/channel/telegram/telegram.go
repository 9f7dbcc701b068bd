package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chatrelay/pkg/channel"
	"chatrelay/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"

// messageLimit is Telegram's maximum message length; longer replies are split.
const messageLimit = 4096

const messagePreviewLimit = 240

// Telegram expires a chat action after ~5 seconds, so the indicator is
// refreshed while a completion call is in flight.
const typingRefreshInterval = 4 * time.Second

const startCommand = "/start"

// fallbackText is the fixed user-facing reply when a completion fails.
const fallbackText = "⚠️ I encountered an error while processing your request. Please try again later."

// api is the subset of telego.Bot the update handlers call, narrowed so tests
// can substitute a recording fake.
type api interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram updates into relay inbound/outbound messages.
//
// Each update is handled in its own goroutine so the polling loop stays
// responsive while a completion call is in flight; updates share no mutable
// state, so no ordering is guaranteed across them.
type Adapter struct {
	cfg       config.TelegramConfig
	model     string
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, model string, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		model:     strings.TrimSpace(model),
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in outbound metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and dispatches each update concurrently.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "model", a.model)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			go a.handleUpdate(ctx, bot, update, handler)
		}
	}
}

// handleUpdate routes one update to the command or text path.
func (a *Adapter) handleUpdate(ctx context.Context, bot api, update telego.Update, handler channel.Handler) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	// Non-text updates (stickers, photos, joins) are ignored without a reply.
	if message.Text == "" {
		return
	}

	if !a.senderAllowed(strconv.FormatInt(message.From.ID, 10)) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", message.From.ID)
		return
	}

	if isCommand(message.Text) {
		a.handleCommand(ctx, bot, message)
		return
	}

	a.handleText(ctx, bot, message, update.UpdateID, handler)
}

// handleCommand recognizes /start; other commands fall through unhandled.
func (a *Adapter) handleCommand(ctx context.Context, bot api, message *telego.Message) {
	if commandToken(message.Text) != startCommand {
		return
	}

	greeting := greetingText(message.From.FirstName, a.model)
	params := tu.Message(tu.ID(message.Chat.ID), greeting).WithParseMode(telego.ModeMarkdown)
	if _, err := bot.SendMessage(ctx, params); err != nil {
		a.log.Error("Failed to send greeting", "chat_id", message.Chat.ID, "error", err)
	}
}

// handleText relays one text message: typing indicator, completion call,
// chunked replies, strictly in that order.
func (a *Adapter) handleText(ctx context.Context, bot api, message *telego.Message, updateID int, handler channel.Handler) {
	chatID := strconv.FormatInt(message.Chat.ID, 10)
	inbound := channel.InboundMessage{
		Channel:    channelName,
		SenderID:   strconv.FormatInt(message.From.ID, 10),
		SenderName: message.From.FirstName,
		ChatID:     chatID,
		Content:    message.Text,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(updateID),
		},
	}
	a.log.Info("Received message", "chat_id", chatID, "sender_id", inbound.SenderID, "content", previewText(inbound.Content))

	stopTyping := a.startTypingIndicator(ctx, bot, message.Chat.ID)
	outbound, err := handler(ctx, inbound)
	stopTyping()

	responseText := outbound.Content
	if err != nil || outbound.Error != "" {
		// The error cause is already logged upstream; the user gets the fixed
		// apology either way.
		responseText = fallbackText
	}

	chunks := splitText(responseText, messageLimit)
	a.log.Info("Sending reply", "chat_id", chatID, "length", len(responseText), "chunks", len(chunks))

	for _, chunk := range chunks {
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), chunk)); err != nil {
			a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
			return
		}
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// startTypingIndicator sends an initial typing action and refreshes it
// periodically until the returned cancel function is called. Failures are
// logged at debug level only; typing is best-effort.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot api, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

// greetingText composes the /start reply naming the sender and the model.
func greetingText(firstName string, model string) string {
	return fmt.Sprintf(
		"Hello, %s! 🤖\n\nI am an AI bot powered by the hyper-fast **%s**.\n\nAsk me anything, and I will generate code, summarize text, or answer questions instantly.",
		firstName,
		model,
	)
}

// isCommand reports whether text carries a bot command token.
func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}

// commandToken extracts the leading command, dropping arguments and the
// @botname suffix used in group chats.
func commandToken(text string) string {
	token := text
	if idx := strings.IndexAny(token, " \n"); idx >= 0 {
		token = token[:idx]
	}
	if idx := strings.Index(token, "@"); idx >= 0 {
		token = token[:idx]
	}

	return token
}

// splitText splits text into ordered chunks of at most limit runes each.
// Concatenating the chunks reconstructs the input exactly.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
