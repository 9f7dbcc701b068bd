package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"chatrelay/pkg/channel"

	"github.com/mymmrac/telego"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeAPI struct {
	mu       sync.Mutex
	messages []*telego.SendMessageParams
	actions  []*telego.SendChatActionParams

	// failSendsAfter makes SendMessage fail once this many sends succeeded.
	failSendsAfter int
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSendsAfter > 0 && len(f.messages) >= f.failSendsAfter {
		return nil, errors.New("telegram: send failed")
	}
	f.messages = append(f.messages, params)
	return &telego.Message{}, nil
}

func (f *fakeAPI) SendChatAction(_ context.Context, params *telego.SendChatActionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, params)
	return nil
}

func (f *fakeAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.messages))
	for _, params := range f.messages {
		texts = append(texts, params.Text)
	}
	return texts
}

func testAdapter(t *testing.T) *Adapter {
	t.Helper()
	return &Adapter{model: "llama-3.3-70b", log: discardLogger()}
}

func textUpdate(text string) telego.Update {
	return telego.Update{
		UpdateID: 1,
		Message: &telego.Message{
			Text: text,
			Chat: telego.Chat{ID: 7},
			From: &telego.User{ID: 1, FirstName: "Ada"},
		},
	}
}

func echoHandler(reply string) channel.Handler {
	return func(_ context.Context, _ channel.InboundMessage) (channel.OutboundMessage, error) {
		return channel.OutboundMessage{Channel: channelName, ChatID: "7", Content: reply}, nil
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("", messageLimit); len(got) != 1 || got[0] != "" {
		t.Fatalf("splitText empty = %v, want one empty chunk", got)
	}

	short := "hello"
	if got := splitText(short, messageLimit); len(got) != 1 || got[0] != short {
		t.Fatalf("splitText short = %v, want unsplit", got)
	}

	exact := strings.Repeat("a", messageLimit)
	if got := splitText(exact, messageLimit); len(got) != 1 {
		t.Fatalf("splitText exact-limit chunks = %d, want 1", len(got))
	}

	long := strings.Repeat("a", 9000)
	chunks := splitText(long, messageLimit)
	if len(chunks) != 3 {
		t.Fatalf("splitText 9000 chunks = %d, want 3", len(chunks))
	}
	wantLens := []int{4096, 4096, 808}
	for i, chunk := range chunks {
		if len([]rune(chunk)) != wantLens[i] {
			t.Fatalf("chunk %d len = %d, want %d", i, len([]rune(chunk)), wantLens[i])
		}
	}
	if strings.Join(chunks, "") != long {
		t.Fatal("concatenated chunks do not reconstruct input")
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 10)
	chunks := splitText(text, 3)
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "é") {
			t.Fatalf("chunk %d = %q, rune cut mid-encoding", i, chunk)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("concatenated chunks do not reconstruct input")
	}
}

func TestGreetingText(t *testing.T) {
	t.Parallel()

	greeting := greetingText("Ada", "llama-3.3-70b")
	if !strings.Contains(greeting, "Ada") {
		t.Fatalf("greeting %q missing first name", greeting)
	}
	if !strings.Contains(greeting, "llama-3.3-70b") {
		t.Fatalf("greeting %q missing model identifier", greeting)
	}
}

func TestCommandToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/start":              "/start",
		"/start hello":        "/start",
		"/start@relaybot":     "/start",
		"/start@relaybot now": "/start",
		"/help":               "/help",
	}
	for input, want := range cases {
		if got := commandToken(input); got != want {
			t.Fatalf("commandToken(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestAllowFromSet(t *testing.T) {
	t.Parallel()

	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	t.Parallel()

	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestHandleUpdateNonTextIsIgnored(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}
	handlerCalled := false
	handler := func(_ context.Context, _ channel.InboundMessage) (channel.OutboundMessage, error) {
		handlerCalled = true
		return channel.OutboundMessage{}, nil
	}

	adapter.handleUpdate(context.Background(), bot, telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 7}, From: &telego.User{ID: 1}}}, handler)
	adapter.handleUpdate(context.Background(), bot, telego.Update{}, handler)

	if handlerCalled {
		t.Fatal("handler invoked for non-text update")
	}
	if len(bot.messages) != 0 || len(bot.actions) != 0 {
		t.Fatalf("outbound calls = %d messages, %d actions, want none", len(bot.messages), len(bot.actions))
	}
}

func TestHandleUpdateStartCommand(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}

	adapter.handleUpdate(context.Background(), bot, textUpdate("/start"), echoHandler("unused"))

	if len(bot.messages) != 1 {
		t.Fatalf("messages = %d, want exactly one greeting", len(bot.messages))
	}
	greeting := bot.messages[0]
	if !strings.Contains(greeting.Text, "Ada") || !strings.Contains(greeting.Text, "llama-3.3-70b") {
		t.Fatalf("greeting %q missing sender name or model", greeting.Text)
	}
	if greeting.ParseMode != telego.ModeMarkdown {
		t.Fatalf("greeting parse mode = %q, want %q", greeting.ParseMode, telego.ModeMarkdown)
	}
}

func TestHandleUpdateUnknownCommandFallsThrough(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}

	adapter.handleUpdate(context.Background(), bot, textUpdate("/help"), echoHandler("unused"))

	if len(bot.messages) != 0 {
		t.Fatalf("messages = %d, want none for unrecognized command", len(bot.messages))
	}
}

func TestHandleUpdateRelaysReply(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}

	var gotInbound channel.InboundMessage
	handler := func(_ context.Context, inbound channel.InboundMessage) (channel.OutboundMessage, error) {
		gotInbound = inbound
		return channel.OutboundMessage{Content: "Hi there!"}, nil
	}

	adapter.handleUpdate(context.Background(), bot, textUpdate("Hello"), handler)

	if gotInbound.Content != "Hello" {
		t.Fatalf("inbound content = %q, want %q", gotInbound.Content, "Hello")
	}
	if gotInbound.ChatID != "7" || gotInbound.SenderName != "Ada" {
		t.Fatalf("inbound identity = %+v, want chat 7 from Ada", gotInbound)
	}
	if len(bot.actions) == 0 {
		t.Fatal("expected a typing action before the reply")
	}
	if texts := bot.sentTexts(); len(texts) != 1 || texts[0] != "Hi there!" {
		t.Fatalf("replies = %v, want exactly [Hi there!]", texts)
	}
}

func TestHandleUpdateCompletionErrorSendsFallback(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}
	handler := func(_ context.Context, _ channel.InboundMessage) (channel.OutboundMessage, error) {
		return channel.OutboundMessage{Error: "connection refused"}, errors.New("connection refused")
	}

	adapter.handleUpdate(context.Background(), bot, textUpdate("Hello"), handler)

	if texts := bot.sentTexts(); len(texts) != 1 || texts[0] != fallbackText {
		t.Fatalf("replies = %v, want exactly one fallback reply", texts)
	}
}

func TestHandleUpdateLongReplyIsChunked(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{}
	long := strings.Repeat("x", 9000)

	adapter.handleUpdate(context.Background(), bot, textUpdate("write a lot"), echoHandler(long))

	texts := bot.sentTexts()
	if len(texts) != 3 {
		t.Fatalf("replies = %d, want 3 chunks", len(texts))
	}
	for i, text := range texts {
		if len([]rune(text)) > messageLimit {
			t.Fatalf("chunk %d length %d exceeds limit", i, len([]rune(text)))
		}
	}
	if strings.Join(texts, "") != long {
		t.Fatal("concatenated replies do not reconstruct the completion result")
	}
}

func TestHandleUpdateChunkSendFailureStops(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	bot := &fakeAPI{failSendsAfter: 1}
	long := strings.Repeat("x", 9000)

	adapter.handleUpdate(context.Background(), bot, textUpdate("write a lot"), echoHandler(long))

	// The first chunk goes out; the failed second send aborts the rest with no
	// compensating action.
	if texts := bot.sentTexts(); len(texts) != 1 {
		t.Fatalf("replies = %d, want 1 before the failure", len(texts))
	}
}

func TestHandleUpdateDeniedSender(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t)
	adapter.allowFrom = map[string]struct{}{"99": {}}
	bot := &fakeAPI{}

	adapter.handleUpdate(context.Background(), bot, textUpdate("Hello"), echoHandler("unused"))

	if len(bot.messages) != 0 {
		t.Fatalf("messages = %d, want none for denied sender", len(bot.messages))
	}
}

func TestPreviewText(t *testing.T) {
	t.Parallel()

	if got := previewText(" hello "); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}
