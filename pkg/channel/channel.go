package channel

import "context"

// InboundMessage is one text message received from a chat platform.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply produced for one inbound message.
//
// Content and Error are mutually exclusive: a failed completion carries the
// error cause here and is rendered as a fixed user-facing string by the
// transport adapter.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Handler processes one inbound channel message and returns an outbound reply.
type Handler func(context.Context, InboundMessage) (OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the relay.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
