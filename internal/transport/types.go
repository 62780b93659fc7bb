// Package transport defines the platform-neutral boundary between the bot
// core and the chat platform. The core consumes Update values and talks
// back through the Adapter interface; everything Telegram-specific lives in
// the telegram subpackage.
package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateForward  UpdateKind = "forward"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Forward  *Forward
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	FromID   int64
	FromName string
	Text     string
	Private  bool
}

// Forward is a message the requester forwarded into the bot chat. The bot
// later re-forwards the requester's own copy, so ChatID/ID point at the
// private chat, not the origin channel.
type Forward struct {
	ID        int
	ChatID    int64
	ChatTitle string
	Date      time.Time
	FromID    int64
	FromName  string
	Private   bool

	// GroupID is the platform media-group id; empty for single messages.
	GroupID string

	// Source describes where the content was originally forwarded from
	// (channel title or sender name).
	Source string
	Text   string
}

type Callback struct {
	ID        string
	FromID    int64
	FromName  string
	ChatID    int64
	MessageID int
	Data      string
	Private   bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline-keyboard button. Data buttons carry callback data;
// an empty Data with empty URL renders a dead filler button.
type Button struct {
	Text string
	Data string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       [][]Button
}

// Adapter is the outbound platform surface the core depends on. All calls
// are fallible and the core retries or degrades per its own policy.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	Forward(ctx context.Context, to ChatTarget, from MessageRef) (MessageRef, error)
}
