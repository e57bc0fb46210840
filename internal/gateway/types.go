// Package gateway heralds archon directives to operator chat platforms.
package gateway

import (
	"context"
	"time"
)

// Adapter connects one chat platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *OutboundMessage) error
	OnMessage(handler MessageHandler)
	Close() error
}

// MessageHandler processes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// InboundMessage is a normalized message from any platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// OutboundMessage is a message for one platform channel. An empty
// ChannelID means the adapter's announcement channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id,omitempty"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// Announcement is a rendered directive.
type Announcement struct {
	Code     string    `json:"code"`
	Priority int       `json:"priority"`
	Title    string    `json:"title"`
	Detail   string    `json:"detail,omitempty"`
	NodeID   string    `json:"node_id"`
	Height   uint64    `json:"height"`
	SentAt   time.Time `json:"sent_at"`
	Targets  []string  `json:"targets"`
}

// Persona is how the archon appears on a platform.
type Persona struct {
	Name    string `json:"name" yaml:"name"`
	IconURL string `json:"icon_url" yaml:"icon_url"`
	Emoji   string `json:"emoji" yaml:"emoji"` // fallback if no icon_url, e.g. ":crystal_ball:"
}

// DefaultPersona names the archon.
var DefaultPersona = Persona{Name: "Archon", Emoji: ":crystal_ball:"}
