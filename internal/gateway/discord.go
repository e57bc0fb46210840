package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordConfig configures the Discord adapter. With WebhookURL set the
// adapter posts through the webhook and needs no gateway connection.
type DiscordConfig struct {
	Token      string `json:"token" yaml:"token"`
	ChannelID  string `json:"channel_id" yaml:"channel_id"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// DiscordAdapter posts announcements to a Discord channel.
type DiscordAdapter struct {
	cfg       DiscordConfig
	session   *discordgo.Session
	handler   MessageHandler
	persona   Persona
	connected bool
	lastError string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewDiscordAdapter creates a Discord gateway adapter.
func NewDiscordAdapter(cfg DiscordConfig, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{cfg: cfg, persona: DefaultPersona, logger: logger}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

// Connect creates the session and, with a bot token, opens the gateway websocket.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		a.setError(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	a.session = session
	if a.cfg.Token == "" {
		a.logger.Info("discord adapter ready (webhook only)")
		return nil
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	session.AddHandler(a.onMessageCreate)
	if err := session.Open(); err != nil {
		a.setError(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	a.mu.Lock()
	a.connected = true
	a.lastError = ""
	a.mu.Unlock()

	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(session.State.Guilds)))
	return nil
}

func (a *DiscordAdapter) setError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.connected = false
	a.mu.Unlock()
}

func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || a.handler == nil {
		return
	}
	a.handler(&InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	})
}

// Send posts through the webhook when configured, else as the bot.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	if a.session == nil {
		return fmt.Errorf("discord send: not connected")
	}
	if a.cfg.WebhookURL != "" && msg.ChannelID == "" {
		return a.sendViaWebhook(msg.Content)
	}

	channel := msg.ChannelID
	if channel == "" {
		channel = a.cfg.ChannelID
	}
	if channel == "" {
		return fmt.Errorf("discord send: no channel configured")
	}
	content := fmt.Sprintf("**[%s]** %s", a.persona.Name, msg.Content)
	if _, err := a.session.ChannelMessageSend(channel, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (a *DiscordAdapter) sendViaWebhook(content string) error {
	id, token, err := parseWebhookURL(a.cfg.WebhookURL)
	if err != nil {
		return err
	}
	params := &discordgo.WebhookParams{Content: content, Username: a.persona.Name}
	if a.persona.IconURL != "" {
		params.AvatarURL = a.persona.IconURL
	}
	if _, err := a.session.WebhookExecute(id, token, false, params); err != nil {
		return fmt.Errorf("discord webhook execute: %w", err)
	}
	return nil
}

// parseWebhookURL splits .../webhooks/{id}/{token} into its parts.
func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("discord webhook url: %q has no webhooks/{id}/{token}", raw)
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil && a.cfg.Token != "" {
		return a.session.Close()
	}
	return nil
}

// Connected reports the gateway connection and the last error.
func (a *DiscordAdapter) Connected() (bool, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected, a.lastError
}
