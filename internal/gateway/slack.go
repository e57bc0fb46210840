package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackConfig configures the Slack adapter. AppToken enables Socket Mode
// for inbound commands; without it the adapter only posts.
type SlackConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	AppToken string `json:"app_token" yaml:"app_token"`
	Channel  string `json:"channel" yaml:"channel"`
	APIURL   string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

// SlackAdapter posts announcements to a Slack channel.
type SlackAdapter struct {
	channel string
	client  *slack.Client
	socket  *socketmode.Client
	handler MessageHandler
	persona Persona
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewSlackAdapter creates a Slack gateway adapter.
func NewSlackAdapter(cfg SlackConfig, logger *zap.Logger) *SlackAdapter {
	opts := []slack.Option{}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	client := slack.New(cfg.BotToken, opts...)

	a := &SlackAdapter{
		channel: cfg.Channel,
		client:  client,
		persona: DefaultPersona,
		logger:  logger,
	}
	if cfg.AppToken != "" {
		a.socket = socketmode.New(client, socketmode.OptionLog(zap.NewStdLog(logger)))
	}
	return a
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

// SetPersona overrides how announcements are signed.
func (a *SlackAdapter) SetPersona(p Persona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.persona = p
}

// Connect starts the Socket Mode event loop when an app token is set.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	if a.socket == nil {
		a.logger.Info("slack adapter ready (post only)", zap.String("channel", a.channel))
		return nil
	}
	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil {
			a.logger.Error("slack socket mode error", zap.Error(err))
		}
	}()
	a.logger.Info("slack adapter connected via socket mode")
	return nil
}

func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(evt)
		}
	}
}

func (a *SlackAdapter) processEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	a.socket.Ack(*evt.Request)

	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}
	if inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent); ok && inner.BotID == "" {
		a.handleSlackMessage(inner)
	}
}

// handleSlackMessage forwards a human message; replies go to its thread.
func (a *SlackAdapter) handleSlackMessage(ev *slackevents.MessageEvent) {
	if a.handler == nil {
		return
	}
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	a.handler(&InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		UserID:    ev.User,
		UserName:  ev.User,
		Content:   ev.Text,
		Timestamp: time.Now(),
		ReplyTo:   threadTS,
	})
}

// Send posts a message, threaded when ReplyTo is set.
func (a *SlackAdapter) Send(ctx context.Context, msg *OutboundMessage) error {
	channel := msg.ChannelID
	if channel == "" {
		channel = a.channel
	}
	if channel == "" {
		return fmt.Errorf("slack send: no channel configured")
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	opts = append(opts, a.personaOpts()...)

	if _, _, err := a.client.PostMessageContext(ctx, channel, opts...); err != nil {
		a.logger.Error("slack send failed", zap.String("channel", channel), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

func (a *SlackAdapter) personaOpts() []slack.MsgOption {
	a.mu.RLock()
	p := a.persona
	a.mu.RUnlock()
	if p.Name == "" {
		return nil
	}
	opts := []slack.MsgOption{slack.MsgOptionUsername(p.Name)}
	if p.IconURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(p.IconURL))
	} else if p.Emoji != "" {
		opts = append(opts, slack.MsgOptionIconEmoji(p.Emoji))
	}
	return opts
}

// Close is a no-op; the socket context cancellation handles shutdown.
func (a *SlackAdapter) Close() error {
	return nil
}
