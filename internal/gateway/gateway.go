package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/archon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const historySize = 100

// StatusFunc renders a one-line node status for the "!status" command.
type StatusFunc func() string

// Gateway fans directive announcements out to every registered adapter.
type Gateway struct {
	adapters map[string]Adapter
	status   StatusFunc
	history  []Announcement
	mu       sync.RWMutex
	logger   *zap.Logger
}

var _ archon.Announcer = (*Gateway)(nil)

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetStatus installs the responder for operator status queries.
func (g *Gateway) SetStatus(fn StatusFunc) { g.status = fn }

// Register adds an adapter and wires its message handler.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(func(msg *InboundMessage) { g.handle(adapter, msg) })
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// handle answers "!status" on the channel it came from.
func (g *Gateway) handle(adapter Adapter, msg *InboundMessage) {
	if g.status == nil || strings.TrimSpace(msg.Content) != "!status" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := adapter.Send(ctx, &OutboundMessage{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		Content:   g.status(),
		ReplyTo:   msg.ReplyTo,
	})
	if err != nil {
		g.logger.Warn("status reply failed", zap.String("platform", msg.Platform), zap.Error(err))
	}
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

// Render formats a directive for operators.
func Render(d archon.Directive, local *archon.StateVector) Announcement {
	a := Announcement{
		Code:     string(d.Code),
		Priority: d.Priority(),
		Title:    d.Description(),
		Detail:   d.Detail,
	}
	if local != nil {
		a.NodeID = local.NodeID
		a.Height = local.BlockHeight
	}
	return a
}

func (a Announcement) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (priority %d)\nnode %s at height %d", a.Code, a.Title, a.Priority, a.NodeID, a.Height)
	if a.Detail != "" {
		b.WriteString("\n")
		b.WriteString(a.Detail)
	}
	return b.String()
}

// Announce sends the directive to every adapter concurrently. It fails if
// any adapter fails, after all have been tried.
func (g *Gateway) Announce(ctx context.Context, d archon.Directive, local *archon.StateVector) error {
	a := Render(d, local)
	content := a.text()

	g.mu.RLock()
	targets := make([]Adapter, 0, len(g.adapters))
	for _, ad := range g.adapters {
		targets = append(targets, ad)
	}
	g.mu.RUnlock()

	var (
		failed []string
		fmu    sync.Mutex
	)
	var eg errgroup.Group
	for _, ad := range targets {
		eg.Go(func() error {
			err := ad.Send(ctx, &OutboundMessage{Platform: ad.Platform(), Content: content})
			if err != nil {
				g.logger.Error("announce failed", zap.String("platform", ad.Platform()), zap.Error(err))
				fmu.Lock()
				failed = append(failed, ad.Platform())
				fmu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()

	a.SentAt = time.Now().UTC()
	for _, ad := range targets {
		a.Targets = append(a.Targets, ad.Platform())
	}
	sort.Strings(a.Targets)

	g.mu.Lock()
	g.history = append(g.history, a)
	if len(g.history) > historySize {
		g.history = g.history[len(g.history)-historySize:]
	}
	g.mu.Unlock()

	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("announce failed on %s", strings.Join(failed, ", "))
	}
	return nil
}

// History returns up to limit recent announcements, oldest first.
func (g *Gateway) History(limit int) []Announcement {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if limit <= 0 || limit > len(g.history) {
		limit = len(g.history)
	}
	return append([]Announcement(nil), g.history[len(g.history)-limit:]...)
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
