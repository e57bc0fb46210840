// Package clock drives the node: block production, archon heartbeats and
// mesh decay all run as listeners on one ticker.
package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives tick events.
type Listener interface {
	OnTick(t time.Time)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(t time.Time)

func (f ListenerFunc) OnTick(t time.Time) { f(t) }

// Clock ticks its listeners in registration order.
type Clock struct {
	interval  time.Duration
	listeners []Listener
	ticks     uint64
	last      time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// New creates a clock with the given tick interval.
func New(interval time.Duration, logger *zap.Logger) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{interval: interval, logger: logger}
}

// AddListener registers a tick listener.
func (c *Clock) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Ticks returns the number of ticks so far.
func (c *Clock) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// LastTick returns the time of the most recent tick.
func (c *Clock) LastTick() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Start begins the tick loop. It stops when ctx is done or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("clock started", zap.Duration("interval", c.interval))
}

// Stop halts the tick loop and waits for the current tick to finish.
func (c *Clock) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.logger.Info("clock stopped", zap.Uint64("ticks", c.Ticks()))
}

func (c *Clock) loop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			c.Tick(t)
		}
	}
}

// Tick fires every listener once.
func (c *Clock) Tick(t time.Time) {
	c.mu.Lock()
	c.ticks++
	c.last = t
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(t)
	}
}

// Every wraps l so it fires at most once per interval. The first tick only
// arms the timer.
type Every struct {
	interval time.Duration
	next     Listener
	last     time.Time
	mu       sync.Mutex
}

// NewEvery gates l to interval.
func NewEvery(interval time.Duration, l Listener) *Every {
	return &Every{interval: interval, next: l}
}

func (e *Every) OnTick(t time.Time) {
	e.mu.Lock()
	if e.last.IsZero() {
		e.last = t
		e.mu.Unlock()
		return
	}
	if t.Sub(e.last) < e.interval {
		e.mu.Unlock()
		return
	}
	e.last = t
	e.mu.Unlock()
	e.next.OnTick(t)
}
