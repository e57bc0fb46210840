// Package events fans chain and archon events out over Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamPrefix = "demiurge:"
	// DefaultMaxLen caps each stream, approximately.
	DefaultMaxLen = 10_000
)

// Event is one published message.
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Node      string          `json:"node"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bus publishes events to one stream per topic.
type Bus struct {
	rdb    *redis.Client
	node   string
	maxLen int64
	logger *zap.Logger
}

// NewBus connects to redisURL and pings it.
func NewBus(ctx context.Context, redisURL, node string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, node: node, maxLen: DefaultMaxLen, logger: logger}, nil
}

// Stream is the Redis key for topic.
func Stream(topic string) string { return streamPrefix + topic }

// Publish appends payload to the topic stream.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	ev := Event{ID: uuid.New().String(), Topic: topic, Node: b.node, Payload: raw, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := Stream(topic)
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published event",
		zap.String("topic", topic),
		zap.String("id", ev.ID))
	return nil
}

// Subscribe streams new events on topic until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string) <-chan *Event {
	ch := make(chan *Event, 16)
	stream := Stream(topic)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Debug("xread", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
