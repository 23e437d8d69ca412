package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus implements Transport over Redis pub/sub so every replica
// (subscribed to the same pattern set) receives every event, matching
// "every replica subscribes to the pattern set at startup" from §4.8.
type RedisBus struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewRedisBus wraps an existing *redis.Client for publish/subscribe.
func NewRedisBus(rdb *redis.Client, log *logrus.Entry) *RedisBus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, channel, eventType string, payload interface{}, recipients ...string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload for %s: %w", eventType, err)
	}
	env := Envelope{
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		Payload:    raw,
		Recipients: recipients,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope for %s: %w", eventType, err)
	}
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		// Publishing is best-effort across a replica boundary: log and
		// move on rather than fail the caller's state transition, per
		// §7 "No error crosses a replica boundary."
		b.log.WithError(err).WithFields(logrus.Fields{"channel": channel, "type": eventType}).
			Error("failed to publish event")
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, patterns []string, handler func(channel string, env Envelope)) error {
	if len(patterns) == 0 {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, patterns...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				// Malformed payloads are logged and skipped, never fatal
				// to the subscriber loop, per §7.
				b.log.WithError(err).WithField("channel", msg.Channel).
					Warn("dropping malformed event payload")
				continue
			}
			handler(msg.Channel, env)
		}
	}
}
