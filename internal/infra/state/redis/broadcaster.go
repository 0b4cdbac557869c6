package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/realtime"
)

const subscriptionBuffer = 64

// RedisBroadcaster carries room events over redis pub/sub so every server
// instance sees them. Delivery is best effort and nothing is replayed.
type RedisBroadcaster struct {
	client *redis.Client
	keys   keys
}

var _ realtime.Broadcaster = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(client *redis.Client, keyPrefix string) *RedisBroadcaster {
	if client == nil {
		panic("redis client cannot be nil for RedisBroadcaster")
	}
	return &RedisBroadcaster{client: client, keys: newKeys(keyPrefix)}
}

// Publish sends event to the room channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, event realtime.Event) error {
	channel := b.keys.roomEvents(event.RoomID)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal %s event for room %s: %w", event.Type, event.RoomID, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"event_type":   event.Type,
			"room_id":      event.RoomID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on the room channel. The returned subscription stays open
// until Close is called or ctx ends.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, roomID string) (realtime.Subscription, error) {
	channel := b.keys.roomEvents(roomID)
	pubsub := b.client.Subscribe(ctx, channel)
	// Receive waits for the subscription confirmation so no event published
	// after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to channel %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan realtime.Event, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, channel)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan realtime.Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan realtime.Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(ctx context.Context, channel string) {
	defer close(s.events)
	log := logrus.WithField("channel", channel)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var ev realtime.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.WithError(err).Warn("Redis: dropping undecodable event")
				continue
			}
			select {
			case s.events <- ev:
			default:
				log.WithField("event_type", ev.Type).Warn("Redis: subscriber buffer full, event dropped")
			}
		}
	}
}
