package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"paygate/internal/obs"
)

const redisPrefix = "paygate:notify:"

// Redis is a Broker backed by redis PUBSUB, for deployments running more
// than one API instance: a status transition applied on one instance must
// reach sessions held open by another. Redis preserves per-channel publish
// order, which is the only ordering guarantee the broker makes anyway.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var _ Broker = (*Redis)(nil)

// Subscribe opens a dedicated PUBSUB subscription for the topic.
func (b *Redis) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, redisPrefix+topic)
	// Force the SUBSCRIBE round-trip so authorization-checked sessions do
	// not miss events published immediately after Subscribe returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan Event, subscriberBuffer),
	}
	go sub.pump()
	return sub, nil
}

// Publish marshals the event onto the redis channel. No subscribers is a
// no-op on the redis side as well.
func (b *Redis) Publish(ctx context.Context, topic string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	obs.EventPublished()
	return b.client.Publish(ctx, redisPrefix+topic, payload).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.events }

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		// Closing the PubSub ends pump's range loop, which closes events.
		_ = s.pubsub.Close()
	})
}

func (s *redisSubscription) pump() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var evt Event
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			continue
		}
		select {
		case s.events <- evt:
		default:
			obs.EventDropped()
		}
	}
}
