package broker

import (
	"context"
	"sync"

	"paygate/internal/obs"
)

// subscriber buffer; a session that falls this far behind starts losing
// events rather than blocking publishers.
const subscriberBuffer = 16

// Memory is the in-process Broker. The registry mutex is held only for
// channel lookup/insert/remove; subscriber sets are guarded per-channel so
// traffic on unrelated entities never serializes.
type Memory struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

type channel struct {
	topic string

	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// NewMemory creates an empty broker.
func NewMemory() *Memory {
	return &Memory{channels: make(map[string]*channel)}
}

var _ Broker = (*Memory)(nil)

// Subscribe registers a new subscriber on topic, creating the channel if
// absent. It never blocks waiting for events.
func (b *Memory) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	// The registry lock is held across the insert so a concurrent
	// last-unsubscribe cannot evict the channel between lookup and
	// registration. Publish never takes this lock exclusively, so unrelated
	// channels stay independent.
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[topic]
	if !ok {
		ch = &channel{topic: topic, subs: make(map[int]chan Event)}
		b.channels[topic] = ch
		obs.ChannelOpened()
	}

	ch.mu.Lock()
	id := ch.next
	ch.next++
	events := make(chan Event, subscriberBuffer)
	ch.subs[id] = events
	ch.mu.Unlock()

	return &memorySubscription{broker: b, ch: ch, id: id, events: events}, nil
}

// Publish fans evt out to every subscriber currently registered on topic, in
// registration-independent but per-channel FIFO order. Slow subscribers are
// dropped-from rather than blocked-on.
func (b *Memory) Publish(ctx context.Context, topic string, evt Event) error {
	b.mu.RLock()
	ch, ok := b.channels[topic]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	obs.EventPublished()
	for _, events := range ch.subs {
		select {
		case events <- evt:
		default:
			obs.EventDropped()
		}
	}
	return nil
}

// Subscribers reports the current subscriber count for a topic. Zero for an
// absent channel.
func (b *Memory) Subscribers(topic string) int {
	b.mu.RLock()
	ch, ok := b.channels[topic]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Channels reports how many channels are currently active.
func (b *Memory) Channels() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

type memorySubscription struct {
	broker *Memory
	ch     *channel
	id     int
	events chan Event
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.events }

// Unsubscribe removes the registration; when the last subscriber leaves the
// channel is dropped from the registry so a later subscribe starts fresh.
func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		// Registry lock first, then channel lock: same order as Subscribe,
		// so the last-subscriber removal cannot deadlock or race a
		// concurrent subscribe into a dangling channel.
		s.broker.mu.Lock()
		s.ch.mu.Lock()
		delete(s.ch.subs, s.id)
		close(s.events)
		if len(s.ch.subs) == 0 && s.broker.channels[s.ch.topic] == s.ch {
			delete(s.broker.channels, s.ch.topic)
			obs.ChannelClosed()
		}
		s.ch.mu.Unlock()
		s.broker.mu.Unlock()
	})
}
