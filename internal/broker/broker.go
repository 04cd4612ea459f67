// Package broker fans out entity events to live subscribers. One logical
// channel exists per entity instance; channels are created lazily on first
// subscribe and destroyed when the last subscriber leaves. Delivery is
// at-most-once and only to subscribers registered at publish time (no
// replay).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is an immutable notification payload. Data is relayed to transports
// verbatim, one message per event.
type Event struct {
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Subscription receives events for one topic. Unsubscribe is idempotent and
// must be safe to call from cleanup paths that never completed setup.
type Subscription interface {
	// Events yields events in publish order. The channel is closed by
	// Unsubscribe.
	Events() <-chan Event
	Unsubscribe()
}

// Broker is the narrow mutation surface over the shared subscriber registry.
type Broker interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	// Publish delivers evt to every current subscriber of topic. Publishing
	// to a topic with no subscribers is a no-op, not an error.
	Publish(ctx context.Context, topic string, evt Event) error
}

// WalletTopic and InvoiceTopic name broker channels. Wallet and invoice ids
// share a numeric space, so the kind prefix keeps their channels apart.
func WalletTopic(id int64) string { return fmt.Sprintf("wallet:%d", id) }

func InvoiceTopic(id int64) string { return fmt.Sprintf("invoice:%d", id) }
