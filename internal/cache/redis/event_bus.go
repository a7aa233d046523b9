package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calebwaine/autopricer/internal/domain"
)

// priceChannel is the pub/sub channel carrying one event per priced item.
const priceChannel = "prices"

// EventBus implements domain.EventBus using Redis Pub/Sub.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// PublishPrice broadcasts a priced-item event to all subscribers.
func (b *EventBus) PublishPrice(ctx context.Context, event domain.PriceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal price event %s: %w", event.ItemID, err)
	}
	if err := b.rdb.Publish(ctx, priceChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish price %s: %w", event.ItemID, err)
	}
	return nil
}

// SubscribePrices returns a channel of broadcast price events, closed when the
// context is cancelled. Intended for in-process consumers and tests; the bot
// consumer subscribes to the same channel externally.
func (b *EventBus) SubscribePrices(ctx context.Context) (<-chan domain.PriceEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, priceChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe prices: %w", err)
	}

	out := make(chan domain.PriceEvent, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.PriceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
