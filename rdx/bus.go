// Package rdx relays slot events between portal instances over redis
// pub/sub so every instance's WebSocket clients hear every change.
package rdx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"vditaxi/hub"
	"vditaxi/models"
)

// Channel carries JSON encoded models.SlotEvent values.
const Channel = "slot-events"

// Bus publishes to redis and relays what it receives to a local hub.
type Bus struct {
	Conn  *redis.Client
	local hub.Publisher
}

var _ hub.Publisher = (*Bus)(nil)

// Connect dials redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, local hub.Publisher) (*Bus, error) {
	conn := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	log.Printf("[rdx] connected to redis at %s", addr)
	return &Bus{Conn: conn, local: local}, nil
}

// Publish sends ev to every instance. When redis is unreachable the
// event still reaches local clients.
func (b *Bus) Publish(ctx context.Context, ev models.SlotEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[rdx] marshal event: %v", err)
		return
	}
	if err := b.Conn.Publish(ctx, Channel, data).Err(); err != nil {
		log.Printf("[rdx] publish %s failed, delivering locally: %v", ev.Event, err)
		b.local.Publish(ctx, ev)
	}
}

// Run subscribes to Channel and relays events to the local hub until
// ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	sub := b.Conn.Subscribe(ctx, Channel)
	defer sub.Close()

	log.Printf("[rdx] listening on %q", Channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *Bus) relay(ctx context.Context, payload string) {
	var ev models.SlotEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Printf("[rdx] dropping malformed event: %v", err)
		return
	}
	if !ev.Invalidates() {
		log.Printf("[rdx] dropping unknown event %q", ev.Event)
		return
	}
	b.local.Publish(ctx, ev)
}

func (b *Bus) Close() error {
	return b.Conn.Close()
}
