package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Bus is the group-addressed publish/subscribe primitive shared by all live
// sessions. A subscriber is a byte channel; publishes fan the marshalled
// payload out to every channel currently subscribed to the group.
//
// Publish never blocks on a subscriber: a frame that cannot be handed over
// immediately is dropped for that subscriber. Delivery is best-effort to
// whoever is connected right now; durability lives in the stores.
type Bus interface {
	Subscribe(group string, ch chan<- []byte)
	Unsubscribe(group string, ch chan<- []byte)
	Publish(ctx context.Context, group string, payload any) error
}

// Memory is the in-process Bus implementation. Safe for concurrent use.
type Memory struct {
	log    *slog.Logger
	mu     sync.RWMutex
	groups map[string]map[chan<- []byte]struct{}
}

func NewMemory(log *slog.Logger) *Memory {
	return &Memory{
		log:    log,
		groups: make(map[string]map[chan<- []byte]struct{}),
	}
}

func (b *Memory) Subscribe(group string, ch chan<- []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.groups[group]
	if !ok {
		subs = make(map[chan<- []byte]struct{})
		b.groups[group] = subs
	}
	subs[ch] = struct{}{}
}

// Unsubscribe is a no-op when the channel was never subscribed.
func (b *Memory) Unsubscribe(group string, ch chan<- []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.groups[group]
	if !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(b.groups, group)
	}
}

func (b *Memory) Publish(ctx context.Context, group string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for group %s: %w", group, err)
	}
	b.deliver(group, data)
	return nil
}

func (b *Memory) deliver(group string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.groups[group] {
		select {
		case ch <- data:
		default:
			b.log.Warn("dropping frame for saturated subscriber", "group", group)
		}
	}
}
