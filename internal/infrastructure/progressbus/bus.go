// Package progressbus implements the in-process per-entity-id progress
// pub/sub (spec §4.2), generalized from a per-user WebSocket hub to
// per-entity-id keying with a Job or Batch id as the key.
package progressbus

import (
	"context"
	"sync"

	"webscope/internal/core/domain/common"
)

// subscriberBufferSize bounds each subscriber's channel; a slow reader
// drops events rather than blocking the publishing pipeline.
const subscriberBufferSize = 16

type subscriber struct {
	ch chan common.ProgressEvent
}

// Bus is the default common.ProgressBus implementation: a map of entity
// id to subscriber set, guarded by a single mutex. There is no
// background goroutine loop — publish and subscribe both take the lock
// directly, since the hot path (one pipeline writer, a handful of
// readers) does not need a serialized run loop to stay correct.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
}

// New creates an empty progress bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]map[*subscriber]struct{})}
}

var _ common.ProgressBus = (*Bus)(nil)

// Publish delivers event to every current subscriber of event.EntityID.
// Delivery is best-effort: a subscriber whose buffer is full misses the
// event rather than stalling the publisher.
func (b *Bus) Publish(ctx context.Context, event common.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers[event.EntityID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe registers a new listener for entityID and returns a receive
// channel plus an unsubscribe func the caller must call exactly once.
func (b *Bus) Subscribe(entityID string) (<-chan common.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan common.ProgressEvent, subscriberBufferSize)}

	b.mu.Lock()
	if b.subscribers[entityID] == nil {
		b.subscribers[entityID] = make(map[*subscriber]struct{})
	}
	b.subscribers[entityID][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subscribers[entityID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subscribers, entityID)
			}
		}
		close(sub.ch)
	}

	return sub.ch, unsubscribe
}
