package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Broadcaster fans envelopes out to per-user logical channels. Delivery is
// best-effort: publishing to a user with no subscribers is a no-op, and slow
// subscribers have messages dropped rather than blocking the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int64]map[int]chan Envelope
	nextID int
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int64]map[int]chan Envelope),
		logger: logger,
	}
}

// Subscribe registers a channel for one user. The channel is closed and the
// subscription removed when the context ends.
func (b *Broadcaster) Subscribe(ctx context.Context, userID int64) <-chan Envelope {
	ch := make(chan Envelope, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan Envelope)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if chans, ok := b.subs[userID]; ok {
			delete(chans, id)
			if len(chans) == 0 {
				delete(b.subs, userID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers the envelope to every subscriber of that user's channel,
// and only that user's. Never blocks past the buffered channel.
func (b *Broadcaster) Publish(userID int64, env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	chans, ok := b.subs[userID]
	if !ok {
		return
	}
	for _, ch := range chans {
		select {
		case ch <- env:
		default:
			// Drop when subscriber is slow to avoid blocking.
			b.logger.Warn("dropping broadcast for slow subscriber", "user_id", userID)
		}
	}
}

// SubscriberCount reports active subscriptions for a user.
func (b *Broadcaster) SubscriberCount(userID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// StartPing emits a liveness probe to every connected user at the given
// interval until the returned stop function is called.
func (b *Broadcaster) StartPing(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.pingAll()
			}
		}
	}()
	return cancel
}

func (b *Broadcaster) pingAll() {
	b.mu.RLock()
	userIDs := make([]int64, 0, len(b.subs))
	for userID := range b.subs {
		userIDs = append(userIDs, userID)
	}
	b.mu.RUnlock()

	for _, userID := range userIDs {
		b.Publish(userID, PingEnvelope())
	}
}
