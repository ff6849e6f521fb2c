package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
)

type EventType string

const (
	EventProjectCreated      EventType = "project_created"
	EventProjectUpdated      EventType = "project_updated"
	EventProjectFailed       EventType = "project_failed"
	EventProjectDeleted      EventType = "project_deleted"
	EventGenerationCompleted EventType = "generation_completed"
	EventGenerationFailed    EventType = "generation_failed"
	EventNotifyAvailable     EventType = "notify_available"
	EventNotification        EventType = "notification"
	EventAvatarReady         EventType = "avatar_ready"
	EventSubscriptionChanged EventType = "subscription_changed"
)

type Event struct {
	Type    EventType              `json:"type"`
	UserID  string                 `json:"user_id"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	At      time.Time              `json:"at"`
	// Origin identifies the process that published the event. Used by the
	// Redis forwarder to skip its own messages.
	Origin string `json:"origin,omitempty"`
}

// Channel is the per-user topic the event belongs to.
func (e Event) Channel() string {
	return "user:" + e.UserID
}

type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns the user's event stream and a func that ends the
	// subscription and closes the channel.
	Subscribe(userID string) (<-chan Event, func())
}

const subscriberBuffer = 32

// MemoryBus fans events out to in-process subscribers. Sends never block: a
// subscriber whose buffer is full misses the event.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
	log  *logger.Logger
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[chan Event]struct{}),
		log:  log.With("service", "MemoryBus"),
	}
}

func (b *MemoryBus) Publish(_ context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
			b.log.Warn("Dropping event; subscriber buffer full", "event", evt.Type, "user_id", evt.UserID)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[userID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, userID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers reports how many streams are open for the user.
func (b *MemoryBus) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
