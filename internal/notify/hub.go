package notify

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pranavch/cashdesk/internal/domain"
)

// ErrSubscriberClosed is returned when sending to a closed subscriber.
var ErrSubscriberClosed = errors.New("subscriber is closed")

// Subscriber receives serialized events for one holder. Send must not
// block: implementations queue into a bounded buffer and fail fast when
// the buffer is full.
type Subscriber interface {
	ID() string
	HolderID() string
	Send(data []byte) error
	Close() error
}

// Hub fans events out to the subscribers registered for the event's
// recipient. It is safe for concurrent use. Events for the same holder
// are handed to each subscriber in Publish order; ordering across holders
// is not guaranteed.
type Hub struct {
	holders map[string]map[string]Subscriber
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{holders: make(map[string]map[string]Subscriber)}
}

var _ domain.EventPublisher = (*Hub)(nil)

// Register adds a subscriber under its holder id.
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	holderID := sub.HolderID()
	if h.holders[holderID] == nil {
		h.holders[holderID] = make(map[string]Subscriber)
	}
	h.holders[holderID][sub.ID()] = sub

	log.Debug().
		Str("holder_id", holderID).
		Str("subscriber_id", sub.ID()).
		Msg("subscriber registered")
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	holderID := sub.HolderID()
	if subs, ok := h.holders[holderID]; ok {
		if _, exists := subs[sub.ID()]; exists {
			delete(subs, sub.ID())
			if len(subs) == 0 {
				delete(h.holders, holderID)
			}
			log.Debug().
				Str("holder_id", holderID).
				Str("subscriber_id", sub.ID()).
				Msg("subscriber unregistered")
		}
	}
}

// SubscriberCount returns the number of subscribers for a holder.
func (h *Hub) SubscriberCount(holderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.holders[holderID])
}

// Publish implements domain.EventPublisher. Sends happen on the calling
// goroutine but only as non-blocking enqueues; a full subscriber buffer
// counts as a failed delivery and is logged, never retried here.
// Consumers deduplicate on event id.
func (h *Hub) Publish(event domain.NotificationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("kind", string(event.Kind)).
			Msg("failed to serialize event")
		return
	}

	h.mu.RLock()
	subs, ok := h.holders[event.RecipientID]
	if !ok || len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	subsCopy := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		subsCopy = append(subsCopy, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subsCopy {
		if err := sub.Send(data); err != nil {
			log.Warn().
				Err(err).
				Str("holder_id", event.RecipientID).
				Str("subscriber_id", sub.ID()).
				Str("event_id", event.ID).
				Msg("failed to deliver event")
		}
	}
}
