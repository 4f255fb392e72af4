package realtime

import (
	"log"
	"sync"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
)

// snapshotBuffer is the per-subscription channel depth. Every emission is a
// full idempotent snapshot, so when a consumer lags the oldest buffered
// snapshot is dropped in favour of the newest.
const snapshotBuffer = 8

// Hub fans stop-list snapshots out to per-delivery watchers. Consumers
// subscribe for one delivery and receive the full re-sorted stop list after
// every mutation; the stream only ends when the consumer closes it.
type Hub struct {
	mu       sync.RWMutex
	watchers map[uuid.UUID]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[uuid.UUID]map[*Subscription]struct{})}
}

// Subscription is one consumer's handle on a delivery's snapshot stream.
type Subscription struct {
	hub        *Hub
	deliveryID uuid.UUID
	ch         chan []entity.Stop
	once       sync.Once
}

// Stops yields full stop-list snapshots. The channel is closed by Close.
func (s *Subscription) Stops() <-chan []entity.Stop { return s.ch }

// Close detaches the subscription from the hub and closes the snapshot
// channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if subs, ok := s.hub.watchers[s.deliveryID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.hub.watchers, s.deliveryID)
			}
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a watcher for one delivery.
func (h *Hub) Subscribe(deliveryID uuid.UUID) *Subscription {
	sub := &Subscription{
		hub:        h,
		deliveryID: deliveryID,
		ch:         make(chan []entity.Stop, snapshotBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.watchers[deliveryID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.watchers[deliveryID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers a snapshot to every watcher of the delivery. Watchers on
// other deliveries are unaffected. A full buffer sheds the oldest snapshot;
// a watcher that still cannot accept has the emission dropped with a log.
func (h *Hub) Publish(deliveryID uuid.UUID, stops []entity.Stop) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.watchers[deliveryID] {
		select {
		case sub.ch <- stops:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- stops:
			default:
				log.Printf("hub: watcher for delivery %s not keeping up; snapshot dropped", deliveryID)
			}
		}
	}
}

// WatcherCount reports how many subscriptions are attached to a delivery.
func (h *Hub) WatcherCount(deliveryID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[deliveryID])
}
