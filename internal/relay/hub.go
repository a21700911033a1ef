package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mossy-p/webrtc-calling/internal/models"
)

// Subscription is one live inbound stream bound to an identity. A user with
// several open sockets holds several subscriptions.
type Subscription struct {
	ID       string
	Identity models.Identity

	send chan []byte
	hub  *Hub
	once sync.Once
}

// Messages yields encoded deliveries in arrival order. The channel is closed
// by Close.
func (s *Subscription) Messages() <-chan []byte {
	return s.send
}

// Close unbinds the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans deliveries out to the subscriptions of this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[models.Identity]map[string]*Subscription
	buffer int
	log    *slog.Logger
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs:   make(map[models.Identity]map[string]*Subscription),
		buffer: buffer,
		log:    log,
	}
}

func (h *Hub) Subscribe(id models.Identity) *Subscription {
	sub := &Subscription{
		ID:       uuid.New().String(),
		Identity: id,
		send:     make(chan []byte, h.buffer),
		hub:      h,
	}

	h.mu.Lock()
	byID, ok := h.subs[id]
	if !ok {
		byID = make(map[string]*Subscription)
		h.subs[id] = byID
	}
	byID[sub.ID] = sub
	count := len(byID)
	h.mu.Unlock()

	h.log.Debug("subscription opened",
		slog.String("identity", string(id)),
		slog.String("subscription_id", sub.ID),
		slog.Int("subscriptions", count),
	)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID := h.subs[sub.Identity]
	if _, ok := byID[sub.ID]; !ok {
		return
	}
	delete(byID, sub.ID)
	if len(byID) == 0 {
		delete(h.subs, sub.Identity)
	}
	close(sub.send)

	h.log.Debug("subscription closed",
		slog.String("identity", string(sub.Identity)),
		slog.String("subscription_id", sub.ID),
	)
}

// Subscribers reports how many live subscriptions id has on this process.
func (h *Hub) Subscribers(id models.Identity) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

// Forward encodes d once and hands it to every subscription of to.
func (h *Hub) Forward(_ context.Context, to models.Identity, d models.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	h.deliver(to, data)
	return nil
}

// deliver never blocks: a subscription whose buffer is full misses the
// message, everybody else still gets it.
func (h *Hub) deliver(to models.Identity, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, sub := range h.subs[to] {
		select {
		case sub.send <- data:
			delivered++
		default:
			h.log.Warn("dropping delivery, subscriber buffer full",
				slog.String("identity", string(to)),
				slog.String("subscription_id", id),
			)
		}
	}
	return delivered
}
