package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Hub fans events out to subscribers grouped by deployment id. Delivery is
// at-most-once: late subscribers see nothing from before they joined and a
// subscriber whose queue is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uint]map[*Subscription]struct{}
	log    *logrus.Entry
	onDrop func()
}

// Subscription is one subscriber's membership in a deployment room.
type Subscription struct {
	ID           string
	DeploymentID uint

	events chan Event
	hub    *Hub
	once   sync.Once
}

// NewHub creates an empty hub. onDrop, if set, is called for every dropped event.
func NewHub(log *logrus.Entry, onDrop func()) *Hub {
	return &Hub{
		rooms:  make(map[uint]map[*Subscription]struct{}),
		log:    log,
		onDrop: onDrop,
	}
}

// Subscribe joins the room of deploymentID.
func (h *Hub) Subscribe(deploymentID uint, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		ID:           uuid.NewString(),
		DeploymentID: deploymentID,
		events:       make(chan Event, buffer),
		hub:          h,
	}

	h.mu.Lock()
	room, ok := h.rooms[deploymentID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[deploymentID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"room": Room(deploymentID), "subscriber": sub.ID}).Debug("subscriber joined")
	return sub
}

// Publish delivers evt to the current subscribers of its room without blocking.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[evt.DeploymentID] {
		select {
		case sub.events <- evt:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
			h.log.WithField("subscriber", sub.ID).Debug("subscriber queue full, event dropped")
		}
	}
}

// Subscribers returns the number of subscribers in a room.
func (h *Hub) Subscribers(deploymentID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[deploymentID])
}

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close leaves the room. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if room, ok := h.rooms[s.DeploymentID]; ok {
			delete(room, s)
			if len(room) == 0 {
				delete(h.rooms, s.DeploymentID)
			}
		}
		close(s.events)
		h.mu.Unlock()
		h.log.WithField("subscriber", s.ID).Debug("subscriber left")
	})
}
