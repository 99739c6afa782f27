package ws

import (
	"sync"

	"go.uber.org/zap"
)

const roomQueueSize = 256

type outbound struct {
	frame   []byte
	exclude *Session
}

// room owns the membership set and the outbound queue for one room id.
// A single dispatcher goroutine drains the queue, which gives every room
// FIFO delivery regardless of which connection enqueued the event.
type room struct {
	members map[*Session]bool
	queue   chan outbound
	done    chan struct{}
}

// Hub maintains active websocket sessions and their room subscriptions.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[int]*room
	sessions map[*Session]map[int]bool
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:    make(map[int]*room),
		sessions: make(map[*Session]map[int]bool),
		logger:   logger,
	}
}

// Register adds a connected session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		h.sessions[s] = make(map[int]bool)
	}
}

// Unregister removes the session from the hub and from every room it
// joined. No user_left events are emitted; disconnects are silent at the
// room level, presence handles the user-level signal.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.sessions[s] {
		h.removeLocked(roomID, s)
	}
	delete(h.sessions, s)
}

// Join subscribes the session to a room. Returns false when the session
// was already subscribed.
func (h *Hub) Join(roomID int, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.sessions[s]
	if !ok {
		joined = make(map[int]bool)
		h.sessions[s] = joined
	}
	if joined[roomID] {
		return false
	}
	joined[roomID] = true

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			members: make(map[*Session]bool),
			queue:   make(chan outbound, roomQueueSize),
			done:    make(chan struct{}),
		}
		h.rooms[roomID] = r
		go h.dispatch(r)
	}
	r.members[s] = true
	return true
}

// Leave unsubscribes the session from a room. Leaving a room never joined
// is a no-op and returns false.
func (h *Hub) Leave(roomID int, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.sessions[s]
	if !ok || !joined[roomID] {
		return false
	}
	delete(joined, roomID)
	h.removeLocked(roomID, s)
	return true
}

// InRoom reports whether the session is subscribed to the room.
func (h *Hub) InRoom(roomID int, s *Session) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[s][roomID]
}

// RoomSize returns the number of sessions subscribed to a room.
func (h *Hub) RoomSize(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.members)
	}
	return 0
}

func (h *Hub) removeLocked(roomID int, s *Session) {
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(r.members, s)
	if len(r.members) == 0 {
		close(r.done)
		delete(h.rooms, roomID)
	}
}

// Broadcast enqueues an event for every session in the room, skipping
// exclude when non-nil. Events to an unknown room are dropped.
func (h *Hub) Broadcast(roomID int, event string, payload any, exclude *Session) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case r.queue <- outbound{frame: frame, exclude: exclude}:
	default:
		h.logger.Warn("room queue full, dropping broadcast",
			zap.Int("room_id", roomID),
			zap.String("event", event),
		)
	}
}

// BroadcastAll delivers an event to every registered session, whatever
// rooms they are in. Used for global presence updates.
func (h *Hub) BroadcastAll(event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(frame)
	}
}

// dispatch drains one room's queue until the room empties.
func (h *Hub) dispatch(r *room) {
	for {
		select {
		case out := <-r.queue:
			h.mu.RLock()
			targets := make([]*Session, 0, len(r.members))
			for s := range r.members {
				if s != out.exclude {
					targets = append(targets, s)
				}
			}
			h.mu.RUnlock()

			for _, s := range targets {
				s.enqueue(out.frame)
			}
		case <-r.done:
			return
		}
	}
}
