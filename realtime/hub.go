// Package realtime fans committed wheel events out to WebSocket sessions
package realtime

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const sendBuffer = 64

// Session is one connected client. Lobby sessions receive every wheel's events.
type Session struct {
	ID   uuid.UUID
	Send chan []byte

	hub    *Hub
	lobby  bool
	mu     sync.Mutex
	closed bool
}

// Close unregisters the session and closes its send channel. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.Send)
	s.mu.Unlock()

	s.hub.unregister(s)
}

// deliver queues data without blocking. A full buffer drops the message.
func (s *Session) deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.Send <- data:
		return true
	default:
		return false
	}
}

// Hub tracks sessions and their room memberships
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]map[int64]struct{}
	rooms    map[int64]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[*Session]map[int64]struct{}),
		rooms:    make(map[int64]map[*Session]struct{}),
	}
}

// Register creates a session. Lobby sessions see events for every wheel.
func (h *Hub) Register(lobby bool) *Session {
	s := &Session{
		ID:    uuid.New(),
		Send:  make(chan []byte, sendBuffer),
		hub:   h,
		lobby: lobby,
	}

	h.mu.Lock()
	h.sessions[s] = make(map[int64]struct{})
	h.mu.Unlock()

	log.WithFields(log.Fields{
		"sessionID": s.ID,
		"lobby":     lobby,
	}).Debug("Session registered")
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for wheelID := range h.sessions[s] {
		h.leaveLocked(s, wheelID)
	}
	delete(h.sessions, s)
}

// Join adds the session to a wheel room. Unknown sessions are ignored.
func (h *Hub) Join(s *Session, wheelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	memberships, ok := h.sessions[s]
	if !ok {
		return
	}
	memberships[wheelID] = struct{}{}
	if h.rooms[wheelID] == nil {
		h.rooms[wheelID] = make(map[*Session]struct{})
	}
	h.rooms[wheelID][s] = struct{}{}
}

// Leave removes the session from a wheel room
func (h *Hub) Leave(s *Session, wheelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, wheelID)
}

func (h *Hub) leaveLocked(s *Session, wheelID int64) {
	if memberships, ok := h.sessions[s]; ok {
		delete(memberships, wheelID)
	}
	if room := h.rooms[wheelID]; room != nil {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, wheelID)
		}
	}
}

// Publish delivers data to the wheel's room and to every lobby session, once each.
// It returns how many sessions accepted the message.
func (h *Hub) Publish(wheelID int64, data []byte) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[wheelID]))
	for s := range h.sessions {
		if _, inRoom := h.rooms[wheelID][s]; inRoom || s.lobby {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(data) {
			delivered++
			continue
		}
		log.WithFields(log.Fields{
			"sessionID": s.ID,
			"wheelID":   wheelID,
		}).Debug("Dropped message for slow session")
	}
	return delivered
}

// RoomSize returns the number of sessions subscribed to a wheel
func (h *Hub) RoomSize(wheelID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[wheelID])
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
