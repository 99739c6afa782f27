package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
)

// Presence tracks live connections per user and flips the persisted
// online flag only on 0 to 1 and 1 to 0 transitions, so a user with
// several tabs open stays online until the last one closes.
type Presence struct {
	mu     sync.Mutex
	conns  map[int]int
	users  repositories.UserRepository
	hub    *Hub
	logger *zap.Logger
}

func NewPresence(users repositories.UserRepository, hub *Hub, logger *zap.Logger) *Presence {
	return &Presence{
		conns:  make(map[int]int),
		users:  users,
		hub:    hub,
		logger: logger,
	}
}

// Connect records one more live connection for the user. The first
// connection marks the user online and broadcasts user_status globally.
func (p *Presence) Connect(ctx context.Context, userID int, username string) {
	p.mu.Lock()
	p.conns[userID]++
	first := p.conns[userID] == 1
	p.mu.Unlock()

	if !first {
		return
	}

	if err := p.users.SetOnline(ctx, userID, true, time.Now()); err != nil {
		p.logger.Error("set online failed", zap.Int("user_id", userID), zap.Error(err))
	}
	p.hub.BroadcastAll(models.EventUserStatus, models.PresencePayload{
		UserID:   userID,
		Username: username,
		IsOnline: true,
	})
}

// Disconnect records one fewer live connection. The last disconnect marks
// the user offline with a last-seen timestamp and broadcasts it.
func (p *Presence) Disconnect(ctx context.Context, userID int, username string) {
	p.mu.Lock()
	if p.conns[userID] > 0 {
		p.conns[userID]--
	}
	last := p.conns[userID] == 0
	if last {
		delete(p.conns, userID)
	}
	p.mu.Unlock()

	if !last {
		return
	}

	now := time.Now()
	if err := p.users.SetOnline(ctx, userID, false, now); err != nil {
		p.logger.Error("set offline failed", zap.Int("user_id", userID), zap.Error(err))
	}
	p.hub.BroadcastAll(models.EventUserStatus, models.PresencePayload{
		UserID:   userID,
		Username: username,
		IsOnline: false,
		LastSeen: now.Format("15:04"),
	})
}

// Connections returns the live connection count for a user.
func (p *Presence) Connections(userID int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[userID]
}
