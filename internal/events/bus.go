package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/metrics"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/pkg/logging"
)

// Guest is the address of a session that has not logged in
const Guest = "guest"

// outboxSize bounds the messages queued for a slow session. Anything past
// it is dropped for that session only.
const outboxSize = 100

// Conn is the write side of a client connection
type Conn interface {
	Write(data []byte) error
	Close() error
}

// Bus keeps the live sessions and their subscriptions. One lock guards the
// registry and every session's subscription set.
type Bus struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		sessions: make(map[string]*Session),
		logger:   logging.WithComponent("events"),
	}
}

// AddConnection registers conn as a new session with the default levels
// and starts its writer. An empty address means guest.
func (b *Bus) AddConnection(conn Conn, token, address, privatekey string) *Session {
	if address == "" {
		address = Guest
	}

	s := &Session{
		ID:         uuid.NewString(),
		Token:      token,
		bus:        b,
		conn:       conn,
		outbox:     make(chan []byte, outboxSize),
		done:       make(chan struct{}),
		address:    address,
		privatekey: privatekey,
		levels:     make(map[string]struct{}, len(DefaultLevels)),
	}
	for _, l := range DefaultLevels {
		s.levels[l] = struct{}{}
	}

	b.mu.Lock()
	b.sessions[s.ID] = s
	n := len(b.sessions)
	b.mu.Unlock()

	metrics.SetSessions(n)
	b.logger.Debug("Session added", zap.String("session", s.ID), zap.String("address", address))

	go s.writeLoop()

	return s
}

// Remove unregisters s and closes its outbox. It is safe to call twice.
func (b *Bus) Remove(s *Session) {
	b.mu.Lock()
	if s.closed {
		b.mu.Unlock()
		return
	}
	s.closed = true
	delete(b.sessions, s.ID)
	close(s.outbox)
	n := len(b.sessions)
	b.mu.Unlock()

	metrics.SetSessions(n)
	b.logger.Debug("Session removed", zap.String("session", s.ID))
}

// Shutdown removes every session
func (b *Bus) Shutdown() {
	b.mu.RLock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	for _, s := range sessions {
		b.Remove(s)
	}
}

// Count returns the number of live sessions
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Login binds s to address
func (b *Bus) Login(s *Session, address, privatekey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.address = address
	s.privatekey = privatekey
}

// Logout returns s to guest
func (b *Bus) Logout(s *Session) {
	b.Login(s, Guest, "")
}

// Subscribe adds level to the set of s. Unknown levels are ignored. The
// resulting set is returned.
func (b *Bus) Subscribe(s *Session, level string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if IsValidLevel(level) {
		s.levels[level] = struct{}{}
	}
	return s.levelsLocked()
}

// Unsubscribe removes level from the set of s and returns the result
func (b *Bus) Unsubscribe(s *Session, level string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(s.levels, level)
	return s.levelsLocked()
}

// Levels returns the subscription set of s
func (b *Bus) Levels(s *Session) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return s.levelsLocked()
}

// Broadcast sends ev to every session whose subscription admits it and
// returns the number of sessions it was queued for
func (b *Bus) Broadcast(ev Event) int {
	data, err := json.Marshal(ev.Envelope())
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("event", ev.Category()), zap.Error(err))
		return 0
	}

	all, own := ev.Levels()
	recipients := 0

	b.mu.RLock()
	for _, s := range b.sessions {
		if !s.admits(ev, all, own) {
			continue
		}
		if s.enqueue(data) {
			recipients++
		}
	}
	b.mu.RUnlock()

	metrics.ObserveBroadcast(ev.Category(), recipients)
	return recipients
}

// RunKeepalive sends a keepalive message to every session each interval
// until ctx is cancelled
func (b *Bus) RunKeepalive(ctx context.Context, interval time.Duration) {
	b.logger.Info("Starting keepalive", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Keepalive stopped")
			return
		case now := <-ticker.C:
			b.keepalive(now)
		}
	}
}

func (b *Bus) keepalive(now time.Time) {
	data, err := json.Marshal(map[string]interface{}{
		"type":        "keepalive",
		"server_time": models.FormatTime(now),
	})
	if err != nil {
		b.logger.Error("Failed to encode keepalive", zap.Error(err))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.sessions {
		s.enqueue(data)
	}
}
