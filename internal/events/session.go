package events

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/metrics"
)

// ErrSessionClosed is returned when writing to a removed session
var ErrSessionClosed = errors.New("session closed")

// ErrOutboxFull is returned when a session is too slow to keep up
var ErrOutboxFull = errors.New("session outbox full")

// Session is one live websocket client. Mutable state is guarded by the
// owning bus.
type Session struct {
	ID    string
	Token string

	bus    *Bus
	conn   Conn
	outbox chan []byte
	done   chan struct{}
	closed bool

	address    string
	privatekey string
	levels     map[string]struct{}
}

// Address returns the logged in address, or Guest
func (s *Session) Address() string {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return s.address
}

// PrivateKey returns the private key the session logged in with
func (s *Session) PrivateKey() string {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return s.privatekey
}

// IsGuest reports whether the session is not logged in
func (s *Session) IsGuest() bool {
	return s.Address() == Guest
}

// Done is closed once the writer has stopped and the connection is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues v, encoded as JSON, for this session only
func (s *Session) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()

	if s.closed {
		return ErrSessionClosed
	}
	if !s.enqueue(data) {
		return ErrOutboxFull
	}
	return nil
}

// Close removes the session from its bus
func (s *Session) Close() {
	s.bus.Remove(s)
}

// enqueue must be called with the bus lock held
func (s *Session) enqueue(data []byte) bool {
	if s.closed {
		return false
	}
	select {
	case s.outbox <- data:
		return true
	default:
		metrics.IncDropped()
		return false
	}
}

// admits must be called with the bus lock held
func (s *Session) admits(ev Event, all, own string) bool {
	if _, ok := s.levels[all]; ok {
		return true
	}
	if own == "" || s.address == Guest {
		return false
	}
	if _, ok := s.levels[own]; !ok {
		return false
	}
	return ev.Involves(s.address)
}

// levelsLocked must be called with the bus lock held
func (s *Session) levelsLocked() []string {
	out := make([]string, 0, len(s.levels))
	for _, l := range ValidLevels {
		if _, ok := s.levels[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()

	failed := false
	for data := range s.outbox {
		if failed {
			continue
		}
		if err := s.conn.Write(data); err != nil {
			s.bus.logger.Debug("Session write failed", zap.String("session", s.ID), zap.Error(err))
			failed = true
			s.bus.Remove(s)
		}
	}
}
