// Package motd stores the message of the day.
package motd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/pkg/logging"
)

const (
	motdKey     = "motd"
	motdDateKey = "motd:date"
)

// Store is the subset of the fast store used for the MOTD
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Publisher receives the MOTD change event
type Publisher interface {
	Broadcast(ev events.Event) int
}

// Motd is the current message and when it was set
type Motd struct {
	Text string
	Set  time.Time
}

// Service reads and updates the MOTD
type Service struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// New creates a new MOTD service
func New(store Store, publisher Publisher) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logging.WithComponent("motd"),
	}
}

// Get returns the current MOTD. An unset MOTD is empty with a zero time.
func (s *Service) Get(ctx context.Context) (Motd, error) {
	var m Motd

	text, err := s.store.Get(ctx, motdKey)
	if errors.Is(err, cache.ErrMiss) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to get motd: %w", err)
	}
	m.Text = text

	date, err := s.store.Get(ctx, motdDateKey)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		return m, fmt.Errorf("failed to get motd date: %w", err)
	}
	if date != "" {
		if m.Set, err = time.Parse(time.RFC3339Nano, date); err != nil {
			s.logger.Warn("Ignoring malformed motd date", zap.String("value", date))
		}
	}

	return m, nil
}

// Set replaces the MOTD and broadcasts the change
func (s *Service) Set(ctx context.Context, text string) (Motd, error) {
	m := Motd{Text: text, Set: time.Now().UTC()}

	if err := s.store.Set(ctx, motdKey, text, 0); err != nil {
		return m, fmt.Errorf("failed to set motd: %w", err)
	}
	if err := s.store.Set(ctx, motdDateKey, m.Set.Format(time.RFC3339Nano), 0); err != nil {
		return m, fmt.Errorf("failed to set motd date: %w", err)
	}

	s.logger.Info("MOTD changed", zap.String("motd", text))

	if s.publisher != nil {
		s.publisher.Broadcast(events.MotdEvent{Motd: m.Text, Set: m.Set})
	}
	return m, nil
}
