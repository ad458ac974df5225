// Package switches holds the runtime feature switches of the node. A
// switch is enabled only while its key holds "true".
package switches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/pkg/logging"
)

// Known switches
const (
	Mining       = "mining"
	Transactions = "transactions"
)

// ErrUnknownSwitch is returned for a name that is not a known switch
var ErrUnknownSwitch = errors.New("unknown switch")

// Store is the subset of the fast store used for switches
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Switches reads and flips feature switches
type Switches struct {
	store  Store
	logger *zap.Logger
}

// New creates a new switch set
func New(store Store) *Switches {
	return &Switches{
		store:  store,
		logger: logging.WithComponent("switches"),
	}
}

// Valid reports whether name is a known switch
func Valid(name string) bool {
	return name == Mining || name == Transactions
}

func key(name string) string {
	return name + "-enabled"
}

// Enabled reports whether name is on. An unset switch is off.
func (s *Switches) Enabled(ctx context.Context, name string) (bool, error) {
	if !Valid(name) {
		return false, ErrUnknownSwitch
	}

	val, err := s.store.Get(ctx, key(name))
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read switch %s: %w", name, err)
	}
	return val == "true", nil
}

// MiningEnabled reports whether block submission is accepted
func (s *Switches) MiningEnabled(ctx context.Context) (bool, error) {
	return s.Enabled(ctx, Mining)
}

// TransactionsEnabled reports whether transfers are accepted
func (s *Switches) TransactionsEnabled(ctx context.Context) (bool, error) {
	return s.Enabled(ctx, Transactions)
}

// Set turns name on or off
func (s *Switches) Set(ctx context.Context, name string, enabled bool) error {
	if !Valid(name) {
		return ErrUnknownSwitch
	}

	val := "false"
	if enabled {
		val = "true"
	}
	if err := s.store.Set(ctx, key(name), val, 0); err != nil {
		return fmt.Errorf("failed to set switch %s: %w", name, err)
	}

	s.logger.Info("Switch changed", zap.String("switch", name), zap.Bool("enabled", enabled))
	return nil
}
