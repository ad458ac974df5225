// Package work tracks the proof-of-work difficulty ("work") of the node:
// the current value, its adjustment policy, a rolling per-minute history,
// and the fixed difficulties of historic blocks.
package work

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/metrics"
	"github.com/tmpim/krist/pkg/logging"
)

const (
	workKey    = "work"
	historyKey = "work-over-time"

	// HistorySize is 24 hours of minutely samples.
	HistorySize = 1440

	// SampleInterval is how often the current work is appended to history.
	SampleInterval = time.Minute
)

// Store is the subset of the fast store used for work state
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	LPush(ctx context.Context, key string, values ...interface{}) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Tracker owns the current work value and its history
type Tracker struct {
	store    Store
	policy   Policy
	interval time.Duration
	logger   *zap.Logger
}

// NewTracker creates a new work tracker
func NewTracker(store Store, policy Policy) *Tracker {
	return &Tracker{
		store:    store,
		policy:   policy,
		interval: SampleInterval,
		logger:   logging.WithComponent("work-tracker"),
	}
}

// Policy returns the adjustment policy
func (t *Tracker) Policy() Policy {
	return t.policy
}

// Init stores MaxWork if no work has been recorded yet
func (t *Tracker) Init(ctx context.Context) error {
	set, err := t.store.SetNX(ctx, workKey, t.policy.MaxWork, 0)
	if err != nil {
		return fmt.Errorf("failed to initialise work: %w", err)
	}
	if set {
		t.logger.Info("Initialised work", zap.Uint64("work", t.policy.MaxWork))
	}
	return nil
}

// GetWork returns the current work, or MaxWork when none is stored or the
// stored value is unreadable. Only store failures are returned.
func (t *Tracker) GetWork(ctx context.Context) (uint64, error) {
	val, err := t.store.Get(ctx, workKey)
	if errors.Is(err, cache.ErrMiss) {
		return t.policy.MaxWork, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get work: %w", err)
	}

	w, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		t.logger.Warn("Malformed stored work, using max work",
			zap.String("value", val),
			zap.Uint64("work", t.policy.MaxWork))
		return t.policy.MaxWork, nil
	}
	return w, nil
}

// SetWork stores a new work value. Callers clamp it first.
func (t *Tracker) SetWork(ctx context.Context, w uint64) error {
	if err := t.store.Set(ctx, workKey, w, 0); err != nil {
		return fmt.Errorf("failed to set work: %w", err)
	}
	metrics.SetWork(w)
	return nil
}

// GetWorkOverTime returns up to HistorySize samples, oldest first
func (t *Tracker) GetWorkOverTime(ctx context.Context) ([]uint64, error) {
	vals, err := t.store.LRange(ctx, historyKey, 0, HistorySize-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read work history: %w", err)
	}

	out := make([]uint64, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		w, err := strconv.ParseUint(vals[i], 10, 64)
		if err != nil {
			t.logger.Warn("Skipping malformed work sample", zap.String("value", vals[i]))
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// Sample appends the current work to the history. The list keeps one
// entry more than HistorySize.
func (t *Tracker) Sample(ctx context.Context) error {
	w, err := t.GetWork(ctx)
	if err != nil {
		return err
	}
	if err := t.store.LPush(ctx, historyKey, w); err != nil {
		return fmt.Errorf("failed to push work sample: %w", err)
	}
	if err := t.store.LTrim(ctx, historyKey, 0, HistorySize); err != nil {
		return fmt.Errorf("failed to trim work history: %w", err)
	}
	metrics.SetWork(w)
	return nil
}

// Run samples the work every interval until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info("Starting work sampler", zap.Duration("interval", t.interval))

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Work sampler stopped")
			return
		case <-ticker.C:
			if err := t.Sample(ctx); err != nil {
				t.logger.Error("Failed to sample work", zap.Error(err))
			}
		}
	}
}
