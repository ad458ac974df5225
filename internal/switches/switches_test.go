package switches

import (
	"context"
	"errors"
	"testing"

	"github.com/tmpim/krist/internal/cache/cachetest"
)

func TestSwitches(t *testing.T) {
	ctx := context.Background()
	c, mr := cachetest.New(t)
	s := New(c)

	on, err := s.MiningEnabled(ctx)
	if err != nil || on {
		t.Fatalf("unset MiningEnabled() = %v, %v; want false", on, err)
	}

	if err := s.Set(ctx, Mining, true); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if got, _ := mr.Get("krist:mining-enabled"); got != "true" {
		t.Errorf("stored value = %q, want true", got)
	}
	if on, _ := s.MiningEnabled(ctx); !on {
		t.Error("MiningEnabled() = false after Set(true)")
	}
	if on, _ := s.TransactionsEnabled(ctx); on {
		t.Error("TransactionsEnabled() flipped with mining")
	}

	if err := s.Set(ctx, Mining, false); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if on, _ := s.MiningEnabled(ctx); on {
		t.Error("MiningEnabled() = true after Set(false)")
	}

	mr.Set("krist:transactions-enabled", "yes")
	if on, _ := s.TransactionsEnabled(ctx); on {
		t.Error("only the literal \"true\" enables a switch")
	}
}

func TestUnknownSwitch(t *testing.T) {
	c, _ := cachetest.New(t)
	s := New(c)

	if err := s.Set(context.Background(), "staking", true); !errors.Is(err, ErrUnknownSwitch) {
		t.Errorf("Set(staking) = %v, want ErrUnknownSwitch", err)
	}
	if _, err := s.Enabled(context.Background(), "staking"); !errors.Is(err, ErrUnknownSwitch) {
		t.Errorf("Enabled(staking) = %v, want ErrUnknownSwitch", err)
	}
}
