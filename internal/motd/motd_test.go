package motd

import (
	"context"
	"testing"
	"time"

	"github.com/tmpim/krist/internal/cache/cachetest"
	"github.com/tmpim/krist/internal/events"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) Broadcast(ev events.Event) int {
	r.events = append(r.events, ev)
	return 1
}

func TestMotd(t *testing.T) {
	ctx := context.Background()
	c, _ := cachetest.New(t)
	rec := &recorder{}
	s := New(c, rec)

	m, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if m.Text != "" || !m.Set.IsZero() {
		t.Errorf("unset Get() = %+v", m)
	}

	before := time.Now().Add(-time.Second)
	if _, err := s.Set(ctx, "Welcome to Krist!"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	m, err = s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if m.Text != "Welcome to Krist!" {
		t.Errorf("Get().Text = %q", m.Text)
	}
	if m.Set.Before(before) {
		t.Errorf("Get().Set = %v, want after %v", m.Set, before)
	}

	if len(rec.events) != 1 {
		t.Fatalf("published %d events, want 1", len(rec.events))
	}
	ev, ok := rec.events[0].(events.MotdEvent)
	if !ok || ev.Motd != "Welcome to Krist!" {
		t.Errorf("published %#v", rec.events[0])
	}
}
