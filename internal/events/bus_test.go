package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tmpim/krist/internal/cache/cachetest"
	"github.com/tmpim/krist/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []map[string]interface{}
	failing  bool
	closed   bool
	written  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan struct{}, 1000)}
}

func (c *fakeConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.messages = append(c.messages, m)
	c.written <- struct{}{}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// wait blocks until n messages have been written
func (c *fakeConn) wait(t *testing.T, n int) []map[string]interface{} {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.written:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]interface{}(nil), c.messages...)
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func blockEvent(address string) BlockEvent {
	return BlockEvent{
		Block:   models.BlockJSON{Height: 2, Address: address, Hash: "000000012697b461", Value: 25},
		NewWork: 97500,
	}
}

func TestDefaultLevels(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	s := bus.AddConnection(newFakeConn(), "", "", "")
	if !s.IsGuest() {
		t.Errorf("session address = %q, want guest", s.Address())
	}

	got := bus.Levels(s)
	want := []string{LevelBlocks, LevelOwnTransactions, LevelNames, LevelMotd}
	if len(got) != len(want) {
		t.Fatalf("Levels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Levels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSubscribeIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	a := bus.AddConnection(newFakeConn(), "", "", "")
	b := bus.AddConnection(newFakeConn(), "", "", "")

	bus.Subscribe(a, LevelTransactions)
	bus.Unsubscribe(a, LevelBlocks)
	bus.Subscribe(a, "bogus")

	for _, l := range bus.Levels(a) {
		if l == LevelBlocks || l == "bogus" {
			t.Errorf("session a still has %q", l)
		}
	}

	levelsB := bus.Levels(b)
	if len(levelsB) != len(DefaultLevels) {
		t.Errorf("session b changed to %v", levelsB)
	}
	for _, l := range levelsB {
		if l == LevelTransactions {
			t.Error("subscribe on a leaked into b")
		}
	}
}

func TestBroadcastFilters(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	allConn := newFakeConn()
	all := bus.AddConnection(allConn, "", "", "")
	bus.Subscribe(all, LevelTransactions)

	ownConn := newFakeConn()
	own := bus.AddConnection(ownConn, "", "k8juvewcui", "a")
	bus.Unsubscribe(own, LevelBlocks)
	bus.Subscribe(own, LevelOwnBlocks)

	otherConn := newFakeConn()
	other := bus.AddConnection(otherConn, "", "k74tq2hsh6", "test")
	bus.Unsubscribe(other, LevelBlocks)
	bus.Subscribe(other, LevelOwnBlocks)

	if n := bus.Broadcast(blockEvent("k8juvewcui")); n != 2 {
		t.Errorf("Broadcast(block) recipients = %d, want 2", n)
	}

	msgs := ownConn.wait(t, 1)
	if msgs[0]["type"] != "event" || msgs[0]["event"] != "block" {
		t.Errorf("unexpected envelope %v", msgs[0])
	}
	if msgs[0]["new_work"] != float64(97500) {
		t.Errorf("new_work = %v", msgs[0]["new_work"])
	}
	block, ok := msgs[0]["block"].(map[string]interface{})
	if !ok || block["address"] != "k8juvewcui" {
		t.Errorf("block payload = %v", msgs[0]["block"])
	}
	allConn.wait(t, 1)

	from := "k74tq2hsh6"
	tx := TransactionEvent{Transaction: models.TransactionJSON{ID: 1, From: &from, To: "k8juvewcui", Value: 5}}
	if n := bus.Broadcast(tx); n != 3 {
		t.Errorf("Broadcast(transaction) recipients = %d, want 3", n)
	}
	otherConn.wait(t, 1)

	mined := TransactionEvent{Transaction: models.TransactionJSON{ID: 2, To: "k8juvewcui", Value: 25}}
	if n := bus.Broadcast(mined); n != 2 {
		t.Errorf("Broadcast(mined) recipients = %d, want 2", n)
	}

	ownConn.wait(t, 2)
	allConn.wait(t, 2)
	if otherConn.count() != 1 {
		t.Errorf("other session got %d messages, want 1", otherConn.count())
	}
}

func TestGuestOwnLevelsReceiveNothing(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	conn := newFakeConn()
	s := bus.AddConnection(conn, "", "", "")
	bus.Unsubscribe(s, LevelBlocks)
	bus.Subscribe(s, LevelOwnBlocks)

	if n := bus.Broadcast(blockEvent(Guest)); n != 0 {
		t.Errorf("guest received %d own events", n)
	}
}

func TestLoginLogout(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	s := bus.AddConnection(newFakeConn(), "", "", "")
	bus.Login(s, "k8juvewcui", "a")
	if s.Address() != "k8juvewcui" || s.PrivateKey() != "a" {
		t.Errorf("after Login() got %q %q", s.Address(), s.PrivateKey())
	}
	bus.Logout(s)
	if !s.IsGuest() || s.PrivateKey() != "" {
		t.Errorf("after Logout() got %q %q", s.Address(), s.PrivateKey())
	}
}

func TestFailedWriteRemovesSession(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	bad := newFakeConn()
	bad.failing = true
	s := bus.AddConnection(bad, "", "", "")
	good := newFakeConn()
	bus.AddConnection(good, "", "", "")

	bus.Broadcast(MotdEvent{Motd: "hello", Set: time.Now()})

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("failed session was not closed")
	}

	good.wait(t, 1)
	if bus.Count() != 1 {
		t.Errorf("Count() = %d, want 1", bus.Count())
	}
	if err := s.Send("late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() on removed session = %v", err)
	}

	bus.Remove(s)
}

func TestFullOutboxDrops(t *testing.T) {
	bus := NewBus()

	conn := newFakeConn()
	conn.mu.Lock()
	s := bus.AddConnection(conn, "", "", "")

	// The writer is stuck on the locked conn with at most one message in
	// hand, so the outbox fills up.
	delivered := 0
	for i := 0; i < outboxSize+10; i++ {
		delivered += bus.Broadcast(MotdEvent{Motd: "spam", Set: time.Now()})
	}
	if delivered >= outboxSize+10 {
		t.Errorf("delivered %d, expected some drops", delivered)
	}
	if err := s.Send("more"); !errors.Is(err, ErrOutboxFull) {
		t.Errorf("Send() = %v, want ErrOutboxFull", err)
	}

	conn.mu.Unlock()
	bus.Shutdown()
	<-s.Done()
}

func TestKeepalive(t *testing.T) {
	bus := NewBus()
	defer bus.Shutdown()

	conn := newFakeConn()
	bus.AddConnection(conn, "", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.RunKeepalive(ctx, 10*time.Millisecond)

	msgs := conn.wait(t, 1)
	if msgs[0]["type"] != "keepalive" {
		t.Errorf("type = %v, want keepalive", msgs[0]["type"])
	}
	if _, ok := msgs[0]["server_time"].(string); !ok {
		t.Errorf("server_time = %v", msgs[0]["server_time"])
	}
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	store, mr := cachetest.New(t)
	tokens := NewTokens(store, 30*time.Second)

	token, err := tokens.Obtain(ctx, "k8juvewcui", "a")
	if err != nil {
		t.Fatalf("Obtain() error: %v", err)
	}

	data, err := tokens.Use(ctx, token)
	if err != nil {
		t.Fatalf("Use() error: %v", err)
	}
	if data.Address != "k8juvewcui" || data.PrivateKey != "a" {
		t.Errorf("Use() = %+v", data)
	}

	if _, err := tokens.Use(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second Use() = %v, want ErrInvalidToken", err)
	}

	expiring, _ := tokens.Obtain(ctx, "", "")
	mr.FastForward(31 * time.Second)
	if _, err := tokens.Use(ctx, expiring); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Use() after expiry = %v, want ErrInvalidToken", err)
	}

	if _, err := tokens.Use(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Use(garbage) = %v, want ErrInvalidToken", err)
	}
}
