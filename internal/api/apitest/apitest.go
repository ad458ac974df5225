// Package apitest wires a complete node over in-memory stores for tests.
package apitest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/cache/cachetest"
	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/db/dbtest"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/mining"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/internal/motd"
	"github.com/tmpim/krist/internal/switches"
	"github.com/tmpim/krist/internal/work"
)

// GenesisHash is the hash of the block every test chain starts from
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// New returns services over a fresh chain holding only the genesis block,
// with mining enabled and work at its maximum
func New(t testing.TB) (*api.Services, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	gdb := dbtest.New(t)
	store, mr := cachetest.New(t)

	if err := gdb.Create(&models.Block{
		Hash:    GenesisHash,
		Address: "0000000000",
		Value:   50,
		Time:    time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("failed to create genesis block: %v", err)
	}

	tracker := work.NewTracker(store, work.DefaultPolicy())
	if err := tracker.Init(ctx); err != nil {
		t.Fatalf("failed to init work: %v", err)
	}

	sw := switches.New(store)
	if err := sw.Set(ctx, switches.Mining, true); err != nil {
		t.Fatalf("failed to enable mining: %v", err)
	}

	bus := events.NewBus()
	t.Cleanup(bus.Shutdown)

	l := ledger.New(gdb)

	return &api.Services{
		DB:           &db.DB{DB: gdb},
		Cache:        store,
		Ledger:       l,
		Engine:       mining.NewEngine(gdb, l, tracker, sw, bus, mining.DefaultNonceMaxSize),
		Work:         tracker,
		Switches:     sw,
		Motd:         motd.New(store, bus),
		Bus:          bus,
		Tokens:       events.NewTokens(store, 30*time.Second),
		NonceMaxSize: mining.DefaultNonceMaxSize,
	}, mr
}
