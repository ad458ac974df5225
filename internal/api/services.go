package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/mining"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/internal/motd"
	"github.com/tmpim/krist/internal/switches"
	"github.com/tmpim/krist/internal/work"
)

// Services are the node components the HTTP and websocket layers call into
type Services struct {
	DB       *db.DB
	Cache    *cache.Cache
	Ledger   *ledger.Ledger
	Engine   *mining.Engine
	Work     *work.Tracker
	Switches *switches.Switches
	Motd     *motd.Service
	Bus      *events.Bus
	Tokens   *events.Tokens

	PublicURL    string
	NonceMaxSize int
}

// MotdBody describes the node: message of the day, chain head and mining
// constants. It is served on /motd and sent as the websocket hello.
func (s *Services) MotdBody(ctx context.Context) (gin.H, error) {
	m, err := s.Motd.Get(ctx)
	if err != nil {
		return nil, err
	}

	last, err := s.Engine.LastBlock(ctx)
	if err != nil {
		return nil, err
	}

	w, err := s.Work.GetWork(ctx)
	if err != nil {
		return nil, err
	}

	miningEnabled, err := s.Switches.MiningEnabled(ctx)
	if err != nil {
		return nil, err
	}

	var lastBlock interface{}
	if last != nil {
		lastBlock = last.JSON()
	}

	var motdSet interface{}
	if !m.Set.IsZero() {
		motdSet = models.FormatTime(m.Set)
	}

	policy := s.Work.Policy()

	return gin.H{
		"server_time":    models.FormatTime(time.Now()),
		"motd":           m.Text,
		"set":            motdSet,
		"motd_set":       motdSet,
		"public_url":     s.PublicURL,
		"mining_enabled": miningEnabled,
		"work":           w,
		"last_block":     lastBlock,
		"constants": gin.H{
			"wallet_version":    16,
			"nonce_max_size":    s.NonceMaxSize,
			"name_cost":         500,
			"min_work":          policy.MinWork,
			"max_work":          policy.MaxWork,
			"work_factor":       policy.WorkFactor,
			"seconds_per_block": policy.SecondsPerBlock,
		},
		"currency": gin.H{
			"address_prefix":  ledger.AddressPrefix,
			"name_suffix":     "kst",
			"currency_name":   "Krist",
			"currency_symbol": "KST",
		},
	}, nil
}

// SubmitBody is the response to a block submission that was not rejected
func SubmitBody(res *mining.Result) gin.H {
	if !res.Success {
		return gin.H{
			"success": false,
			"error":   res.Error,
			"work":    res.Work,
			"hash":    res.Hash,
			"input":   res.Input,
		}
	}
	return gin.H{
		"success": true,
		"work":    res.Work,
		"address": res.Address.JSON(),
		"block":   res.Block.JSON(),
	}
}
