// Package mining validates proof-of-work submissions and applies accepted
// blocks to the ledger.
package mining

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/metrics"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/internal/work"
	"github.com/tmpim/krist/pkg/logging"
	"github.com/tmpim/krist/pkg/telemetry"
)

const (
	// DefaultNonceMaxSize is the longest nonce accepted, in bytes
	DefaultNonceMaxSize = 24

	// genesisShortHash stands in for the previous hash on an empty chain
	genesisShortHash = "000000000000"

	baseValue         = 25
	reducedBaseValue  = 1
	reducedBaseHeight = 222222
)

// BaseValue is the reward of the block at height before name payouts
func BaseValue(height int64) int64 {
	if height >= reducedBaseHeight {
		return reducedBaseValue
	}
	return baseValue
}

// Switches tells the engine whether mining is open
type Switches interface {
	MiningEnabled(ctx context.Context) (bool, error)
}

// Publisher receives the events of accepted blocks
type Publisher interface {
	Broadcast(ev events.Event) int
}

// Result is the outcome of a submission that was not rejected
type Result struct {
	Success bool
	// Error is solution_incorrect when the hash did not meet the work
	Error string
	// Hash and Input are set for an incorrect solution
	Hash  string
	Input string

	Work        uint64
	Address     *models.Address
	Block       *models.Block
	Transaction *models.Transaction
}

// Engine accepts block submissions one at a time
type Engine struct {
	db           *gorm.DB
	ledger       *ledger.Ledger
	work         *work.Tracker
	switches     Switches
	publisher    Publisher
	nonceMaxSize int
	logger       *zap.Logger

	mu     sync.Mutex
	now    func() time.Time
	commit func(tx *gorm.DB) error
}

// NewEngine creates a new block submission engine
func NewEngine(database *gorm.DB, l *ledger.Ledger, tracker *work.Tracker, sw Switches, pub Publisher, nonceMaxSize int) *Engine {
	if nonceMaxSize <= 0 {
		nonceMaxSize = DefaultNonceMaxSize
	}
	return &Engine{
		db:           database,
		ledger:       l,
		work:         tracker,
		switches:     sw,
		publisher:    pub,
		nonceMaxSize: nonceMaxSize,
		logger:       logging.WithComponent("mining"),
		now:          func() time.Time { return time.Now().UTC() },
		commit:       func(tx *gorm.DB) error { return tx.Commit().Error },
	}
}

// LastBlock returns the highest block, or nil on an empty chain
func (e *Engine) LastBlock(ctx context.Context) (*models.Block, error) {
	block, err := db.NewBlockRepository(db.NewRepository(e.db)).GetLast(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last block: %w", err)
	}
	return block, nil
}

// BlockValue returns the base value and the full value of the next block
func (e *Engine) BlockValue(ctx context.Context) (base, value int64, err error) {
	last, err := e.LastBlock(ctx)
	if err != nil {
		return 0, 0, err
	}
	unpaid, err := e.ledger.CountUnpaidNames(ctx, nil)
	if err != nil {
		return 0, 0, err
	}

	base = BaseValue(nextHeight(last))
	return base, base + unpaid, nil
}

func nextHeight(last *models.Block) int64 {
	if last == nil {
		return 1
	}
	return last.ID + 1
}

func shortHash(last *models.Block) string {
	if last == nil {
		return genesisShortHash
	}
	return last.ShortHash()
}

// SubmitBlock checks a proof of work by address and, if it meets the
// current work, records the block and pays the miner. Rejections are
// returned as *RejectionError; an unsolved hash is a Result with
// Success false.
func (e *Engine) SubmitBlock(ctx context.Context, address string, nonce Nonce) (res *Result, err error) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "mining.SubmitBlock")
	defer func() {
		outcome := outcomeOf(res, err)
		metrics.ObserveSubmission(outcome, started)
		telemetry.EndSpan(span, infraError(err),
			attribute.String("krist.address", address),
			attribute.String("krist.outcome", outcome))
	}()

	enabled, err := e.switches.MiningEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, reject(CodeMiningDisabled)
	}
	if !ledger.ValidAddress(address) {
		return nil, reject(CodeInvalidAddress)
	}
	if len(nonce) < 1 || len(nonce) > e.nonceMaxSize {
		return nil, reject(CodeInvalidNonce)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	last, err := e.LastBlock(ctx)
	if err != nil {
		return nil, err
	}
	currentWork, err := e.work.GetWork(ctx)
	if err != nil {
		return nil, err
	}

	input := address + shortHash(last) + string(nonce)
	hash := ledger.Sha256Hex(input)

	if !Solves(hash, currentWork) {
		return &Result{
			Success: false,
			Error:   CodeSolutionIncorrect,
			Hash:    hash,
			Input:   input,
			Work:    currentWork,
		}, nil
	}

	now := e.now()
	var since time.Duration
	if last != nil {
		since = now.Sub(last.Time)
	}
	newWork := e.work.Policy().Next(currentWork, since)

	block := &models.Block{
		Hash:       hash,
		Address:    address,
		Nonce:      []byte(nonce),
		Time:       now,
		Difficulty: currentWork,
	}
	minted := &models.Transaction{
		To:   address,
		Time: now,
	}

	var addr *models.Address

	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	addr, err = e.applyBlock(ctx, tx, last, block, minted, newWork)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := e.commit(tx); err != nil {
		if restoreErr := e.work.SetWork(context.WithoutCancel(ctx), currentWork); restoreErr != nil {
			e.logger.Error("Failed to restore work after rollback", zap.Error(restoreErr))
		}
		return nil, fmt.Errorf("failed to commit block: %w", err)
	}

	e.logger.Info("Block accepted",
		zap.Int64("height", block.ID),
		zap.String("address", address),
		zap.String("hash", hash),
		zap.Int64("value", block.Value),
		zap.Uint64("work", currentWork),
		zap.Uint64("new_work", newWork))

	e.publish(block, minted, newWork)

	return &Result{
		Success:     true,
		Work:        newWork,
		Address:     addr,
		Block:       block,
		Transaction: minted,
	}, nil
}

// applyBlock performs every ledger mutation of an accepted block inside tx.
// The new work is stored last so nothing else can fail after it.
func (e *Engine) applyBlock(ctx context.Context, tx *gorm.DB, last, block *models.Block, minted *models.Transaction, newWork uint64) (*models.Address, error) {
	repo := db.NewRepository(tx)
	blocks := db.NewBlockRepository(repo)

	exists, err := blocks.ExistsByHash(ctx, block.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check block hash: %w", err)
	}
	if exists {
		return nil, reject(CodeSolutionDuplicate)
	}

	unpaid, err := e.ledger.CountUnpaidNames(ctx, tx)
	if err != nil {
		return nil, err
	}
	block.Value = BaseValue(nextHeight(last)) + unpaid
	minted.Value = block.Value

	if err := blocks.Create(ctx, block); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, reject(CodeSolutionDuplicate)
		}
		e.logger.Warn("Block insert failed", zap.String("hash", block.Hash), zap.Error(err))
		return nil, reject(CodeSolutionRejected)
	}

	minted.From = sql.NullString{}
	if err := db.NewTransactionRepository(repo).Create(ctx, minted); err != nil {
		return nil, fmt.Errorf("failed to insert mined transaction: %w", err)
	}

	addr, err := e.ledger.ApplyMiningReward(ctx, tx, block.Address, block.Value)
	if err != nil {
		return nil, err
	}

	if _, err := e.ledger.DecrementUnpaidNames(ctx, tx); err != nil {
		return nil, err
	}

	if err := e.work.SetWork(ctx, newWork); err != nil {
		return nil, err
	}

	return addr, nil
}

func (e *Engine) publish(block *models.Block, minted *models.Transaction, newWork uint64) {
	if e.publisher == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event publish panicked", zap.Any("panic", r), zap.Int64("height", block.ID))
		}
	}()

	n := e.publisher.Broadcast(events.BlockEvent{Block: block.JSON(), NewWork: newWork})
	e.publisher.Broadcast(events.TransactionEvent{Transaction: minted.JSON()})
	e.logger.Debug("Published block", zap.Int64("height", block.ID), zap.Int("recipients", n))
}

// Solves reports whether the first 12 hex characters of hash, read as a
// number, do not exceed work
func Solves(hash string, work uint64) bool {
	if len(hash) < 12 {
		return false
	}
	v, err := strconv.ParseUint(hash[:12], 16, 64)
	if err != nil {
		return false
	}
	return v <= work
}

func outcomeOf(res *Result, err error) string {
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		return rej.Code
	case err != nil:
		return "error"
	case res != nil && !res.Success:
		return res.Error
	default:
		return "success"
	}
}

func infraError(err error) error {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return nil
	}
	return err
}
