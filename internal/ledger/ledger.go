// Package ledger owns address balances and the per-block bookkeeping that
// mining performs on addresses and names.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tmpim/krist/internal/db"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/pkg/logging"
)

// Ledger reads and mutates addresses and names. Methods that take a tx run
// inside it; a nil tx uses the base connection.
type Ledger struct {
	repo   *db.Repository
	logger *zap.Logger
}

// New creates a new ledger over database
func New(database *gorm.DB) *Ledger {
	return &Ledger{
		repo:   db.NewRepository(database),
		logger: logging.WithComponent("ledger"),
	}
}

func (l *Ledger) in(tx *gorm.DB) *db.Repository {
	if tx == nil {
		return l.repo
	}
	return l.repo.WithTx(tx)
}

// GetAddress returns an address, or nil if it has never been seen
func (l *Ledger) GetAddress(ctx context.Context, address string) (*models.Address, error) {
	addr, err := db.NewAddressRepository(l.repo).GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get address %s: %w", address, err)
	}
	return addr, nil
}

// ApplyMiningReward credits value to address, creating it first if needed
func (l *Ledger) ApplyMiningReward(ctx context.Context, tx *gorm.DB, address string, value int64) (*models.Address, error) {
	repo := db.NewAddressRepository(l.in(tx))

	addr, err := repo.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get address %s: %w", address, err)
	}

	if addr == nil {
		addr = &models.Address{
			Address:   address,
			Balance:   value,
			TotalIn:   value,
			FirstSeen: time.Now().UTC(),
		}
		if err := repo.Create(ctx, addr); err != nil {
			return nil, fmt.Errorf("failed to create address %s: %w", address, err)
		}
		l.logger.Debug("Created address", zap.String("address", address))
		return addr, nil
	}

	if _, err := repo.Credit(ctx, address, value); err != nil {
		return nil, fmt.Errorf("failed to credit address %s: %w", address, err)
	}
	addr.Balance += value
	addr.TotalIn += value

	return addr, nil
}

// DecrementUnpaidNames lowers the unpaid count of every unpaid name by one
func (l *Ledger) DecrementUnpaidNames(ctx context.Context, tx *gorm.DB) (int64, error) {
	rows, err := db.NewNameRepository(l.in(tx)).DecrementUnpaid(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement unpaid names: %w", err)
	}
	return rows, nil
}

// CountUnpaidNames returns the number of names with unpaid > 0
func (l *Ledger) CountUnpaidNames(ctx context.Context, tx *gorm.DB) (int64, error) {
	count, err := db.NewNameRepository(l.in(tx)).CountUnpaid(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unpaid names: %w", err)
	}
	return count, nil
}

// GetUnpaidStats summarises the names still being paid off
func (l *Ledger) GetUnpaidStats(ctx context.Context) (db.UnpaidStats, error) {
	stats, err := db.NewNameRepository(l.repo).GetUnpaidStats(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get unpaid stats: %w", err)
	}
	return stats, nil
}

// VerifyAddress derives the address of privatekey and checks ownership.
// An address seen for the first time is claimed by the key. The returned
// bool is false for a locked address or one claimed by another key.
func (l *Ledger) VerifyAddress(ctx context.Context, privatekey string) (*models.Address, bool, error) {
	address := MakeV2Address(privatekey, AddressPrefix)
	hash := PrivateKeyHash(address, privatekey)

	var (
		addr   *models.Address
		authed bool
	)

	err := l.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := db.NewAddressRepository(l.repo.WithTx(tx))

		existing, err := repo.GetByAddress(ctx, address)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			addr = &models.Address{
				Address:    address,
				FirstSeen:  time.Now().UTC(),
				PrivateKey: sql.NullString{String: hash, Valid: true},
			}
			authed = true
			return repo.Create(ctx, addr)

		case existing.Locked:
			addr = existing

		case !existing.PrivateKey.Valid:
			existing.PrivateKey = sql.NullString{String: hash, Valid: true}
			addr, authed = existing, true
			return repo.SetPrivateKey(ctx, address, hash)

		default:
			addr = existing
			authed = existing.PrivateKey.String == hash
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to verify address %s: %w", address, err)
	}

	if !authed {
		l.logger.Info("Address authentication failed", zap.String("address", address), zap.Bool("locked", addr.Locked))
	}

	return addr, authed, nil
}
