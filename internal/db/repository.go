package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tmpim/krist/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository whose queries run inside tx
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// DB returns the underlying handle
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// AddressRepository provides address-related database operations
type AddressRepository struct {
	*Repository
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(repo *Repository) *AddressRepository {
	return &AddressRepository{Repository: repo}
}

// GetByAddress retrieves an address row, or nil if it was never seen
func (r *AddressRepository) GetByAddress(ctx context.Context, address string) (*models.Address, error) {
	var addr models.Address
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &addr, nil
}

// Create creates a new address
func (r *AddressRepository) Create(ctx context.Context, addr *models.Address) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

// Credit adds value to balance and totalin in a single statement and
// returns the number of rows touched
func (r *AddressRepository) Credit(ctx context.Context, address string, value int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", value),
			"totalin": gorm.Expr("totalin + ?", value),
		})
	return res.RowsAffected, res.Error
}

// SetPrivateKey stores the ownership hash of an address
func (r *AddressRepository) SetPrivateKey(ctx context.Context, address, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("address = ?", address).
		Update("privatekey", hash).Error
}

// SumSupply returns the sums of totalin and totalout over every address
func (r *AddressRepository) SumSupply(ctx context.Context) (totalIn, totalOut int64, err error) {
	var row struct {
		TotalIn  int64
		TotalOut int64
	}
	err = r.db.WithContext(ctx).
		Model(&models.Address{}).
		Select("COALESCE(SUM(totalin), 0) AS total_in, COALESCE(SUM(totalout), 0) AS total_out").
		Scan(&row).Error
	return row.TotalIn, row.TotalOut, err
}

// BlockRepository provides block-related database operations
type BlockRepository struct {
	*Repository
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(repo *Repository) *BlockRepository {
	return &BlockRepository{Repository: repo}
}

// GetByHeight retrieves a block by height
func (r *BlockRepository) GetByHeight(ctx context.Context, height int64) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).First(&block, height).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}

// GetLast retrieves the highest block
func (r *BlockRepository) GetLast(ctx context.Context) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).Order("id DESC").First(&block).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}

// ExistsByHash reports whether a block with hash was already accepted
func (r *BlockRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).Where("hash = ?", hash).Count(&count).Error
	return count > 0, err
}

// Count returns the number of blocks
func (r *BlockRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).Count(&count).Error
	return count, err
}

// Create creates a new block
func (r *BlockRepository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

// TransactionRepository provides transaction-related database operations
type TransactionRepository struct {
	*Repository
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(repo *Repository) *TransactionRepository {
	return &TransactionRepository{Repository: repo}
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// Count returns the number of transactions
func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).Count(&count).Error
	return count, err
}

// NameRepository provides name-related database operations
type NameRepository struct {
	*Repository
}

// NewNameRepository creates a new name repository
func NewNameRepository(repo *Repository) *NameRepository {
	return &NameRepository{Repository: repo}
}

// GetByName retrieves a name, or nil if unregistered
func (r *NameRepository) GetByName(ctx context.Context, name string) (*models.Name, error) {
	var n models.Name
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

// Create creates a new name
func (r *NameRepository) Create(ctx context.Context, n *models.Name) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// CountUnpaid returns the number of names still being paid off
func (r *NameRepository) CountUnpaid(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Name{}).Where("unpaid > 0").Count(&count).Error
	return count, err
}

// DecrementUnpaid lowers unpaid by one on every name still being paid off
func (r *NameRepository) DecrementUnpaid(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Name{}).
		Where("unpaid > 0").
		UpdateColumn("unpaid", gorm.Expr("unpaid - ?", 1))
	return res.RowsAffected, res.Error
}

// UnpaidStats describes the decay pool
type UnpaidStats struct {
	// Next is the smallest outstanding unpaid count
	Next int64
	// NextCount is how many names share Next
	NextCount int64
	// Most is the largest outstanding unpaid count
	Most int64
}

// GetUnpaidStats returns the decay pool summary
func (r *NameRepository) GetUnpaidStats(ctx context.Context) (UnpaidStats, error) {
	var stats UnpaidStats

	var bounds struct {
		MinUnpaid int64
		MaxUnpaid int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Name{}).
		Where("unpaid > 0").
		Select("COALESCE(MIN(unpaid), 0) AS min_unpaid, COALESCE(MAX(unpaid), 0) AS max_unpaid").
		Scan(&bounds).Error; err != nil {
		return stats, err
	}
	stats.Next = bounds.MinUnpaid
	stats.Most = bounds.MaxUnpaid

	if stats.Next == 0 {
		return stats, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.Name{}).
		Where("unpaid = ?", stats.Next).
		Count(&stats.NextCount).Error
	return stats, err
}
