package models

import (
	"time"
)

// Block represents a mined block. Blocks are never updated once created.
type Block struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Hash       string    `gorm:"type:char(64);not null;uniqueIndex:blocks_ux1;column:hash"`
	Address    string    `gorm:"type:char(10);not null;index:blocks_ix1;column:address"`
	Nonce      []byte    `gorm:"size:255;column:nonce"`
	Value      int64     `gorm:"not null;column:value"`
	Time       time.Time `gorm:"not null;index:blocks_ix2;column:time"`
	Difficulty uint64    `gorm:"not null;column:difficulty"`
}

// TableName specifies the table name for Block
func (Block) TableName() string {
	return "blocks"
}

// ShortHash returns the first 12 characters of the hash, which is the part
// of the previous block mixed into the next block's proof of work.
func (b *Block) ShortHash() string {
	if len(b.Hash) < 12 {
		return b.Hash
	}
	return b.Hash[:12]
}
