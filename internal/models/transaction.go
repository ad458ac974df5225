package models

import (
	"database/sql"
	"time"
)

// Transaction represents a ledger entry. A null From is a mining reward.
type Transaction struct {
	ID           int64          `gorm:"primaryKey;autoIncrement;column:id"`
	From         sql.NullString `gorm:"type:char(10);index:transactions_ix1;column:from"`
	To           string         `gorm:"type:char(10);not null;index:transactions_ix2;column:to"`
	Value        int64          `gorm:"not null;column:value"`
	Time         time.Time      `gorm:"not null;index:transactions_ix3;column:time"`
	Name         sql.NullString `gorm:"type:varchar(128);column:name"`
	Op           sql.NullString `gorm:"type:text;column:op"`
	SentMetaname sql.NullString `gorm:"type:varchar(32);column:sent_metaname"`
	SentName     sql.NullString `gorm:"type:varchar(64);column:sent_name"`
	RequestID    sql.NullString `gorm:"type:varchar(255);uniqueIndex:transactions_ux1;column:request_id"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// Transaction type names
const (
	TransactionTypeMined       = "mined"
	TransactionTypeTransfer    = "transfer"
	TransactionTypeNamePurch   = "name_purchase"
	TransactionTypeNameARecord = "name_a_record"
	TransactionTypeNameXfer    = "name_transfer"
)

// Type identifies the kind of transaction from its fields
func (t *Transaction) Type() string {
	switch {
	case !t.From.Valid || t.From.String == "":
		return TransactionTypeMined
	case t.Name.Valid && t.To == "name":
		return TransactionTypeNamePurch
	case t.Name.Valid && t.To == "a":
		return TransactionTypeNameARecord
	case t.Name.Valid:
		return TransactionTypeNameXfer
	default:
		return TransactionTypeTransfer
	}
}
