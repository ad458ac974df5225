package models

import (
	"database/sql"
	"time"
)

// Address represents a Krist wallet
type Address struct {
	ID         int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Address    string         `gorm:"type:char(10);not null;uniqueIndex:addresses_ux1;column:address"`
	Balance    int64          `gorm:"not null;default:0;column:balance"`
	TotalIn    int64          `gorm:"not null;default:0;column:totalin"`
	TotalOut   int64          `gorm:"not null;default:0;column:totalout"`
	FirstSeen  time.Time      `gorm:"not null;column:firstseen"`
	PrivateKey sql.NullString `gorm:"type:char(64);column:privatekey"`
	Alert      sql.NullString `gorm:"type:varchar(1024);column:alert"`
	Locked     bool           `gorm:"not null;default:false;column:locked"`
}

// TableName specifies the table name for Address
func (Address) TableName() string {
	return "addresses"
}
