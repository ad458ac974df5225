package models

import (
	"database/sql"
	"time"
)

// Name represents a registered .kst name. Unpaid counts down by one per
// mined block until the name is fully paid.
type Name struct {
	ID            int64          `gorm:"primaryKey;autoIncrement;column:id"`
	Name          string         `gorm:"type:varchar(64);not null;uniqueIndex:names_ux1;column:name"`
	Owner         string         `gorm:"type:char(10);not null;index:names_ix1;column:owner"`
	OriginalOwner string         `gorm:"type:char(10);column:original_owner"`
	Registered    time.Time      `gorm:"not null;column:registered"`
	Updated       time.Time      `gorm:"column:updated"`
	Transferred   sql.NullTime   `gorm:"column:transferred"`
	A             sql.NullString `gorm:"type:varchar(255);column:a"`
	Unpaid        int64          `gorm:"not null;default:0;index:names_ix2;column:unpaid"`
}

// TableName specifies the table name for Name
func (Name) TableName() string {
	return "names"
}
