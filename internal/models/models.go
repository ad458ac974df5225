// Package models holds the GORM entities of the ledger and their public
// JSON representations.
package models

// All returns every entity managed by the node, in migration order
func All() []interface{} {
	return []interface{}{
		&Address{},
		&Block{},
		&Transaction{},
		&Name{},
	}
}
