// Package events distributes ledger events to live websocket sessions
// according to each session's subscription level.
package events

import (
	"encoding/json"
	"time"

	"github.com/tmpim/krist/internal/models"
)

// Subscription levels a session may hold
const (
	LevelBlocks          = "blocks"
	LevelOwnBlocks       = "ownBlocks"
	LevelTransactions    = "transactions"
	LevelOwnTransactions = "ownTransactions"
	LevelNames           = "names"
	LevelOwnNames        = "ownNames"
	LevelMotd            = "motd"
)

// ValidLevels lists every subscription level in a stable order
var ValidLevels = []string{
	LevelBlocks,
	LevelOwnBlocks,
	LevelTransactions,
	LevelOwnTransactions,
	LevelNames,
	LevelOwnNames,
	LevelMotd,
}

// DefaultLevels is the subscription set of a new session
var DefaultLevels = []string{
	LevelOwnTransactions,
	LevelBlocks,
	LevelNames,
	LevelMotd,
}

// IsValidLevel reports whether name is a known subscription level
func IsValidLevel(name string) bool {
	for _, l := range ValidLevels {
		if l == name {
			return true
		}
	}
	return false
}

// Event is something that can be broadcast to sessions
type Event interface {
	// Category is the value of the envelope's "event" field
	Category() string
	// Levels returns the level that receives every event of this category
	// and the level that only receives events involving the session. An
	// empty own level means there is no per-address variant.
	Levels() (all, own string)
	// Involves reports whether address is party to the event
	Involves(address string) bool
	// Envelope is the message sent to sessions
	Envelope() map[string]interface{}
}

func envelope(category string, body interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":   "event",
		"event":  category,
		category: body,
	}
}

// payload prefers the payload exactly as it was received
func payload(typed interface{}, raw json.RawMessage) interface{} {
	if len(raw) > 0 {
		return raw
	}
	return typed
}

// BlockEvent is published after a block is accepted. Raw, when set, is
// the received payload and is sent in place of Block.
type BlockEvent struct {
	Block   models.BlockJSON
	NewWork uint64
	Raw     json.RawMessage
}

func (BlockEvent) Category() string { return "block" }

func (BlockEvent) Levels() (string, string) { return LevelBlocks, LevelOwnBlocks }

func (e BlockEvent) Involves(address string) bool { return e.Block.Address == address }

func (e BlockEvent) Envelope() map[string]interface{} {
	m := envelope(e.Category(), payload(e.Block, e.Raw))
	m["new_work"] = e.NewWork
	return m
}

// TransactionEvent is published after a transaction is recorded
type TransactionEvent struct {
	Transaction models.TransactionJSON
	Raw         json.RawMessage
}

func (TransactionEvent) Category() string { return "transaction" }

func (TransactionEvent) Levels() (string, string) { return LevelTransactions, LevelOwnTransactions }

func (e TransactionEvent) Involves(address string) bool { return e.Transaction.Involves(address) }

func (e TransactionEvent) Envelope() map[string]interface{} {
	return envelope(e.Category(), payload(e.Transaction, e.Raw))
}

// NameEvent is published when a name changes
type NameEvent struct {
	Name models.NameJSON
	Raw  json.RawMessage
}

func (NameEvent) Category() string { return "name" }

func (NameEvent) Levels() (string, string) { return LevelNames, LevelOwnNames }

func (e NameEvent) Involves(address string) bool { return e.Name.Owner == address }

func (e NameEvent) Envelope() map[string]interface{} {
	return envelope(e.Category(), payload(e.Name, e.Raw))
}

// MotdEvent is published when the message of the day changes
type MotdEvent struct {
	Motd string
	Set  time.Time
}

func (MotdEvent) Category() string { return "motd" }

func (MotdEvent) Levels() (string, string) { return LevelMotd, "" }

func (MotdEvent) Involves(string) bool { return false }

func (e MotdEvent) Envelope() map[string]interface{} {
	return envelope(e.Category(), map[string]interface{}{
		"motd":     e.Motd,
		"motd_set": models.FormatTime(e.Set),
	})
}
