package models

import (
	"time"

	"github.com/tmpim/krist/internal/work"
)

// TimeFormat is the wire format of every timestamp
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in UTC using TimeFormat
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// AddressJSON is the public representation of an address
type AddressJSON struct {
	Address   string `json:"address"`
	Balance   int64  `json:"balance"`
	TotalIn   int64  `json:"totalin"`
	TotalOut  int64  `json:"totalout"`
	FirstSeen string `json:"firstseen"`
}

// JSON converts the address to its public representation
func (a *Address) JSON() AddressJSON {
	return AddressJSON{
		Address:   a.Address,
		Balance:   a.Balance,
		TotalIn:   a.TotalIn,
		TotalOut:  a.TotalOut,
		FirstSeen: FormatTime(a.FirstSeen),
	}
}

// BlockJSON is the public representation of a block
type BlockJSON struct {
	Height     int64  `json:"height"`
	Address    string `json:"address"`
	Hash       string `json:"hash"`
	ShortHash  string `json:"short_hash"`
	Value      int64  `json:"value"`
	Time       string `json:"time"`
	Difficulty uint64 `json:"difficulty"`
}

// JSON converts the block to its public representation. Historic blocks
// report the difficulty that was in force rather than the stored one.
func (b *Block) JSON() BlockJSON {
	difficulty := b.Difficulty
	if legacy, ok := work.LegacyWork(b.ID); ok {
		difficulty = legacy
	}

	return BlockJSON{
		Height:     b.ID,
		Address:    b.Address,
		Hash:       b.Hash,
		ShortHash:  b.ShortHash(),
		Value:      b.Value,
		Time:       FormatTime(b.Time),
		Difficulty: difficulty,
	}
}

// TransactionJSON is the public representation of a transaction
type TransactionJSON struct {
	ID           int64   `json:"id"`
	From         *string `json:"from"`
	To           string  `json:"to"`
	Value        int64   `json:"value"`
	Time         string  `json:"time"`
	Name         *string `json:"name"`
	Metadata     *string `json:"metadata"`
	SentMetaname *string `json:"sent_metaname"`
	SentName     *string `json:"sent_name"`
	Type         string  `json:"type"`
}

// JSON converts the transaction to its public representation
func (t *Transaction) JSON() TransactionJSON {
	return TransactionJSON{
		ID:           t.ID,
		From:         nullable(t.From.String, t.From.Valid),
		To:           t.To,
		Value:        t.Value,
		Time:         FormatTime(t.Time),
		Name:         nullable(t.Name.String, t.Name.Valid),
		Metadata:     nullable(t.Op.String, t.Op.Valid),
		SentMetaname: nullable(t.SentMetaname.String, t.SentMetaname.Valid),
		SentName:     nullable(t.SentName.String, t.SentName.Valid),
		Type:         t.Type(),
	}
}

// Involves reports whether address sent or received the transaction
func (t TransactionJSON) Involves(address string) bool {
	if t.To == address {
		return true
	}
	return t.From != nil && *t.From == address
}

// NameJSON is the public representation of a name
type NameJSON struct {
	Name          string  `json:"name"`
	Owner         string  `json:"owner"`
	OriginalOwner string  `json:"original_owner"`
	Registered    string  `json:"registered"`
	Updated       string  `json:"updated"`
	Transferred   *string `json:"transferred"`
	A             *string `json:"a"`
	Unpaid        int64   `json:"unpaid"`
}

// JSON converts the name to its public representation
func (n *Name) JSON() NameJSON {
	out := NameJSON{
		Name:          n.Name,
		Owner:         n.Owner,
		OriginalOwner: n.OriginalOwner,
		Registered:    FormatTime(n.Registered),
		Updated:       FormatTime(n.Updated),
		A:             nullable(n.A.String, n.A.Valid),
		Unpaid:        n.Unpaid,
	}
	if n.Transferred.Valid {
		ts := FormatTime(n.Transferred.Time)
		out.Transferred = &ts
	}
	return out
}

func nullable(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}
