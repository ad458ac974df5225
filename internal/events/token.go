package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmpim/krist/internal/cache"
)

const tokenKeyPrefix = "ws-token:"

// ErrInvalidToken is returned for an unknown, expired or reused token
var ErrInvalidToken = errors.New("invalid_websocket_token")

// TokenStore is the subset of the fast store used for tokens
type TokenStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error)
}

// TokenData is what a token grants when it is used
type TokenData struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privatekey,omitempty"`
}

// Tokens issues single-use websocket tokens
type Tokens struct {
	store TokenStore
	ttl   time.Duration
}

// NewTokens creates a token issuer whose tokens live for ttl
func NewTokens(store TokenStore, ttl time.Duration) *Tokens {
	return &Tokens{store: store, ttl: ttl}
}

// TTL is how long an unused token stays valid
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Obtain issues a token for address. A guest token has an empty address.
func (t *Tokens) Obtain(ctx context.Context, address, privatekey string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	data, err := json.Marshal(TokenData{Address: address, PrivateKey: privatekey})
	if err != nil {
		return "", err
	}

	if err := t.store.Set(ctx, tokenKeyPrefix+id.String(), string(data), t.ttl); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return id.String(), nil
}

// Use consumes token. A token can be used once.
func (t *Tokens) Use(ctx context.Context, token string) (*TokenData, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrInvalidToken
	}

	raw, err := t.store.Take(ctx, tokenKeyPrefix+token)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to use token: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("corrupt token data: %w", err)
	}
	return &data, nil
}
