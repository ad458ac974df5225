// Package cachetest starts an in-process Redis for tests.
package cachetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/tmpim/krist/internal/cache"
)

// New returns a cache backed by a fresh miniredis server, closed with t.
func New(t testing.TB) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewFromClient(client, "krist:"), mr
}
