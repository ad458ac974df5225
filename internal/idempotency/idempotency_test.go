package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/cache/cachetest"
)

func newEngine(t *testing.T, store *cache.Cache, opts Options, status *int) (*gin.Engine, *int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var calls int32
	engine := gin.New()
	engine.POST("/submit", Middleware(store, opts), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(*status, gin.H{"call": n})
	})
	return engine, &calls
}

func do(engine *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

var defaultOpts = Options{TTL: time.Minute, WaitTimeout: 100 * time.Millisecond}

func TestWithoutKey(t *testing.T) {
	store, _ := cachetest.New(t)
	status := http.StatusOK
	engine, calls := newEngine(t, store, defaultOpts, &status)

	for i := 0; i < 2; i++ {
		w := do(engine, "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, StatusNone, w.Header().Get(HeaderStatus))
	}
	require.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestReplay(t *testing.T) {
	store, _ := cachetest.New(t)
	status := http.StatusForbidden
	engine, calls := newEngine(t, store, defaultOpts, &status)

	first := do(engine, "abc")
	require.Equal(t, http.StatusForbidden, first.Code)
	require.Equal(t, StatusMiss, first.Header().Get(HeaderStatus))

	second := do(engine, "abc")
	require.Equal(t, http.StatusForbidden, second.Code)
	require.Equal(t, StatusHit, second.Header().Get(HeaderStatus))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Contains(t, second.Header().Get("Content-Type"), "application/json")

	other := do(engine, "def")
	require.Equal(t, StatusMiss, other.Header().Get(HeaderStatus))
	require.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestServerErrorsAreNotStored(t *testing.T) {
	store, _ := cachetest.New(t)
	status := http.StatusInternalServerError
	engine, calls := newEngine(t, store, defaultOpts, &status)

	require.Equal(t, http.StatusInternalServerError, do(engine, "abc").Code)

	status = http.StatusOK
	w := do(engine, "abc")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, StatusMiss, w.Header().Get(HeaderStatus))
	require.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestPendingConflict(t *testing.T) {
	store, _ := cachetest.New(t)
	status := http.StatusOK
	engine, calls := newEngine(t, store, defaultOpts, &status)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storeKey(http.MethodPost, "/submit", "abc"), pendingMarker, time.Minute))

	start := time.Now()
	w := do(engine, "abc")
	require.Equal(t, http.StatusConflict, w.Code)
	require.GreaterOrEqual(t, time.Since(start), defaultOpts.WaitTimeout)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "idempotency_conflict", body["error"])
	require.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestDuplicateWaitsForOwner(t *testing.T) {
	store, _ := cachetest.New(t)
	status := http.StatusOK
	opts := Options{TTL: time.Minute, WaitTimeout: 2 * time.Second}
	engine, calls := newEngine(t, store, opts, &status)

	ctx := context.Background()
	key := storeKey(http.MethodPost, "/submit", "abc")
	require.NoError(t, store.Set(ctx, key, pendingMarker, time.Minute))

	go func() {
		time.Sleep(50 * time.Millisecond)
		data, _ := json.Marshal(response{
			Status:      http.StatusCreated,
			ContentType: "application/json",
			Body:        []byte(`{"done":true}`),
		})
		_ = store.Set(ctx, key, string(data), time.Minute)
	}()

	w := do(engine, "abc")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, StatusHit, w.Header().Get(HeaderStatus))
	require.JSONEq(t, `{"done":true}`, w.Body.String())
	require.Equal(t, int32(0), atomic.LoadInt32(calls))
}
