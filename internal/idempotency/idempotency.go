// Package idempotency replays the stored response of a request that is
// retried with the same Idempotency-Key header.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/cache"
	"github.com/tmpim/krist/internal/clock"
	"github.com/tmpim/krist/internal/metrics"
	"github.com/tmpim/krist/pkg/logging"
)

const (
	// HeaderKey carries the client supplied key
	HeaderKey = "Idempotency-Key"
	// HeaderStatus reports how the request was served
	HeaderStatus = "X-Idempotency-Status"

	StatusHit  = "cache-hit"
	StatusMiss = "cache-miss"
	StatusNone = "not-idempotent"

	keyPrefix     = "idempotency:"
	pendingMarker = "pending"
	maxKeyLength  = 255
)

var errConflict = errors.New("idempotency_conflict")

// Store is the subset of the fast store used for responses
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Options configures the middleware
type Options struct {
	// TTL is how long a response is kept for replay
	TTL time.Duration
	// WaitTimeout bounds how long a duplicate waits for the first request
	WaitTimeout time.Duration
}

type response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// recorder copies everything the handler writes
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

func storeKey(method, path, key string) string {
	return keyPrefix + method + ":" + path + ":" + key
}

// Middleware returns the gin middleware
func Middleware(store Store, opts Options) gin.HandlerFunc {
	logger := logging.WithComponent("idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.Header(HeaderStatus, StatusNone)
			metrics.ObserveIdempotency(StatusNone)
			c.Next()
			return
		}
		if len(key) > maxKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":        false,
				"error":     "invalid_parameter",
				"message":   "Invalid parameter " + HeaderKey,
				"parameter": HeaderKey,
			})
			return
		}

		ctx := c.Request.Context()
		k := storeKey(c.Request.Method, c.FullPath(), key)

		owner, err := store.SetNX(ctx, k, pendingMarker, opts.TTL)
		if err != nil {
			// Serve the request unprotected rather than fail it.
			logger.Error("Failed to claim idempotency key", zap.Error(err))
			c.Header(HeaderStatus, StatusNone)
			metrics.ObserveIdempotency(StatusNone)
			c.Next()
			return
		}

		if owner {
			c.Header(HeaderStatus, StatusMiss)
			metrics.ObserveIdempotency(StatusMiss)

			rec := &recorder{ResponseWriter: c.Writer}
			c.Writer = rec
			c.Next()

			saveCtx := context.WithoutCancel(ctx)
			status := rec.Status()
			if status >= http.StatusInternalServerError {
				if err := store.Delete(saveCtx, k); err != nil {
					logger.Error("Failed to release idempotency key", zap.Error(err))
				}
				return
			}

			data, err := json.Marshal(response{
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err == nil {
				err = store.Set(saveCtx, k, string(data), opts.TTL)
			}
			if err != nil {
				logger.Error("Failed to store idempotent response", zap.Error(err))
			}
			return
		}

		resp, err := wait(ctx, store, k, opts.WaitTimeout)
		if err != nil {
			if !errors.Is(err, errConflict) {
				logger.Error("Failed to read idempotent response", zap.Error(err))
			}
			c.Header(HeaderStatus, StatusNone)
			metrics.ObserveIdempotency(StatusNone)
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      false,
				"error":   errConflict.Error(),
				"message": "A request with this idempotency key is still in progress",
			})
			return
		}

		c.Header(HeaderStatus, StatusHit)
		metrics.ObserveIdempotency(StatusHit)
		c.Data(resp.Status, resp.ContentType, resp.Body)
		c.Abort()
	}
}

// wait polls until the owner stores its response. A key that vanishes or
// stays pending past timeout is a conflict.
func wait(ctx context.Context, store Store, key string, timeout time.Duration) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := clock.Backoff{Initial: 10 * time.Millisecond, Max: 250 * time.Millisecond}
	for {
		val, err := store.Get(ctx, key)
		switch {
		case errors.Is(err, cache.ErrMiss):
			return nil, errConflict
		case errors.Is(err, context.DeadlineExceeded):
			return nil, errConflict
		case err != nil:
			return nil, err
		}

		if val != pendingMarker {
			var resp response
			if err := json.Unmarshal([]byte(val), &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		}

		if err := clock.SleepWithContext(ctx, backoff.Next()); err != nil {
			return nil, errConflict
		}
	}
}
