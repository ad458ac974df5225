// Package bridge lets other processes on the host publish events to the
// node's sessions and flip its runtime state. The server listens on the
// loopback interface only.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/metrics"
	"github.com/tmpim/krist/internal/models"
	"github.com/tmpim/krist/internal/motd"
	"github.com/tmpim/krist/internal/switches"
	"github.com/tmpim/krist/pkg/logging"
	"github.com/tmpim/krist/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Publisher receives bridged events
type Publisher interface {
	Broadcast(ev events.Event) int
}

// Server is the loopback control server
type Server struct {
	publisher Publisher
	motd      *motd.Service
	switches  *switches.Switches
	logger    *zap.Logger
}

// NewServer creates a new bridge server
func NewServer(publisher Publisher, m *motd.Service, sw *switches.Switches) *Server {
	return &Server{
		publisher: publisher,
		motd:      m,
		switches:  sw,
		logger:    logging.WithComponent("bridge"),
	}
}

// Handler returns the gin engine serving the bridge routes
func (s *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	s.SetupRoutes(engine)
	return engine
}

// SetupRoutes registers the bridge routes
func (s *Server) SetupRoutes(r gin.IRoutes) {
	r.POST("/publish", s.publish)
	r.POST("/motd", s.setMotd)
	r.POST("/switches/:name", s.setSwitch)
}

// DecodeEvent turns a publish body into a typed event. The payload must be
// a non-empty object and is kept as received so it is forwarded unchanged.
func DecodeEvent(body map[string]json.RawMessage) (events.Event, error) {
	var category string
	if raw, ok := body["event"]; ok {
		if err := json.Unmarshal(raw, &category); err != nil {
			return nil, api.ErrInvalidParameter("event")
		}
	}

	payload := func(v interface{}) (json.RawMessage, error) {
		raw := body[category]
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
			return nil, api.ErrInvalidParameter(category)
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, api.ErrInvalidParameter(category)
		}
		return raw, nil
	}

	var err error
	switch category {
	case "block":
		ev := events.BlockEvent{}
		if ev.Raw, err = payload(&ev.Block); err != nil {
			return nil, err
		}
		raw, ok := body["new_work"]
		if !ok {
			return nil, api.ErrMissingParameter("new_work")
		}
		if err := json.Unmarshal(raw, &ev.NewWork); err != nil || ev.NewWork == 0 {
			return nil, api.ErrInvalidParameter("new_work")
		}
		return ev, nil

	case "transaction":
		ev := events.TransactionEvent{}
		if ev.Raw, err = payload(&ev.Transaction); err != nil {
			return nil, err
		}
		return ev, nil

	case "name":
		ev := events.NameEvent{}
		if ev.Raw, err = payload(&ev.Name); err != nil {
			return nil, err
		}
		return ev, nil

	default:
		return nil, api.ErrInvalidParameter("event")
	}
}

func (s *Server) publish(c *gin.Context) {
	_, span := telemetry.StartSpan(c.Request.Context(), "bridge.publish")

	var (
		body     map[string]json.RawMessage
		category string
		err      error
	)
	defer func() {
		metrics.ObserveBridgePublish(category, err)
		telemetry.EndSpan(span, err, attribute.String("krist.event", category))
	}()

	if err = c.ShouldBindJSON(&body); err != nil {
		api.Abort(c, api.ErrInvalidParameter("event"))
		return
	}

	var ev events.Event
	if ev, err = DecodeEvent(body); err != nil {
		api.Abort(c, err)
		return
	}
	category = ev.Category()

	recipients := s.publisher.Broadcast(ev)
	s.logger.Debug("Bridged event", zap.String("event", category), zap.Int("recipients", recipients))

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"recipients": recipients,
	})
}

func (s *Server) setMotd(c *gin.Context) {
	var req struct {
		Motd *string `json:"motd"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Abort(c, api.ErrInvalidParameter("motd"))
		return
	}
	if req.Motd == nil {
		api.Abort(c, api.ErrMissingParameter("motd"))
		return
	}

	m, err := s.motd.Set(c.Request.Context(), *req.Motd)
	if err != nil {
		api.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"motd":     m.Text,
		"motd_set": models.FormatTime(m.Set),
	})
}

func (s *Server) setSwitch(c *gin.Context) {
	name := c.Param("name")

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Abort(c, api.ErrInvalidParameter("enabled"))
		return
	}
	if req.Enabled == nil {
		api.Abort(c, api.ErrMissingParameter("enabled"))
		return
	}

	if err := s.switches.Set(c.Request.Context(), name, *req.Enabled); err != nil {
		if errors.Is(err, switches.ErrUnknownSwitch) {
			err = api.ErrInvalidParameter("name")
		}
		api.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"name":    name,
		"enabled": *req.Enabled,
	})
}

// ListenAndServe serves the bridge on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting bridge server", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
