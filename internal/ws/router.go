package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/pkg/logging"
	"github.com/tmpim/krist/pkg/telemetry"
)

// Message is the envelope of a client request
type Message struct {
	ID   interface{} `json:"id"`
	Type string      `json:"type"`
}

// MessageHandler handles one message type. The returned fields are merged
// into the response envelope.
type MessageHandler func(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error)

// Router dispatches client messages by type
type Router struct {
	methods map[string]MessageHandler
	logger  *zap.Logger
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		methods: make(map[string]MessageHandler),
		logger:  logging.WithComponent("ws-router"),
	}
}

// RegisterMethod registers a handler for a message type
func (r *Router) RegisterMethod(msgType string, handler MessageHandler) {
	r.methods[msgType] = handler
}

// Handle decodes one message and returns the reply to send
func (r *Router) Handle(ctx context.Context, s *events.Session, data []byte) gin.H {
	ctx, span := telemetry.StartSpan(ctx, "ws.handle")
	defer span.End()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply(nil, api.NewError(http.StatusBadRequest, "syntax_error", "Syntax error"))
	}

	if msg.Type == "" {
		return errorReply(msg.ID, api.ErrMissingParameter("type"))
	}

	handler, ok := r.methods[msg.Type]
	if !ok {
		r.logger.Debug("Unknown message type", zap.String("type", msg.Type), zap.String("session", s.ID))
		return errorReply(msg.ID, api.ErrInvalidParameter("type"))
	}

	result, err := handler(ctx, s, data)
	if err != nil {
		return errorReply(msg.ID, api.FromError(err))
	}

	reply := gin.H{
		"ok":            true,
		"id":            msg.ID,
		"type":          "response",
		"responding_to": msg.Type,
	}
	for k, v := range result {
		reply[k] = v
	}
	return reply
}

func errorReply(id interface{}, err *api.Error) gin.H {
	reply := err.Body()
	reply["id"] = id
	reply["type"] = "error"
	return reply
}
