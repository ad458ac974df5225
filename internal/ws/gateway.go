// Package ws serves the websocket gateway: token issue, connection
// upgrade and the per-session message loop.
package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/pkg/logging"
)

const (
	maxMessageSize = 64 * 1024
	writeTimeout   = 10 * time.Second
)

// conn adapts a websocket connection to events.Conn. Only the session
// writer calls Write.
type conn struct {
	ws *websocket.Conn
}

func (c *conn) Write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) Close() error {
	return c.ws.Close()
}

// Gateway issues tokens and serves websocket sessions
type Gateway struct {
	services *api.Services
	router   *Router
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGateway creates a new gateway
func NewGateway(services *api.Services) *Gateway {
	g := &Gateway{
		services: services,
		router:   NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.WithComponent("ws-gateway"),
	}

	g.registerMethods()

	return g
}

// SetupRoutes registers the gateway endpoints
func (g *Gateway) SetupRoutes(r gin.IRoutes) {
	r.POST("/ws/start", g.start)
	r.GET("/ws/gateway/:token", g.connect)
}

// start issues a token, logged in when a valid privatekey is supplied
func (g *Gateway) start(c *gin.Context) {
	var req struct {
		PrivateKey string `json:"privatekey" form:"privatekey"`
	}
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Abort(c, api.ErrInvalidParameter("privatekey"))
		return
	}

	ctx := c.Request.Context()
	address := ""
	if req.PrivateKey != "" {
		addr, ok, err := g.services.Ledger.VerifyAddress(ctx, req.PrivateKey)
		if err != nil {
			api.Abort(c, err)
			return
		}
		if !ok {
			api.Abort(c, api.NewError(http.StatusUnauthorized, api.CodeAuthFailed, "Authentication failed"))
			return
		}
		address = addr.Address
	}

	token, err := g.services.Tokens.Obtain(ctx, address, req.PrivateKey)
	if err != nil {
		api.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"url":     g.gatewayURL(c, token),
		"expires": int(g.services.Tokens.TTL().Seconds()),
	})
}

func (g *Gateway) gatewayURL(c *gin.Context, token string) string {
	scheme := "ws"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}

	host := g.services.PublicURL
	if host == "" {
		host = c.Request.Host
	}
	return scheme + "://" + host + "/ws/gateway/" + token
}

// connect consumes the token and upgrades the connection
func (g *Gateway) connect(c *gin.Context) {
	token := c.Param("token")

	data, err := g.services.Tokens.Use(c.Request.Context(), token)
	if err != nil {
		api.Abort(c, err)
		return
	}

	wsConn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	g.serve(c.Request.Context(), wsConn, token, data)
}

func (g *Gateway) serve(ctx context.Context, wsConn *websocket.Conn, token string, data *events.TokenData) {
	wsConn.SetReadLimit(maxMessageSize)

	session := g.services.Bus.AddConnection(&conn{ws: wsConn}, token, data.Address, data.PrivateKey)
	defer session.Close()

	g.logger.Debug("Session started", zap.String("session", session.ID), zap.String("address", session.Address()))

	hello, err := g.services.MotdBody(ctx)
	if err != nil {
		g.logger.Error("Failed to build hello", zap.Error(err))
		hello = map[string]interface{}{}
	}
	hello["ok"] = true
	hello["type"] = "hello"
	if err := session.Send(hello); err != nil {
		return
	}

	for {
		_, msg, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("Session read failed", zap.String("session", session.ID), zap.Error(err))
			}
			return
		}

		reply := g.router.Handle(ctx, session, msg)
		if err := session.Send(reply); err != nil {
			g.logger.Debug("Dropped reply", zap.String("session", session.ID), zap.Error(err))
			if errors.Is(err, events.ErrSessionClosed) {
				return
			}
		}
	}
}
