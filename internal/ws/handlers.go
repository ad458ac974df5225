package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/events"
	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/mining"
	"github.com/tmpim/krist/internal/models"
)

// registerMethods registers every message type
func (g *Gateway) registerMethods() {
	g.router.RegisterMethod("subscribe", g.subscribe)
	g.router.RegisterMethod("unsubscribe", g.unsubscribe)
	g.router.RegisterMethod("get_subscription_level", g.getSubscriptionLevel)
	g.router.RegisterMethod("get_valid_subscription_levels", g.getValidSubscriptionLevels)
	g.router.RegisterMethod("me", g.me)
	g.router.RegisterMethod("login", g.login)
	g.router.RegisterMethod("logout", g.logout)
	g.router.RegisterMethod("address", g.address)
	g.router.RegisterMethod("work", g.work)
	g.router.RegisterMethod("submit_block", g.submitBlock)
}

func decode(params json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(params, v); err != nil {
		return api.NewError(http.StatusBadRequest, "syntax_error", "Syntax error")
	}
	return nil
}

func levelParam(params json.RawMessage) (string, error) {
	var req struct {
		Event string `json:"event"`
	}
	if err := decode(params, &req); err != nil {
		return "", err
	}
	if req.Event == "" {
		return "", api.ErrMissingParameter("event")
	}
	if !events.IsValidLevel(req.Event) {
		return "", api.ErrInvalidParameter("event")
	}
	return req.Event, nil
}

func (g *Gateway) subscribe(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	level, err := levelParam(params)
	if err != nil {
		return nil, err
	}
	return gin.H{"subscription_level": g.services.Bus.Subscribe(s, level)}, nil
}

func (g *Gateway) unsubscribe(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	level, err := levelParam(params)
	if err != nil {
		return nil, err
	}
	return gin.H{"subscription_level": g.services.Bus.Unsubscribe(s, level)}, nil
}

func (g *Gateway) getSubscriptionLevel(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	return gin.H{"subscription_level": g.services.Bus.Levels(s)}, nil
}

func (g *Gateway) getValidSubscriptionLevels(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	return gin.H{"valid_subscription_levels": events.ValidLevels}, nil
}

// addressJSON returns the stored address, or an empty one if it has never
// been seen
func (g *Gateway) addressJSON(ctx context.Context, address string) (models.AddressJSON, error) {
	addr, err := g.services.Ledger.GetAddress(ctx, address)
	if err != nil {
		return models.AddressJSON{}, err
	}
	if addr == nil {
		return models.AddressJSON{Address: address}, nil
	}
	return addr.JSON(), nil
}

func (g *Gateway) me(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	if s.IsGuest() {
		return gin.H{"isGuest": true}, nil
	}

	addr, err := g.addressJSON(ctx, s.Address())
	if err != nil {
		return nil, err
	}
	return gin.H{"isGuest": false, "address": addr}, nil
}

func (g *Gateway) login(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	var req struct {
		PrivateKey string `json:"privatekey"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.PrivateKey == "" {
		return nil, api.ErrMissingParameter("privatekey")
	}

	addr, ok, err := g.services.Ledger.VerifyAddress(ctx, req.PrivateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, api.NewError(http.StatusUnauthorized, api.CodeAuthFailed, "Authentication failed")
	}

	g.services.Bus.Login(s, addr.Address, req.PrivateKey)
	return gin.H{"isGuest": false, "address": addr.JSON()}, nil
}

func (g *Gateway) logout(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	g.services.Bus.Logout(s)
	return gin.H{"isGuest": true}, nil
}

func (g *Gateway) address(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Address == "" {
		return nil, api.ErrMissingParameter("address")
	}
	if !ledger.ValidAddress(req.Address) {
		return nil, api.ErrInvalidParameter("address")
	}

	addr, err := g.services.Ledger.GetAddress(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return nil, api.ErrNotFound("address")
	}
	return gin.H{"address": addr.JSON()}, nil
}

func (g *Gateway) work(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	w, err := g.services.Work.GetWork(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"work": w}, nil
}

func (g *Gateway) submitBlock(ctx context.Context, s *events.Session, params json.RawMessage) (gin.H, error) {
	var req struct {
		Address string       `json:"address"`
		Nonce   mining.Nonce `json:"nonce"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Address == "" && !s.IsGuest() {
		req.Address = s.Address()
	}

	res, err := g.services.Engine.SubmitBlock(ctx, req.Address, req.Nonce)
	if err != nil {
		return nil, err
	}
	return api.SubmitBody(res), nil
}
