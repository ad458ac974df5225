package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tmpim/krist/internal/ledger"
	"github.com/tmpim/krist/internal/mining"
)

func (r *Router) motd(c *gin.Context) {
	body, err := r.services.MotdBody(c.Request.Context())
	if err != nil {
		Abort(c, err)
		return
	}
	body["ok"] = true
	c.JSON(http.StatusOK, body)
}

func (r *Router) work(c *gin.Context) {
	w, err := r.services.Work.GetWork(c.Request.Context())
	if err != nil {
		Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "work": w})
}

// workDay returns the sampled work history, oldest first
func (r *Router) workDay(c *gin.Context) {
	samples, err := r.services.Work.GetWorkOverTime(c.Request.Context())
	if err != nil {
		Abort(c, err)
		return
	}
	if samples == nil {
		samples = []uint64{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "work": samples})
}

func (r *Router) workDetailed(c *gin.Context) {
	ctx := c.Request.Context()

	w, err := r.services.Work.GetWork(ctx)
	if err != nil {
		Abort(c, err)
		return
	}

	base, value, err := r.services.Engine.BlockValue(ctx)
	if err != nil {
		Abort(c, err)
		return
	}

	stats, err := r.services.Ledger.GetUnpaidStats(ctx)
	if err != nil {
		Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"work":        w,
		"unpaid":      value - base,
		"base_value":  base,
		"block_value": value,
		"decrease": gin.H{
			"value":  stats.NextCount,
			"blocks": stats.Next,
			"reset":  stats.Most,
		},
	})
}

func (r *Router) lastBlock(c *gin.Context) {
	block, err := r.services.Engine.LastBlock(c.Request.Context())
	if err != nil {
		Abort(c, err)
		return
	}
	if block == nil {
		Abort(c, ErrNotFound("block"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "block": block.JSON()})
}

func (r *Router) block(c *gin.Context) {
	height, err := strconv.ParseInt(c.Param("height"), 10, 64)
	if err != nil || height < 1 {
		Abort(c, ErrInvalidParameter("height"))
		return
	}

	block, err := r.blocks.GetByHeight(c.Request.Context(), height)
	if err != nil {
		Abort(c, err)
		return
	}
	if block == nil {
		Abort(c, ErrNotFound("block"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "block": block.JSON()})
}

func (r *Router) address(c *gin.Context) {
	address := c.Param("address")
	if !ledger.ValidAddress(address) {
		Abort(c, ErrInvalidParameter("address"))
		return
	}

	addr, err := r.services.Ledger.GetAddress(c.Request.Context(), address)
	if err != nil {
		Abort(c, err)
		return
	}
	if addr == nil {
		Abort(c, ErrNotFound("address"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "address": addr.JSON()})
}

func (r *Router) transaction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		Abort(c, ErrInvalidParameter("id"))
		return
	}

	tx, err := r.transactions.GetByID(c.Request.Context(), id)
	if err != nil {
		Abort(c, err)
		return
	}
	if tx == nil {
		Abort(c, ErrNotFound("transaction"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "transaction": tx.JSON()})
}

// supply reports the krist in circulation along with chain totals
func (r *Router) supply(c *gin.Context) {
	ctx := c.Request.Context()

	totalIn, totalOut, err := r.addresses.SumSupply(ctx)
	if err != nil {
		Abort(c, err)
		return
	}
	blocks, err := r.blocks.Count(ctx)
	if err != nil {
		Abort(c, err)
		return
	}
	transactions, err := r.transactions.Count(ctx)
	if err != nil {
		Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"money_supply": totalIn - totalOut,
		"blocks":       blocks,
		"transactions": transactions,
	})
}

func (r *Router) submit(c *gin.Context) {
	var req struct {
		Address string       `json:"address" form:"address"`
		Nonce   mining.Nonce `json:"nonce" form:"nonce"`
	}
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		Abort(c, ErrInvalidParameter("nonce"))
		return
	}

	res, err := r.services.Engine.SubmitBlock(c.Request.Context(), req.Address, req.Nonce)
	if err != nil {
		Abort(c, err)
		return
	}

	body := SubmitBody(res)
	body["ok"] = true
	c.JSON(http.StatusOK, body)
}
