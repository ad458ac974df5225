package work

import (
	"math"
	"time"

	"github.com/tmpim/krist/pkg/config"
)

// Policy holds the tunable constants of the difficulty adjustment
type Policy struct {
	MinWork         uint64
	MaxWork         uint64
	WorkFactor      float64
	SecondsPerBlock int
}

// DefaultPolicy returns the production policy
func DefaultPolicy() Policy {
	return Policy{
		MinWork:         1,
		MaxWork:         100000,
		WorkFactor:      0.025,
		SecondsPerBlock: 300,
	}
}

// PolicyFromConfig builds a policy from the mining configuration
func PolicyFromConfig(cfg *config.MiningConfig) Policy {
	return Policy{
		MinWork:         cfg.MinWork,
		MaxWork:         cfg.MaxWork,
		WorkFactor:      cfg.WorkFactor,
		SecondsPerBlock: cfg.SecondsPerBlock,
	}
}

// Next computes the work after a block mined sinceLastBlock after its
// predecessor. A WorkFactor share of the current work is replaced by the
// same share scaled by how long the block took relative to the target, so
// fast blocks lower work (harder) and slow blocks raise it.
func (p Policy) Next(current uint64, sinceLastBlock time.Duration) uint64 {
	secs := sinceLastBlock.Seconds()
	if secs < 0 {
		secs = 0
	}

	w := float64(current)
	next := w*(1-p.WorkFactor) + (secs/float64(p.SecondsPerBlock))*w*p.WorkFactor
	return p.Clamp(math.Round(next))
}

// Clamp bounds v to [MinWork, MaxWork]. Non-finite values count as zero.
func (p Policy) Clamp(v float64) uint64 {
	v = Finite(v)
	if v <= float64(p.MinWork) {
		return p.MinWork
	}
	if v >= float64(p.MaxWork) {
		return p.MaxWork
	}
	return uint64(v)
}

// Finite maps NaN and ±Inf to 0
func Finite(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
