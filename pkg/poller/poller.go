// Package poller drives data freshness: it polls the chain height and, when
// the height moves, invalidates every cache entry outside the height domain.
package poller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/querykeys"
)

// State is the poller's position in Idle → Polling → Comparing → {Idle | Invalidating → Idle}.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateComparing
	StateInvalidating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateComparing:
		return "comparing"
	case StateInvalidating:
		return "invalidating"
	}
	return "unknown"
}

// Policy decides which height changes invalidate.
type Policy int

const (
	// PolicyAnyChange invalidates on any difference, including a decrease
	// after a reorg or an indexer rollback.
	PolicyAnyChange Policy = iota
	// PolicyIncreaseOnly records a decrease without invalidating.
	PolicyIncreaseOnly
)

// HeightListener is told about every height change after invalidation ran.
type HeightListener interface {
	HeightChanged(ctx context.Context, network string, from, to uint64)
}

// Config wires a Poller.
type Config struct {
	Network string
	Cache   *cache.Client
	// Descriptor is the height descriptor; its Fetch runs the fallback chain.
	Descriptor  cache.Descriptor[uint64]
	Invalidator cache.Invalidator
	Policy      Policy
	Listeners   []HeightListener
	Logger      *zap.Logger
}

// Poller is instantiated once per network. Tick is safe to call from a
// scheduler; overlapping ticks are serialized.
type Poller struct {
	cfg Config

	tickMu sync.Mutex

	mu       sync.RWMutex
	state    State
	height   uint64
	recorded bool
}

func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Invalidator == nil && cfg.Cache != nil {
		cfg.Invalidator = cfg.Cache
	}
	return &Poller{cfg: cfg}
}

func (p *Poller) Network() string { return p.cfg.Network }

func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Height returns the last recorded height and whether one was observed yet.
func (p *Poller) Height() (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.height, p.recorded
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Tick runs one poll cycle. It never fails: when no height can be read the
// previous height is kept and nothing is invalidated.
func (p *Poller) Tick(ctx context.Context) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	defer p.setState(StateIdle)

	p.setState(StatePolling)
	h, err := p.readHeight(ctx)
	if err != nil {
		prev, _ := p.Height()
		p.cfg.Logger.Warn("[poller] height unavailable, keeping previous",
			zap.String("network", p.cfg.Network),
			zap.Uint64("height", prev),
			zap.Error(err))
		return
	}

	p.setState(StateComparing)
	p.mu.Lock()
	prev, seen := p.height, p.recorded
	fire := seen && h != prev && (p.cfg.Policy == PolicyAnyChange || h > prev)
	p.height, p.recorded = h, true
	if fire {
		p.state = StateInvalidating
	}
	p.mu.Unlock()

	switch {
	case !seen:
		p.cfg.Logger.Info("[poller] initial height", zap.String("network", p.cfg.Network), zap.Uint64("height", h))
		return
	case h == prev:
		return
	case !fire:
		p.cfg.Logger.Warn("[poller] height decreased, not invalidating",
			zap.String("network", p.cfg.Network), zap.Uint64("from", prev), zap.Uint64("to", h))
		return
	}

	n := 0
	if p.cfg.Invalidator != nil {
		n = p.cfg.Invalidator.InvalidateExcept(querykeys.DomainHeight)
	}
	p.cfg.Logger.Info("[poller] height changed, invalidated queries",
		zap.String("network", p.cfg.Network),
		zap.Uint64("from", prev),
		zap.Uint64("to", h),
		zap.Int("invalidated", n))

	for _, l := range p.cfg.Listeners {
		l.HeightChanged(ctx, p.cfg.Network, prev, h)
	}
}

// readHeight runs the height fetch on every tick regardless of freshness and
// stores a success under the height key. A failure leaves the cached height
// untouched and is reported to Tick.
func (p *Poller) readHeight(ctx context.Context) (uint64, error) {
	d := p.cfg.Descriptor
	if !d.Enabled || d.Fetch == nil {
		return 0, cache.ErrDisabled
	}
	h, err := d.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if p.cfg.Cache != nil {
		p.cfg.Cache.Set(d.Key, h)
	}
	return h, nil
}
