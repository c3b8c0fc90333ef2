package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/subfrost/walletd/pkg/rpc"
)

// DefaultStepTimeout bounds each step of the height fallback chain.
const DefaultStepTimeout = 5 * time.Second

// ErrNoHeight is returned when every height source failed.
var ErrNoHeight = errors.New("no height source answered")

// HeightSources is the subset of the provider the chain reads from.
type HeightSources interface {
	Ready() bool
	MetashrewHeight(ctx context.Context) (uint64, error)
	BlockCount(ctx context.Context) (uint64, error)
	EsploraTipHeight(ctx context.Context) (uint64, error)
}

// Chain resolves the current height: indexer height, then node block count,
// then the esplora tip. While the provider is not ready the bootstrap
// endpoint is asked once instead.
type Chain struct {
	network     string
	sources     HeightSources
	bootstrap   rpc.Bootstrapper
	stepTimeout time.Duration
	logger      *zap.Logger
}

func NewChain(network string, sources HeightSources, bootstrap rpc.Bootstrapper, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		network:     network,
		sources:     sources,
		bootstrap:   bootstrap,
		stepTimeout: DefaultStepTimeout,
		logger:      logger,
	}
}

// WithStepTimeout overrides the per-step timeout.
func (c *Chain) WithStepTimeout(d time.Duration) *Chain {
	if d > 0 {
		c.stepTimeout = d
	}
	return c
}

type step struct {
	name string
	fn   func(ctx context.Context) (uint64, error)
}

// Height tries each source in order, first success wins.
func (c *Chain) Height(ctx context.Context) (uint64, error) {
	if c.sources == nil || !c.sources.Ready() {
		if c.bootstrap == nil {
			return 0, fmt.Errorf("%w: %w", ErrNoHeight, rpc.ErrProviderUnavailable)
		}
		return c.run(ctx, step{"bootstrap", func(ctx context.Context) (uint64, error) {
			return c.bootstrap.BootstrapHeight(ctx, c.network)
		}})
	}
	return c.run(ctx,
		step{"metashrew_height", c.sources.MetashrewHeight},
		step{"getblockcount", c.sources.BlockCount},
		step{"esplora_tip", c.sources.EsploraTipHeight},
	)
}

func (c *Chain) run(ctx context.Context, steps ...step) (uint64, error) {
	errs := make([]error, 0, len(steps))
	for _, s := range steps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
		h, err := s.fn(sctx)
		cancel()
		if err == nil {
			return h, nil
		}
		c.logger.Debug("[poller] height source failed",
			zap.String("network", c.network),
			zap.String("source", s.name),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return 0, fmt.Errorf("%w: %w", ErrNoHeight, errors.Join(errs...))
}
