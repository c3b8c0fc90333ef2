package walletd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/subfrost/walletd/app/walletd/types"
	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/logging"
	"github.com/subfrost/walletd/pkg/poller"
	"github.com/subfrost/walletd/pkg/queries"
	"github.com/subfrost/walletd/pkg/redis"
	"github.com/subfrost/walletd/pkg/retry"
	"github.com/subfrost/walletd/pkg/rpc"
	"github.com/subfrost/walletd/pkg/utils"
	"github.com/subfrost/walletd/pkg/wallet"
)

// defaultProviderURLs are used when PROVIDER_URL is unset.
var defaultProviderURLs = map[string]string{
	"mainnet":  "https://mainnet.subfrost.io/v4/subfrost",
	"signet":   "https://signet.subfrost.io/v4/subfrost",
	"regtest":  "https://regtest.subfrost.io/v4/subfrost",
	"oylnet":   "https://regtest.subfrost.io/v4/subfrost",
	"subfrost": "https://regtest.subfrost.io/v4/subfrost",
}

const defaultBootstrapURL = "https://api.subfrost.io"

// defaultSweepInterval is how often unread cache entries are collected.
const defaultSweepInterval = time.Minute

// Initialize wires the daemon for NETWORK. The provider comes up in the
// background; until then only the height descriptor is enabled.
func Initialize(ctx context.Context) (*types.App, error) {
	utils.LoadDotEnv()

	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	network := utils.Env("NETWORK", "mainnet")
	providerURL := utils.Env("PROVIDER_URL", defaultProviderURLs[network])
	if providerURL == "" {
		return nil, fmt.Errorf("no provider url for network %q", network)
	}

	factory := rpc.NewHTTPFactory(rpc.Opts{
		RPS:   utils.EnvInt("RPC_RPS", 20),
		Burst: utils.EnvInt("RPC_BURST", 40),
	})
	providerClient := factory.NewClient(splitEndpoints(providerURL))
	bootstrapClient := factory.NewClient(splitEndpoints(utils.Env("BOOTSTRAP_URL", defaultBootstrapURL)))

	handle := rpc.NewHandle()
	pool := pond.NewPool(utils.EnvInt("FANOUT_WORKERS", 32))
	store := cache.New(logger)

	deps := queries.Deps{
		Network:  network,
		Provider: handle,
		Heights:  poller.NewChain(network, handle, bootstrapClient, logger),
		Aggregator: wallet.NewAggregator(wallet.AggregatorConfig{
			Enricher:  handle,
			Fallback:  handle,
			Assets:    handle,
			Mempool:   handle,
			Reflector: handle,
			Logger:    logger,
			Pool:      pool,
		}),
		Sellable: wallet.NewSellableResolver(handle, wallet.KnownTokens, pool, logger),
		Pool:     pool,
	}

	var redisClient *redis.Client
	var listeners []poller.HeightListener
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, redis.ConfigFromEnv(), logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - height events will not be broadcast", zap.Error(err))
			redisClient = nil
		} else {
			listeners = append(listeners, redis.NewHeightPublisher(redisClient, logger))
		}
	} else {
		logger.Info("Redis disabled - height events will not be broadcast")
	}

	policy := poller.PolicyAnyChange
	if utils.Env("POLL_POLICY", "any") == "increase" {
		policy = poller.PolicyIncreaseOnly
	}

	heightDesc := queries.Height(deps)
	app := &types.App{
		Network:  network,
		Cache:    store,
		Provider: handle,
		Deps:     deps,
		Poller: poller.New(poller.Config{
			Network:    network,
			Cache:      store,
			Descriptor: heightDesc,
			Policy:     policy,
			Listeners:  listeners,
			Logger:     logger,
		}),
		PollInterval:  utils.EnvDuration("POLL_INTERVAL", heightDesc.RefetchInterval),
		SweepInterval: utils.EnvDuration("CACHE_SWEEP_INTERVAL", defaultSweepInterval),
		Pool:          pool,
		RedisClient:   redisClient,
		Logger:        logger,
	}

	go initProvider(ctx, app, providerClient)

	if err := SetupScheduler(ctx, app, logging.CronLogger(logger)); err != nil {
		return nil, err
	}
	return app, nil
}

// initProvider probes the provider until it answers, then marks it ready.
func initProvider(ctx context.Context, app *types.App, client *rpc.HTTPClient) {
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), app.Logger, "provider init", func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, poller.DefaultStepTimeout)
		defer cancel()
		_, err := client.MetashrewHeight(pctx)
		return err
	})
	if err != nil {
		app.Logger.Warn("[walletd] provider never became ready", zap.Error(err))
		return
	}
	app.Provider.Set(client)
	app.Logger.Info("[walletd] provider ready", zap.Strings("endpoints", client.Endpoints()))
}

// SetupScheduler drives the height poller and the cache sweep. Overlapping
// runs of either job are skipped.
func SetupScheduler(ctx context.Context, app *types.App, logger cron.Logger) error {
	app.Cron = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := app.Cron.AddFunc("@every "+app.PollInterval.String(), func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, app.PollInterval+5*time.Second)
		defer cancel()
		app.Poller.Tick(rctx)
	})
	if err != nil {
		return err
	}

	if app.SweepInterval <= 0 || app.Cache == nil {
		return nil
	}
	_, err = app.Cron.AddFunc("@every "+app.SweepInterval.String(), func() {
		if n := app.Cache.Sweep(); n > 0 {
			app.Logger.Debug("[walletd] swept unread cache entries",
				zap.Int("dropped", n),
				zap.Int("remaining", app.Cache.Len()))
		}
	})
	return err
}

// StartCron runs one tick immediately, then starts the scheduler.
func StartCron(ctx context.Context, app *types.App) {
	app.Poller.Tick(ctx)
	app.Cron.Start()
	app.Logger.Info("[walletd] Cron started",
		zap.String("network", app.Network),
		zap.Duration("interval", app.PollInterval))
}

func splitEndpoints(v string) []string {
	var out []string
	for _, ep := range strings.Split(v, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, strings.TrimRight(ep, "/"))
		}
	}
	return out
}
