package types

import (
	"context"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/poller"
	"github.com/subfrost/walletd/pkg/queries"
	"github.com/subfrost/walletd/pkg/redis"
	"github.com/subfrost/walletd/pkg/rpc"
)

type App struct {
	Network string

	// Cache holds every descriptor's last good value.
	Cache *cache.Client
	// Provider flips to ready once the provider client answered a probe.
	Provider *rpc.Handle
	// Deps is handed to every descriptor builder.
	Deps queries.Deps

	Poller        *poller.Poller
	PollInterval  time.Duration
	// SweepInterval is the cadence of the cache sweep; zero disables it.
	SweepInterval time.Duration
	Cron          *cron.Cron

	// Pool is shared by the aggregator, the sellable resolver and the
	// fan-out descriptors.
	Pool pond.Pool

	// RedisClient is nil when REDIS_ENABLED is false or redis is unreachable.
	RedisClient *redis.Client

	Logger *zap.Logger
	Server *http.Server
}

// StopCron stops the poll scheduler and waits for a running tick.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// Start serves HTTP until ctx is done, then tears everything down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("http server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Logger.Info("[walletd] shutting down…")
	_ = a.Server.Shutdown(shutdownCtx)
	a.StopCron()

	if a.Pool != nil {
		a.Pool.StopAndWait()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
