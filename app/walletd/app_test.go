package walletd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/subfrost/walletd/app/walletd/types"
	"github.com/subfrost/walletd/pkg/cache"
	"github.com/subfrost/walletd/pkg/logging"
	"github.com/subfrost/walletd/pkg/poller"
	"github.com/subfrost/walletd/pkg/querykeys"
)

func TestSplitEndpoints(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example/v4", "https://b.example"},
		splitEndpoints(" https://a.example/v4/ ,, https://b.example"))
	assert.Nil(t, splitEndpoints(""))
}

func TestDefaultProviderURLs(t *testing.T) {
	for _, network := range []string{"mainnet", "signet", "regtest"} {
		assert.NotEmpty(t, defaultProviderURLs[network], network)
	}
}

func TestScheduler_TicksPoller(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := cache.New(logger)
	t.Cleanup(store.Close)

	ticks := make(chan struct{}, 8)
	desc := cache.Descriptor[uint64]{
		Key:     querykeys.Height("mainnet"),
		Enabled: true,
		Fetch: func(context.Context) (uint64, error) {
			ticks <- struct{}{}
			return 1, nil
		},
	}
	app := &types.App{
		Network:      "mainnet",
		Cache:        store,
		Poller:       poller.New(poller.Config{Network: "mainnet", Cache: store, Descriptor: desc, Logger: logger}),
		PollInterval: time.Second,
		Logger:       logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, SetupScheduler(ctx, app, logging.CronLogger(logger)))
	StartCron(ctx, app)
	defer app.StopCron()

	// immediate tick, then at least one scheduled tick
	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(3 * time.Second):
			t.Fatalf("tick %d never happened", i)
		}
	}
	h, ok := app.Poller.Height()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), h)
}

func TestScheduler_SweepsUnreadEntries(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := cache.New(logger)
	t.Cleanup(store.Close)

	price := cache.Descriptor[float64]{
		Key:     querykeys.BTCPrice("mainnet"),
		Enabled: true,
		GCTime:  time.Millisecond,
		Fetch:   func(context.Context) (float64, error) { return 90000, nil },
	}
	_, err := cache.Fetch(context.Background(), store, price)
	require.NoError(t, err)
	store.Set(querykeys.Height("mainnet"), uint64(7))
	require.Equal(t, 2, store.Len())

	app := &types.App{
		Network: "mainnet",
		Cache:   store,
		Poller: poller.New(poller.Config{
			Network:    "mainnet",
			Cache:      store,
			Descriptor: cache.Descriptor[uint64]{Key: querykeys.Height("mainnet")},
			Logger:     logger,
		}),
		PollInterval:  time.Hour,
		SweepInterval: time.Second,
		Logger:        logger,
	}
	require.NoError(t, SetupScheduler(context.Background(), app, logging.CronLogger(logger)))
	app.Cron.Start()
	defer app.StopCron()

	require.Eventually(t, func() bool {
		_, ok := store.Peek(querykeys.BTCPrice("mainnet"))
		return !ok
	}, 3*time.Second, 50*time.Millisecond)
	h, ok := store.Peek(querykeys.Height("mainnet"))
	require.True(t, ok, "height was set within its gc time")
	assert.Equal(t, uint64(7), h)
}

func TestScheduler_NoSweepWhenDisabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	app := &types.App{
		Network:      "mainnet",
		Cache:        cache.New(logger),
		Poller:       poller.New(poller.Config{Network: "mainnet", Logger: logger}),
		PollInterval: time.Hour,
		Logger:       logger,
	}
	t.Cleanup(app.Cache.Close)
	require.NoError(t, SetupScheduler(context.Background(), app, logging.CronLogger(logger)))
	assert.Len(t, app.Cron.Entries(), 1)

	app.SweepInterval = time.Minute
	require.NoError(t, SetupScheduler(context.Background(), app, logging.CronLogger(logger)))
	assert.Len(t, app.Cron.Entries(), 2)
}
