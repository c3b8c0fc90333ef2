// Package redis fans height changes out to other walletd replicas and to
// websocket subscribers. Every network gets a pub/sub channel for live
// delivery and a capped stream holding its recent changes.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/subfrost/walletd/pkg/utils"
)

// DefaultHeightHistory is how many height changes each network's stream
// keeps. Subscribers only ever read the newest one.
const DefaultHeightHistory = 256

const connectTimeout = 5 * time.Second

// Config selects the redis server. URL wins over Addr when both are set.
type Config struct {
	URL      string
	Addr     string
	Password string
	DB       int
	// HeightHistory caps each height stream; zero keeps everything.
	HeightHistory int64
}

// ConfigFromEnv reads REDIS_URL, or REDIS_HOST and REDIS_PORT with
// REDIS_PASSWORD and REDIS_DB, plus REDIS_HEIGHT_HISTORY.
func ConfigFromEnv() Config {
	return Config{
		URL:           utils.Env("REDIS_URL", ""),
		Addr:          net.JoinHostPort(utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379")),
		Password:      utils.Env("REDIS_PASSWORD", ""),
		DB:            utils.EnvInt("REDIS_DB", 0),
		HeightHistory: utils.EnvInt64("REDIS_HEIGHT_HISTORY", DefaultHeightHistory),
	}
}

func (cfg Config) options() (*goredis.Options, error) {
	if cfg.URL != "" {
		opt, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		return opt, nil
	}
	return &goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, nil
}

// Client publishes and reads height events. Writes are best effort; a
// redis outage never blocks the poller.
type Client struct {
	rdb           *goredis.Client
	logger        *zap.Logger
	heightHistory int64
}

// NewClient connects with cfg and fails unless the server answers a ping.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := cfg.options()
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", opt.Addr, err)
	}

	logger.Info("[redis] connected",
		zap.String("addr", opt.Addr),
		zap.Int("db", opt.DB),
		zap.Int64("heightHistory", cfg.HeightHistory))
	return &Client{rdb: rdb, logger: logger, heightHistory: cfg.HeightHistory}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Health pings the server for /readyz.
func (c *Client) Health(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Publish sends message on channel and logs a failure.
func (c *Client) Publish(ctx context.Context, channel string, message any) {
	if err := c.rdb.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("[redis] publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// PSubscribe listens on every channel matching patterns, such as
// HeightPattern. The caller closes the returned PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *goredis.PubSub {
	return c.rdb.PSubscribe(ctx, patterns...)
}

// XAdd appends values to stream, trimming it to the height history, and
// returns the entry id or "" on failure.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) string {
	args := &goredis.XAddArgs{Stream: stream, Values: values}
	if c.heightHistory > 0 {
		args.MaxLen = c.heightHistory
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("[redis] stream append failed", zap.String("stream", stream), zap.Error(err))
		return ""
	}
	return id
}

// XLast returns the newest entry of stream.
func (c *Client) XLast(ctx context.Context, stream string) (goredis.XMessage, bool, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil || len(msgs) == 0 {
		return goredis.XMessage{}, false, err
	}
	return msgs[0], true, nil
}
