package controller

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/subfrost/walletd/pkg/redis"
)

const (
	wildcard     = "*"
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is sent by WebSocket clients.
type ClientMessage struct {
	Action  string `json:"action"`  // "subscribe" or "unsubscribe"
	Network string `json:"network"` // e.g. "mainnet", or "*" for every network
}

// ServerMessage is sent to WebSocket clients.
type ServerMessage struct {
	Type    string `json:"type"` // "height.changed", "height.latest", "subscribed", "unsubscribed", "info", "error"
	Payload any    `json:"payload"`
}

// subscriptions tracks the networks one client listens to.
type subscriptions struct {
	networks *xsync.Map[string, struct{}]
}

func newSubscriptions() *subscriptions {
	return &subscriptions{networks: xsync.NewMap[string, struct{}]()}
}

func (s *subscriptions) Subscribe(network string)   { s.networks.Store(network, struct{}{}) }
func (s *subscriptions) Unsubscribe(network string) { s.networks.Delete(network) }

// IsSubscribed reports whether events of network reach the client. The
// wildcard matches every network.
func (s *subscriptions) IsSubscribed(network string) bool {
	if _, ok := s.networks.Load(wildcard); ok {
		return true
	}
	_, ok := s.networks.Load(network)
	return ok
}

// HandleWebSocket streams height changes so UIs refetch without polling.
//
// Client sends: {"action": "subscribe", "network": "mainnet"}
// Client sends: {"action": "unsubscribe", "network": "mainnet"}
//
// Server sends:
// - {"type": "height.changed", "payload": {"network": "mainnet", "from": 1, "to": 2, ...}}
// - {"type": "height.latest", "payload": {...}} right after a subscribe, when known
// - {"type": "subscribed" | "unsubscribed", "payload": {"network": "mainnet"}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	c.goSafe(&wg, cancel, r.RemoteAddr, "redis subscriber", func() { c.subscribeToRedis(ctx, send, subs) })
	c.goSafe(&wg, cancel, r.RemoteAddr, "ping ticker", func() { c.sendPings(ctx, conn) })

	// The writer drains send until it is closed below.
	var writer sync.WaitGroup
	c.goSafe(&writer, cancel, r.RemoteAddr, "message writer", func() { c.writeMessages(conn, send) })

	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	wg.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// goSafe runs fn with panic recovery; a panic tears the connection down.
func (c *Controller) goSafe(wg *sync.WaitGroup, cancel context.CancelFunc, remote, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in websocket goroutine",
					zap.String("goroutine", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", remote))
				cancel()
			}
		}()
		fn()
	}()
}

// subscribeToRedis keeps a pattern subscription alive, reconnecting with
// jittered exponential backoff until ctx ends.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *subscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := c.attemptRedisSubscription(ctx, send, subs)
		if ctx.Err() != nil {
			return
		}
		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		if !trySend(ctx, send, ServerMessage{Type: "error", Payload: map[string]any{
			"message":     "event stream lost, reconnecting",
			"retryIn":     backoff.Seconds(),
			"recoverable": true,
		}}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, subs *subscriptions) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, redis.HeightPattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}

	return c.forwardHeightEvents(ctx, pubsub.Channel(), send, subs)
}

// forwardHeightEvents relays height changes of subscribed networks until ch
// closes or ctx ends.
func (c *Controller) forwardHeightEvents(ctx context.Context, ch <-chan *goredis.Message, send chan<- ServerMessage, subs *subscriptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			network := redis.NetworkFromChannel(msg.Channel)
			if network == "" || !subs.IsSubscribed(network) {
				continue
			}
			ev, err := redis.ParseHeightEvent(msg.Payload)
			if err != nil {
				c.App.Logger.Warn("Dropping malformed height event",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !trySend(ctx, send, ServerMessage{Type: redis.EventHeightChanged, Payload: ev}) {
				return ctx.Err()
			}
		}
	}
}

// nextBackoff grows current by factor, caps it at max and adds jitter.
func nextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	next = time.Duration(float64(next) + jitter)
	if next < current {
		next = current
	}
	if next > max {
		next = max
	}
	return next
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendPings keeps the connection alive; pongs reset the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			// keep draining so producers never block on a dead socket
			for range send {
			}
			return
		}
	}
}

// readClientMessages handles subscribe/unsubscribe until the client goes away.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *subscriptions, send chan<- ServerMessage) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.Network == "" && (msg.Action == "subscribe" || msg.Action == "unsubscribe") {
			trySend(ctx, send, ServerMessage{Type: "error", Payload: map[string]string{"message": "network is required"}})
			continue
		}

		switch msg.Action {
		case "subscribe":
			subs.Subscribe(msg.Network)
			trySend(ctx, send, ServerMessage{Type: "subscribed", Payload: map[string]string{"network": msg.Network}})
			c.sendLatest(ctx, msg.Network, send)
		case "unsubscribe":
			subs.Unsubscribe(msg.Network)
			trySend(ctx, send, ServerMessage{Type: "unsubscribed", Payload: map[string]string{"network": msg.Network}})
		default:
			trySend(ctx, send, ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
		}
	}
}

// sendLatest replays the last recorded height change so a fresh client
// does not wait a full poll cycle.
func (c *Controller) sendLatest(ctx context.Context, network string, send chan<- ServerMessage) {
	if network == wildcard {
		network = c.App.Network
	}
	ev, ok, err := c.App.RedisClient.LastHeightEvent(ctx, network)
	if err != nil {
		c.App.Logger.Debug("Failed to read last height event", zap.String("network", network), zap.Error(err))
		return
	}
	if ok {
		trySend(ctx, send, ServerMessage{Type: "height.latest", Payload: ev})
	}
}
