package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "walletd"
	// EventHeightChanged is the event type of a height change.
	EventHeightChanged = "height.changed"
	// HeightPattern matches the height channel of every network.
	HeightPattern = channelPrefix + ":*:" + EventHeightChanged
)

// HeightChannel is the Pub/Sub channel for network's height changes.
func HeightChannel(network string) string {
	return channelPrefix + ":" + network + ":" + EventHeightChanged
}

// HeightStream is the stream keeping recent height changes of network.
func HeightStream(network string) string {
	return channelPrefix + ":" + network + ":heights"
}

// NetworkFromChannel extracts the network from a channel name such as
// "walletd:mainnet:height.changed".
func NetworkFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != channelPrefix {
		return ""
	}
	return parts[1]
}

// HeightEvent is the payload published on a height change.
type HeightEvent struct {
	Type      string    `json:"type"`
	Network   string    `json:"network"`
	From      uint64    `json:"from"`
	To        uint64    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseHeightEvent decodes a Pub/Sub payload.
func ParseHeightEvent(payload string) (HeightEvent, error) {
	var ev HeightEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return HeightEvent{}, fmt.Errorf("parse height event: %w", err)
	}
	return ev, nil
}

func (e HeightEvent) streamValues() map[string]any {
	return map[string]any{
		"network":   e.Network,
		"from":      strconv.FormatUint(e.From, 10),
		"to":        strconv.FormatUint(e.To, 10),
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
	}
}

func heightEventFromStream(msg goredis.XMessage) HeightEvent {
	ev := HeightEvent{Type: EventHeightChanged}
	if v, ok := msg.Values["network"].(string); ok {
		ev.Network = v
	}
	if v, ok := msg.Values["from"].(string); ok {
		ev.From, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := msg.Values["to"].(string); ok {
		ev.To, _ = strconv.ParseUint(v, 10, 64)
	}
	if v, ok := msg.Values["timestamp"].(string); ok {
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, v)
	}
	return ev
}

type eventSink interface {
	Publish(ctx context.Context, channel string, message any)
	XAdd(ctx context.Context, stream string, values map[string]any) string
}

// HeightPublisher fans height changes out to Pub/Sub and the height stream.
// It is registered as a poller listener.
type HeightPublisher struct {
	sink   eventSink
	logger *zap.Logger
	now    func() time.Time
}

func NewHeightPublisher(c *Client, logger *zap.Logger) *HeightPublisher {
	return newHeightPublisher(c, logger)
}

func newHeightPublisher(sink eventSink, logger *zap.Logger) *HeightPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeightPublisher{sink: sink, logger: logger, now: time.Now}
}

// HeightChanged publishes ev; failures are logged by the client.
func (p *HeightPublisher) HeightChanged(ctx context.Context, network string, from, to uint64) {
	ev := HeightEvent{
		Type:      EventHeightChanged,
		Network:   network,
		From:      from,
		To:        to,
		Timestamp: p.now().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal height event", zap.Error(err))
		return
	}
	p.sink.Publish(ctx, HeightChannel(network), payload)
	p.sink.XAdd(ctx, HeightStream(network), ev.streamValues())
}

// LastHeightEvent returns the most recent height change recorded for network.
func (c *Client) LastHeightEvent(ctx context.Context, network string) (HeightEvent, bool, error) {
	msg, ok, err := c.XLast(ctx, HeightStream(network))
	if err != nil || !ok {
		return HeightEvent{}, ok, err
	}
	return heightEventFromStream(msg), true, nil
}
