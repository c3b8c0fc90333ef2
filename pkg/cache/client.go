package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/subfrost/walletd/pkg/querykeys"
)

var (
	ErrDisabled = errors.New("cache: query disabled")
	ErrClosed   = errors.New("cache: client closed")
)

// Client is an in-memory store of fetched values keyed by querykeys.Key.
// It is constructed explicitly and passed by reference; there is no package
// level instance.
type Client struct {
	logger  *zap.Logger
	entries *xsync.Map[string, *entry]
	flights singleflight.Group
	closed  atomic.Bool
	now     func() time.Time
}

type entry struct {
	key querykeys.Key

	mu          sync.Mutex
	value       any
	hasValue    bool
	updatedAt   time.Time
	invalidated bool
	// epoch is bumped by every invalidation. A fetch that started in an older
	// epoch may still store its value but leaves the entry stale.
	epoch uint64
	// seq numbers invocations in start order; storedSeq is the seq of the
	// value currently held. Older invocations never overwrite newer ones.
	seq       uint64
	storedSeq uint64
	lastErr   error

	// lastAccess and gcTime decide when Sweep drops the entry. A removed
	// entry is already out of the map and must not be used again.
	lastAccess time.Time
	gcTime     time.Duration
	removed    bool
}

// New returns a ready client. Call Close to tear it down.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:  logger,
		entries: xsync.NewMap[string, *entry](),
		now:     time.Now,
	}
}

// Close drops every entry; subsequent fetches return ErrClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.entries.Range(func(id string, _ *entry) bool {
		c.entries.Delete(id)
		return true
	})
}

// Len returns the number of stored entries.
func (c *Client) Len() int { return c.entries.Size() }

// entry returns the live entry for key and marks it accessed. gcTime zero
// keeps whatever the entry already had.
func (c *Client) entry(key querykeys.Key, gcTime time.Duration) *entry {
	id := key.String()
	for {
		e, ok := c.entries.Load(id)
		if !ok {
			e, _ = c.entries.LoadOrStore(id, &entry{key: key})
		}
		if e.touch(c.now(), gcTime) {
			return e
		}
		// Swept between Load and touch; the next round stores a new entry.
	}
}

func (e *entry) touch(now time.Time, gcTime time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.lastAccess = now
	if gcTime != 0 {
		e.gcTime = gcTime
	}
	return true
}

// Sweep drops every entry that nobody fetched or set for longer than its
// GCTime and returns how many were dropped. The scheduler calls it
// periodically.
func (c *Client) Sweep() int {
	now := c.now()
	n := 0
	c.entries.Range(func(id string, e *entry) bool {
		e.mu.Lock()
		gc := e.gcTime
		if gc == 0 {
			gc = DefaultGCTime
		}
		expired := gc > 0 && now.Sub(e.lastAccess) >= gc
		if expired {
			e.removed = true
		}
		e.mu.Unlock()
		if expired {
			c.entries.Delete(id)
			n++
		}
		return true
	})
	return n
}

// Fetch returns the cached value for d, executing d.Fetch when the entry is
// missing, invalidated or older than d.StaleTime. Concurrent callers of the
// same key and epoch share one execution.
//
// A failed refresh with a previously stored value is logged and the previous
// value is returned without error.
func Fetch[T any](ctx context.Context, c *Client, d Descriptor[T]) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if !d.Enabled {
		return zero, ErrDisabled
	}
	if d.Fetch == nil {
		return zero, fmt.Errorf("cache: descriptor %s has no fetch function", d.Key)
	}

	e := c.entry(d.Key, d.GCTime)
	if v, ok := e.fresh(c.now(), d.StaleTime); ok {
		return cast[T](d.Key, v)
	}

	epoch := e.currentEpoch()
	flight := d.Key.String() + "#" + strconv.FormatUint(epoch, 10)
	// The shared execution must not die with the first caller's request.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := c.flights.Do(flight, func() (any, error) {
		seq := e.begin()
		res, ferr := d.Fetch(fctx)
		return c.finish(e, seq, epoch, res, ferr)
	})
	if err != nil {
		return zero, err
	}
	return cast[T](d.Key, v)
}

func cast[T any](key querykeys.Key, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: entry %s holds %T, want %T", key, v, zero)
	}
	return t, nil
}

func (e *entry) fresh(now time.Time, staleTime time.Duration) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasValue || e.invalidated {
		return nil, false
	}
	if staleTime > 0 && now.Sub(e.updatedAt) >= staleTime {
		return nil, false
	}
	return e.value, true
}

func (e *entry) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

func (e *entry) begin() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (c *Client) finish(e *entry, seq, epoch uint64, v any, err error) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err
		if !e.hasValue {
			return nil, err
		}
		// Stay on the last good value until the next invalidation.
		if epoch == e.epoch {
			e.invalidated = false
		}
		c.logger.Warn("[cache] refresh failed, serving last value",
			zap.String("key", e.key.String()),
			zap.Time("valueFrom", e.updatedAt),
			zap.Error(err))
		return e.value, nil
	}

	if seq < e.storedSeq {
		// A later invocation already stored its result.
		c.logger.Debug("[cache] discarding superseded result",
			zap.String("key", e.key.String()),
			zap.Uint64("seq", seq),
			zap.Uint64("storedSeq", e.storedSeq))
		return e.value, nil
	}

	e.value = v
	e.hasValue = true
	e.storedSeq = seq
	e.updatedAt = c.now()
	e.lastErr = nil
	if epoch == e.epoch {
		e.invalidated = false
	}
	return v, nil
}

// Set stores v under key as the newest value, bypassing any fetch function.
func (c *Client) Set(key querykeys.Key, v any) {
	if c.closed.Load() {
		return
	}
	e := c.entry(key, 0)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.storedSeq = e.seq
	e.value = v
	e.hasValue = true
	e.updatedAt = c.now()
	e.invalidated = false
	e.lastErr = nil
}

// Peek returns the stored value for key without fetching.
func (c *Client) Peek(key querykeys.Key) (any, bool) {
	e, ok := c.entries.Load(key.String())
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.hasValue
}

// IsStale reports whether the next read of key will refetch.
func (c *Client) IsStale(key querykeys.Key) bool {
	e, ok := c.entries.Load(key.String())
	if !ok {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.hasValue || e.invalidated
}

// Invalidate marks every entry matching pred as stale and returns how many
// entries matched. Values are kept so they can still be served on refresh
// failure.
func (c *Client) Invalidate(pred func(querykeys.Key) bool) int {
	n := 0
	c.entries.Range(func(_ string, e *entry) bool {
		if !pred(e.key) {
			return true
		}
		e.mu.Lock()
		e.invalidated = true
		e.epoch++
		e.mu.Unlock()
		n++
		return true
	})
	return n
}

// InvalidateExcept implements Invalidator.
func (c *Client) InvalidateExcept(domain string) int {
	return c.Invalidate(func(k querykeys.Key) bool { return k.Domain() != domain })
}
