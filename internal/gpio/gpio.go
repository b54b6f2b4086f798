// Package gpio is the GPIO Link (C7): a single persistent client
// connection to the field-I/O endpoint (spec §4.7/§6). Plain TCP rather
// than WebSocket: the protocol "neither sends application-level
// messages nor requires a handshake beyond what the transport
// provides", which rules out the mandatory HTTP upgrade a WebSocket
// would add for no benefit here.
//
// Grounded on the teacher's internal/ws/client.go reconnect-loop shape,
// adapted from a WebSocket dialer to a raw net.Conn with a streaming
// JSON decoder, and on its resilience stack: sony/gobreaker guards
// reconnect attempts, golang.org/x/time/rate paces backoff, and
// patrickmn/go-cache holds the pin-state cache C8/C9 read from.
package gpio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PinUpdate is a single {pin, value} message (spec §6).
type PinUpdate struct {
	Pin   int `json:"pin"`
	Value int `json:"value"`
}

// ChangeHandler is invoked for every post-initialization pin-value
// change, with the previous and current value (spec §4.7: pre-init
// messages only seed state and never call this).
type ChangeHandler func(pin, previous, current int)

// Link maintains the persistent connection, pin-state cache, and
// heartbeat/reconnect watchdog.
type Link struct {
	addr             string
	heartbeatTimeout time.Duration
	watchdogInterval time.Duration

	logger  *zap.Logger
	cache   *cache.Cache
	metrics *monitoring.Collector

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	mu            sync.Mutex
	conn          net.Conn
	initialized   bool
	lastMessageAt time.Time
	reconnects    int64

	handlersMu sync.RWMutex
	handlers   []ChangeHandler

	cancel context.CancelFunc
}

// Config configures a Link.
type Config struct {
	Address           string
	HeartbeatTimeout  time.Duration
	WatchdogInterval  time.Duration
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

// New constructs a Link. Call Run to start the connection loop.
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Collector) *Link {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gpio-link",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ReconnectMaxDelay,
	})
	// rate.Limiter paces reconnect attempts between MinDelay and MaxDelay;
	// burst of 1 keeps attempts strictly sequential.
	limit := rate.Every(cfg.ReconnectMinDelay)
	limiter := rate.NewLimiter(limit, 1)

	return &Link{
		addr:             cfg.Address,
		heartbeatTimeout: cfg.HeartbeatTimeout,
		watchdogInterval: cfg.WatchdogInterval,
		logger:           logger,
		cache:            cache.New(cache.NoExpiration, cache.NoExpiration),
		metrics:          metrics,
		breaker:          breaker,
		limiter:          limiter,
	}
}

// OnChange registers a handler invoked for post-initialization pin
// changes. Handlers are invoked synchronously from the read loop;
// callers (C8, C9) must not block.
func (l *Link) OnChange(h ChangeHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers = append(l.handlers, h)
}

// PinValue returns the last known value for pin and whether it is known.
func (l *Link) PinValue(pin int) (int, bool) {
	v, ok := l.cache.Get(pinKey(pin))
	if !ok {
		return 0, false
	}
	return v.(int), true
}

func pinKey(pin int) string {
	return "pin:" + strconv.Itoa(pin)
}

// Status is the health-check accessor (SPEC_FULL §4 supplement).
type Status struct {
	Connected      bool
	LastMessageAge time.Duration
	Reconnects     int64
}

func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var age time.Duration
	if !l.lastMessageAt.IsZero() {
		age = time.Since(l.lastMessageAt)
	}
	return Status{
		Connected:      l.conn != nil,
		LastMessageAge: age,
		Reconnects:     atomic.LoadInt64(&l.reconnects),
	}
}

// Run owns the connection loop and the heartbeat watchdog until ctx is
// cancelled. Shutdown is idempotent: cancelling ctx stops the watchdog
// and closes the socket, unblocking any pending read.
func (l *Link) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	go l.watchdog(runCtx)
	l.connectLoop(runCtx)
}

// Close cancels the connection loop and watchdog.
func (l *Link) Close() {
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Link) watchdog(ctx context.Context) {
	ticker := time.NewTicker(l.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			var age time.Duration
			if !l.lastMessageAt.IsZero() {
				age = time.Since(l.lastMessageAt)
			}
			dead := l.conn != nil && !l.lastMessageAt.IsZero() && age > l.heartbeatTimeout
			conn := l.conn
			l.mu.Unlock()
			l.metrics.SetGPIOHeartbeatAge(age)
			if dead {
				l.logger.Warn("gpio link heartbeat timeout, forcing reconnect")
				if conn != nil {
					_ = conn.Close()
				}
			}
		}
	}
}

func (l *Link) connectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return
		}

		_, err := l.breaker.Execute(func() (interface{}, error) {
			return nil, l.runOnce(ctx)
		})
		if err != nil {
			l.logger.Warn("gpio link connection ended", zap.Error(err))
		}
		atomic.AddInt64(&l.reconnects, 1)
		l.metrics.RecordGPIOReconnect()

		l.mu.Lock()
		l.initialized = false
		l.cache.Flush()
		l.mu.Unlock()
	}
}

func (l *Link) runOnce(ctx context.Context) error {
	conn, err := net.Dial("tcp", l.addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.lastMessageAt = time.Now()
	l.mu.Unlock()

	// Unblock a pending Decode when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		l.mu.Lock()
		l.lastMessageAt = time.Now()
		l.mu.Unlock()

		if err := l.handleFrame(raw); err != nil {
			l.logger.Error("failed to decode gpio frame", zap.Error(err))
		}
	}
}

func (l *Link) handleFrame(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var snapshot []PinUpdate
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return err
		}
		l.applySnapshot(snapshot)
		return nil
	}

	var update PinUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return err
	}
	l.applyUpdate(update)
	return nil
}

// applySnapshot seeds the pin cache from an initial snapshot and marks
// the link initialized (spec §4.7).
func (l *Link) applySnapshot(snapshot []PinUpdate) {
	l.mu.Lock()
	for _, pu := range snapshot {
		l.cache.Set(pinKey(pu.Pin), pu.Value, cache.NoExpiration)
	}
	l.initialized = true
	l.mu.Unlock()
}

// applyUpdate applies a single pin update. If this is the first message
// after a reconnect with no snapshot, it seeds state without emitting a
// change (spec §4.7).
func (l *Link) applyUpdate(update PinUpdate) {
	l.mu.Lock()
	wasInitialized := l.initialized
	prevRaw, known := l.cache.Get(pinKey(update.Pin))
	l.cache.Set(pinKey(update.Pin), update.Value, cache.NoExpiration)
	if !wasInitialized {
		l.initialized = true
	}
	l.mu.Unlock()

	if !wasInitialized || !known {
		return
	}
	prev := prevRaw.(int)
	if prev == update.Value {
		return
	}

	l.handlersMu.RLock()
	handlers := append([]ChangeHandler(nil), l.handlers...)
	l.handlersMu.RUnlock()
	for _, h := range handlers {
		h(update.Pin, prev, update.Value)
	}
}
