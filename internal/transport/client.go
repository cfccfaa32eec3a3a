// internal/transport/client.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/freshair-modbus/internal/metrics"
)

// Defaults for a single Modbus TCP unit.
const (
	DefaultPort            = 8899
	DefaultUnitID          = 1
	DefaultConnectAttempts = 3
	DefaultRetryDelay      = time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRequestTimeout  = 5 * time.Second

	// MaxReadQuantity is the FC03 protocol limit.
	MaxReadQuantity = 125
)

// Config is the transport config for one (host, port, unit id) endpoint.
type Config struct {
	Host   string
	Port   int
	UnitID uint8

	ConnectAttempts int
	RetryDelay      time.Duration
	ConnectTimeout  time.Duration

	// RequestTimeout bounds every read/write once connected.
	RequestTimeout time.Duration
	// IdleTimeout closes an unused link; zero keeps the library default.
	IdleTimeout time.Duration
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.UnitID == 0 {
		c.UnitID = DefaultUnitID
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// link is one established Modbus TCP session.
type link interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	Close() error
}

// dialFunc opens a link; timeout bounds the TCP dial only.
type dialFunc func(cfg Config, timeout time.Duration) (link, error)

// Client owns the connection to one Modbus unit.
// Requests are serialized: the goburrow client is not safe for concurrent use.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	link link
	dial dialFunc
}

// New validates cfg and returns an unconnected client.
// The first request (or Connect) establishes the link.
func New(cfg Config, log zerolog.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("transport: host required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("transport: port %d out of range", cfg.Port)
	}
	cfg.applyDefaults()

	return &Client{
		cfg:     cfg,
		log:     log.With().Str("component", "transport").Str("endpoint", cfg.Address()).Uint8("unit_id", cfg.UnitID).Logger(),
		metrics: m,
		dial:    dialTCP,
	}, nil
}

// Config returns the effective config (defaults applied).
func (c *Client) Config() Config {
	return c.cfg
}

// Connected reports whether a link is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Connect establishes the link if absent. It is a no-op when connected.
//
// Up to ConnectAttempts dials are made, RetryDelay apart, all within
// ConnectTimeout counted from the first attempt. Refused, timed-out and
// other connection errors are retried; anything else is returned at once.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.link != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	addr := c.cfg.Address()
	var lastErr error

	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return abandoned(ctx, addr, attempt-1, lastErr)
			case <-t.C:
			}
		}

		// A cancelled caller gets no further dial.
		if ctx.Err() != nil {
			return abandoned(ctx, addr, attempt-1, lastErr)
		}
		timeout := remaining(ctx)
		if timeout <= 0 {
			return abandoned(ctx, addr, attempt-1, lastErr)
		}

		c.log.Debug().Int("attempt", attempt).Dur("timeout", timeout).Msg("connecting")

		l, err := c.dial(c.cfg, timeout)
		err = classify(err)
		c.metrics.ConnectAttempt(outcome(err))
		if err == nil {
			c.link = l
			c.log.Info().Int("attempt", attempt).Msg("connected")
			return nil
		}

		if !IsRetryable(err) {
			return fmt.Errorf("connect %s: %w", addr, err)
		}

		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.cfg.ConnectAttempts).Msg("connect failed")
	}

	return fmt.Errorf("connect %s: %d attempts failed: %w", addr, c.cfg.ConnectAttempts, lastErr)
}

// ReadHoldingRegisters reads quantity registers (FC03) starting at address.
// It returns either all registers or an error; never a partial slice.
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("%w: quantity %d not in 1..%d", ErrInvalidRequest, quantity, MaxReadQuantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := c.link.ReadHoldingRegisters(address, quantity)
	if err = c.finishLocked("read", start, err); err != nil {
		return nil, fmt.Errorf("read holding registers %d+%d: %w", address, quantity, err)
	}

	if len(raw) != int(quantity)*2 {
		c.dropLocked()
		return nil, fmt.Errorf("read holding registers %d+%d: %w: got %d bytes", address, quantity, ErrShortResponse, len(raw))
	}
	return unpackRegisters(raw), nil
}

// WriteSingleRegister writes one register (FC06).
// A device exception comes back as *ProtocolError; the link is kept.
func (c *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err := c.link.WriteSingleRegister(address, value)
	if err = c.finishLocked("write", start, err); err != nil {
		return fmt.Errorf("write single register %d=%d: %w", address, value, err)
	}
	return nil
}

// Close releases the link. Safe to call when already closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	c.log.Debug().Msg("closed")
	return err
}

// finishLocked classifies a request error, records it, and drops the link
// unless the device answered with an exception.
func (c *Client) finishLocked(op string, start time.Time, err error) error {
	err = classify(err)
	c.metrics.ObserveRequest(op, start, err)
	if err == nil {
		return nil
	}
	if !IsProtocol(err) {
		c.log.Warn().Err(err).Str("op", op).Msg("dropping link")
		c.dropLocked()
	}
	return err
}

func (c *Client) dropLocked() {
	if c.link == nil {
		return
	}
	_ = c.link.Close()
	c.link = nil
}

// abandoned reports a connect that stopped before all attempts were made.
// The cause is the caller's cancellation, or ErrTimeout when the connect
// budget ran out; the last dial error stays wrapped as well.
func abandoned(ctx context.Context, addr string, attempts int, lastErr error) error {
	cause := ctx.Err()
	switch {
	case cause == nil, errors.Is(cause, context.DeadlineExceeded):
		cause = ErrTimeout
	}
	if lastErr == nil {
		return fmt.Errorf("connect %s: abandoned after %d attempts: %w", addr, attempts, cause)
	}
	return fmt.Errorf("connect %s: abandoned after %d attempts: %w: %w", addr, attempts, cause, lastErr)
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultConnectTimeout
	}
	return time.Until(deadline)
}

// ---- goburrow link ----

type tcpLink struct {
	modbus.Client
	handler *modbus.TCPClientHandler
}

func (l *tcpLink) Close() error {
	return l.handler.Close()
}

func dialTCP(cfg Config, timeout time.Duration) (link, error) {
	h := modbus.NewTCPClientHandler(cfg.Address())
	h.SlaveId = cfg.UnitID
	h.Timeout = timeout
	if cfg.IdleTimeout > 0 {
		h.IdleTimeout = cfg.IdleTimeout
	}

	if err := h.Connect(); err != nil {
		return nil, err
	}

	// Dial budget no longer applies; every request gets its own deadline.
	h.Timeout = cfg.RequestTimeout

	return &tcpLink{
		Client:  modbus.NewClient(h),
		handler: h,
	}, nil
}
