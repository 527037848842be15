// Package conn implements a single reusable point-to-point connection that connects
// lazily and retries a whole send/receive exchange with exponential backoff.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"sockbench/internal/logger"
	"sockbench/internal/metrics"
)

// DefaultBufferSize is the capacity of the response buffer. Longer responses are
// truncated.
const DefaultBufferSize = 1024

// ErrEmptyMessage is returned without any attempt when there is nothing to send.
var ErrEmptyMessage = errors.New("empty message")

// State is the transport state of a connection.
type State int32

const (
	StateUnconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	default:
		return "unconnected"
	}
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Options struct {
	Policy      RetryPolicy
	DialTimeout time.Duration
	// IOTimeout bounds the write+read of one attempt. Zero means no deadline
	// beyond the caller's context.
	IOTimeout  time.Duration
	BufferSize int
	Dial       DialFunc
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Policy:      DefaultRetryPolicy(),
		DialTimeout: 5 * time.Second,
		IOTimeout:   10 * time.Second,
		BufferSize:  DefaultBufferSize,
	}
}

// ResilientConn is one logical connection to one endpoint. It is not safe for
// concurrent use; whoever holds it (normally via the pool) owns it exclusively.
//
// Transport state survives between exchanges and between pool checkouts. The only
// way back to Unconnected is the transport itself breaking during an attempt.
type ResilientConn struct {
	id       string
	endpoint Endpoint
	opts     Options
	log      *slog.Logger

	conn  net.Conn
	state atomic.Int32
	buf   []byte
}

func New(endpoint Endpoint, opts Options) *ResilientConn {
	opts.Policy = opts.Policy.normalized()
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Dial == nil {
		d := &net.Dialer{KeepAlive: 30 * time.Second}
		opts.Dial = d.DialContext
	}

	id := uuid.NewString()
	return &ResilientConn{
		id:       id,
		endpoint: endpoint,
		opts:     opts,
		log:      logger.Or(opts.Logger).With("conn", id[:8], "endpoint", endpoint.String()),
		buf:      make([]byte, opts.BufferSize),
	}
}

func (c *ResilientConn) ID() string { return c.id }

func (c *ResilientConn) Endpoint() Endpoint { return c.endpoint }

func (c *ResilientConn) State() State {
	return State(c.state.Load())
}

// Exchange sends message and returns the response, retrying the whole attempt
// (connect-if-needed, write, read, decode) under the retry policy. Every failure
// class is retried the same way. When the budget is spent the error is a
// *BudgetExhaustedError wrapping the last failure.
func (c *ResilientConn) Exchange(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", ErrEmptyMessage
	}
	payload := []byte(message)
	policy := c.opts.Policy

	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, payload)
		if err == nil {
			metrics.ExchangeAttempts.WithLabelValues(metrics.Result(true)).Inc()
			return resp, nil
		}
		metrics.ExchangeAttempts.WithLabelValues(metrics.Result(false)).Inc()

		if attempt >= policy.MaxAttempts {
			c.log.Warn("exchange failed, retry budget exhausted",
				"attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
			return "", &BudgetExhaustedError{Attempts: attempt, Last: err}
		}

		delay := policy.Delay(attempt)
		c.log.Warn("exchange attempt failed",
			"attempt", attempt, "max_attempts", policy.MaxAttempts, "backoff", delay, "error", err)
		if serr := sleep(ctx, delay); serr != nil {
			return "", fmt.Errorf("exchange aborted after attempt %d: %w", attempt, serr)
		}
	}
}

// Connect establishes the transport if it is not up yet. It makes a single attempt.
func (c *ResilientConn) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	nc, err := c.opts.Dial(dialCtx, "tcp", c.endpoint.String())
	if err != nil {
		return &TransportError{Op: "dial", Addr: c.endpoint.String(), Err: err}
	}
	c.conn = nc
	c.state.Store(int32(StateConnected))
	c.log.Debug("connected")
	return nil
}

// Close tears down the transport. Only used on shutdown; the pool never calls it on
// release.
func (c *ResilientConn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateUnconnected))
	return err
}

func (c *ResilientConn) attempt(ctx context.Context, payload []byte) (string, error) {
	if err := c.Connect(ctx); err != nil {
		return "", err
	}

	addr := c.endpoint.String()
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		c.broken()
		return "", &TransportError{Op: "deadline", Addr: addr, Err: err}
	}

	if _, err := c.conn.Write(payload); err != nil {
		c.broken()
		return "", &TransportError{Op: "write", Addr: addr, Err: err}
	}

	n, err := c.conn.Read(c.buf)
	if err != nil {
		c.broken()
		if n == 0 {
			return "", &TransportError{Op: "read", Addr: addr, Err: err}
		}
	}
	if n == 0 {
		return "", &ProtocolError{Reason: "empty response"}
	}

	data := c.buf[:n]
	if n == len(c.buf) {
		data = trimPartialRune(data)
	}
	if !utf8.Valid(data) {
		return "", &ProtocolError{Reason: fmt.Sprintf("response of %d bytes is not valid UTF-8", n)}
	}
	return string(data), nil
}

// trimPartialRune drops a multi-byte sequence cut short at the end of a full
// buffer. Anything else that is not UTF-8 is left for the caller to reject.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// deadline is the earlier of the IO timeout and the context deadline.
func (c *ResilientConn) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.opts.IOTimeout > 0 {
		d = time.Now().Add(c.opts.IOTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (d.IsZero() || dl.Before(d)) {
		d = dl
	}
	return d
}

// broken discards a transport that failed mid-attempt so the next attempt redials.
func (c *ResilientConn) broken() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(StateUnconnected))
}
