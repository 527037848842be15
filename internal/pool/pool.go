// Package pool hands out reusable resilient connections. Released handles always go
// back to the idle set with their transport untouched.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"sockbench/internal/conn"
	"sockbench/internal/logger"
	"sockbench/internal/metrics"
)

// Factory creates a new, unconnected handle when the idle set is empty.
type Factory func() *conn.ResilientConn

type Config struct {
	// MaxSize caps the handles checked out at once. Zero means unbounded.
	MaxSize int
	Logger  *slog.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Created int64 `json:"created"`
	Idle    int   `json:"idle"`
	InUse   int   `json:"in_use"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

type Pool struct {
	factory Factory
	sem     *semaphore.Weighted
	maxSize int
	log     *slog.Logger

	mu     sync.Mutex
	idle   []*conn.ResilientConn
	leased map[*conn.ResilientConn]struct{}
	closed bool

	created atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(factory Factory, cfg Config) *Pool {
	p := &Pool{
		factory: factory,
		log:     logger.Or(cfg.Logger).With("component", "pool"),
		leased:  make(map[*conn.ResilientConn]struct{}),
	}
	if cfg.MaxSize > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.MaxSize))
		p.maxSize = cfg.MaxSize
	}
	return p
}

// NewForEndpoint builds a pool whose handles dial ep with opts.
func NewForEndpoint(ep conn.Endpoint, opts conn.Options, cfg Config) *Pool {
	return New(func() *conn.ResilientConn {
		return conn.New(ep, opts)
	}, cfg)
}

// Acquire returns an idle handle, or a new one when none is idle. With a size bound it
// waits for a free slot until ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*conn.ResilientConn, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, &Error{Op: "acquire", Err: err}
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.releaseSlot()
		return nil, &Error{Op: "acquire", Err: ErrClosed}
	}

	var (
		c           *conn.ResilientConn
		idle, inUse int
	)
	if n := len(p.idle); n > 0 {
		c = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.leased[c] = struct{}{}
		idle, inUse = len(p.idle), len(p.leased)
		p.mu.Unlock()
		p.hits.Add(1)
	} else {
		p.mu.Unlock()
		c = p.factory()
		p.created.Add(1)
		p.misses.Add(1)

		p.mu.Lock()
		p.leased[c] = struct{}{}
		idle, inUse = len(p.idle), len(p.leased)
		p.mu.Unlock()
	}

	setGauges(idle, inUse)
	return c, nil
}

// Release returns c to the idle set regardless of how its last exchange went. Releasing
// a handle that is not checked out is ignored.
func (p *Pool) Release(c *conn.ResilientConn) {
	if c == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.leased[c]; !ok {
		p.mu.Unlock()
		p.log.Warn("release of a handle that is not checked out", "conn", c.ID())
		return
	}
	delete(p.leased, c)
	if p.closed {
		p.mu.Unlock()
		c.Close()
		p.releaseSlot()
		return
	}
	p.idle = append(p.idle, c)
	idle, inUse := len(p.idle), len(p.leased)
	p.mu.Unlock()

	p.releaseSlot()
	setGauges(idle, inUse)
}

// Warmup checks out n handles, spacing the checkouts, connects each and returns them all.
// It reports how many connected. On a bounded pool n is capped at the size bound, since
// every warmed handle is held until all of them have connected.
func (p *Pool) Warmup(ctx context.Context, n int, spacing time.Duration) (int, error) {
	if p.maxSize > 0 && n > p.maxSize {
		p.log.Info("warmup capped at pool size", "requested", n, "max_size", p.maxSize)
		n = p.maxSize
	}

	var (
		wg        conc.WaitGroup
		connected atomic.Int64
		handles   []*conn.ResilientConn
	)
	err := func() error {
		for i := 0; i < n; i++ {
			c, err := p.Acquire(ctx)
			if err != nil {
				return err
			}
			handles = append(handles, c)

			wg.Go(func() {
				if err := c.Connect(ctx); err != nil {
					p.log.Warn("warmup connect failed", "conn", c.ID(), "error", err)
					return
				}
				connected.Add(1)
			})

			if spacing > 0 && i < n-1 {
				select {
				case <-time.After(spacing):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	}()

	wg.Wait()
	for _, c := range handles {
		p.Release(c)
	}

	if err != nil {
		return int(connected.Load()), err
	}
	p.log.Info("pool warmed up", "requested", n, "connected", connected.Load())
	return int(connected.Load()), nil
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle, inUse := len(p.idle), len(p.leased)
	p.mu.Unlock()

	return Stats{
		Created: p.created.Load(),
		Idle:    idle,
		InUse:   inUse,
		Hits:    p.hits.Load(),
		Misses:  p.misses.Load(),
	}
}

// Close closes every idle transport. Handles still checked out are closed when they
// come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	s := p.Stats()
	setGauges(s.Idle, s.InUse)
	return nil
}

func (p *Pool) releaseSlot() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// setGauges publishes counts taken inside the caller's critical section, so an
// Acquire or Release locks the pool once per state change.
func setGauges(idle, inUse int) {
	metrics.PoolHandles.WithLabelValues("idle").Set(float64(idle))
	metrics.PoolHandles.WithLabelValues("in_use").Set(float64(inUse))
}
