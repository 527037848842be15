// Package runner drives a constant-rate, fixed-duration request campaign and reports
// the aggregate outcome.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"sockbench/internal/logger"
	"sockbench/internal/metrics"
	"sockbench/internal/stats"
)

// Runner executes one run. Run may be called more than once; later calls wait for
// the first and return its summary.
type Runner struct {
	Cfg   Config
	Stats *stats.Aggregator

	target  Target
	message *MessageTemplate
	log     *slog.Logger

	issued    atomic.Uint64
	inflight  atomic.Int64
	startedAt atomic.Int64
	started   atomic.Bool
	done      chan struct{}
	summary   stats.Summary

	// Updates receives a snapshot every tick of the update loop while the run is
	// active. Sends never block.
	Updates StatsUpdateChan
}

func New(cfg Config, target Target, updates StatsUpdateChan) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	msg, err := ParseMessage(cfg.Message)
	if err != nil {
		return nil, err
	}
	if updates == nil {
		updates = make(StatsUpdateChan, 10)
	}

	return &Runner{
		Cfg:     cfg,
		Stats:   stats.NewAggregator(),
		target:  target,
		message: msg,
		log:     logger.With("component", "runner"),
		done:    make(chan struct{}),
		Updates: updates,
	}, nil
}

// Run issues the campaign and blocks until every issued request has finished.
//
// The first batch goes out immediately, then one batch per second. Issuing stops when
// the request total is reached, the duration elapses or ctx is cancelled. Requests
// already dispatched are never cancelled: they run on a context detached from ctx and
// are drained before the summary is computed.
func (r *Runner) Run(ctx context.Context) stats.Summary {
	if !r.started.CompareAndSwap(false, true) {
		<-r.done
		return r.summary
	}
	defer close(r.done)

	total := r.Cfg.TotalRequests()
	rps := r.Cfg.RequestsPerSecond
	start := time.Now()
	r.startedAt.Store(start.UnixNano())

	r.log.Info("load run started",
		"rps", rps, "duration", r.Cfg.Duration, "total", total, "spacing", r.Cfg.Spacing())

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	r.StartTickLoop(loopCtx, 200*time.Millisecond)

	reqCtx := context.WithoutCancel(ctx)
	var batches, requests conc.WaitGroup

	// scheduled is owned by this loop; batches only see their own size.
	scheduled, tick := 0, 0
	issue := func() {
		n := min(rps, total-scheduled)
		scheduled += n
		tick++
		t := tick
		batches.Go(func() { r.issueBatch(reqCtx, t, n, total, &requests) })
	}

	ticker := time.NewTicker(time.Second)
	deadline := time.NewTimer(r.Cfg.Duration)
	if ctx.Err() == nil && total > 0 {
		issue()
	}

loop:
	for scheduled < total {
		select {
		case <-ctx.Done():
			r.log.Info("load run cancelled, no further ticks", "scheduled", scheduled, "total", total)
			break loop
		case <-deadline.C:
			break loop
		case <-ticker.C:
			issue()
		}
	}
	ticker.Stop()
	deadline.Stop()

	batches.Wait()
	r.log.Info("issuing finished, draining in-flight requests",
		"issued", r.issued.Load(), "inflight", r.inflight.Load())
	requests.Wait()

	summary := r.Stats.Summarize(time.Since(start))
	r.summary = summary
	r.sendUpdate()
	r.log.Info("load run complete",
		"sent", summary.TotalSent, "succeeded", summary.TotalSucceeded, "wall", summary.WallClock)
	return summary
}

func (r *Runner) issueBatch(ctx context.Context, tick, n, total int, requests *conc.WaitGroup) {
	spacing := r.Cfg.Spacing()
	for i := 0; i < n; i++ {
		seq := r.issued.Add(1)
		requests.Go(func() { r.execute(ctx, seq) })

		// no delay after the last request of the tick
		if spacing > 0 && i < n-1 {
			time.Sleep(spacing)
		}
	}
	r.log.Debug("batch issued", "tick", tick, "size", n, "issued", r.issued.Load(), "total", total)
}

func (r *Runner) execute(ctx context.Context, seq uint64) {
	start := time.Now()
	r.inflight.Add(1)
	metrics.Inflight.Inc()
	defer func() {
		r.inflight.Add(-1)
		metrics.Inflight.Dec()
	}()

	out := stats.Outcome{Timestamp: start, RequestID: uuid.NewString()}
	defer func() {
		if p := recover(); p != nil {
			out.Success = false
			out.Err = fmt.Sprintf("panic: %v", p)
			r.log.Error("request panicked", "seq", seq, "panic", p)
		}
		out.Duration = time.Since(start)
		r.Stats.Record(out)
		metrics.RequestsTotal.WithLabelValues(metrics.Result(out.Success)).Inc()
		metrics.RequestDuration.Observe(out.Duration.Seconds())
	}()

	msg, err := r.message.Render(TemplateData{Seq: seq, RequestID: out.RequestID})
	if err != nil {
		out.Err = err.Error()
		return
	}

	resp, err := r.target.Send(ctx, msg)
	switch {
	case err != nil:
		out.Err = err.Error()
	case resp != msg:
		out.Err = fmt.Sprintf("response mismatch: got %d bytes, want %d", len(resp), len(msg))
		r.log.Debug("response does not match request", "seq", seq, "got", len(resp), "want", len(msg))
	default:
		out.Success = true
	}
}

// StartTickLoop pushes a snapshot to Updates every interval until ctx is done.
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

func (r *Runner) sendUpdate() {
	// Non-blocking send; the display acts as backpressure
	select {
	case r.Updates <- r.Snapshot():
	default:
	}
}

func (r *Runner) Snapshot() Snapshot {
	s := Snapshot{
		Snapshot: r.Stats.Snapshot(),
		Issued:   r.issued.Load(),
		Total:    r.Cfg.TotalRequests(),
		Inflight: r.inflight.Load(),
	}
	if started := r.startedAt.Load(); started != 0 {
		s.Elapsed = time.Since(time.Unix(0, started))
	}
	return s
}

// Issued is the number of requests dispatched so far.
func (r *Runner) Issued() uint64 {
	return r.issued.Load()
}

func (r *Runner) GetInflight() int64 {
	return r.inflight.Load()
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
