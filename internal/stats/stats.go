// Package stats collects per-request outcomes from concurrent requesters and turns them
// into run summaries.
package stats

import (
	"math"
	"runtime"
	"slices"
	"sync/atomic"
	"time"
)

// Outcome is the recorded result of one logical request, retries included.
type Outcome struct {
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// Summary is derived once, after recording has stopped.
type Summary struct {
	TotalSent      uint64        `json:"total_sent"`
	TotalSucceeded uint64        `json:"total_succeeded"`
	SuccessRate    float64       `json:"success_rate"`
	MeanLatency    time.Duration `json:"mean_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	WallClock      time.Duration `json:"wall_clock"`
	Throughput     float64       `json:"throughput"`

	// HasData is false when nothing was recorded; rate and latency fields are then
	// zero and must be read as "no data".
	HasData bool `json:"has_data"`
}

// Snapshot is a live, approximate view used by progress displays.
type Snapshot struct {
	Requests uint64
	Success  uint64
	Fail     uint64

	P50Ms float64
	P90Ms float64
	P99Ms float64
	MaxMs float64
}

// Aggregator is safe for concurrent Record calls. Outcomes are striped across shards
// so concurrent requests do not queue on one lock.
type Aggregator struct {
	shards []shard
	next   atomic.Uint64

	requests atomic.Uint64
	success  atomic.Uint64
	fail     atomic.Uint64
}

func NewAggregator() *Aggregator {
	return NewAggregatorWithShards(runtime.GOMAXPROCS(0) * 4)
}

func NewAggregatorWithShards(n int) *Aggregator {
	if n < 1 {
		n = 1
	}
	a := &Aggregator{shards: make([]shard, n)}
	for i := range a.shards {
		a.shards[i].hist = newHistogram()
	}
	return a
}

// Record appends an outcome.
func (a *Aggregator) Record(o Outcome) {
	idx := a.next.Add(1) % uint64(len(a.shards))
	a.shards[idx].add(o)

	a.requests.Add(1)
	if o.Success {
		a.success.Add(1)
	} else {
		a.fail.Add(1)
	}
}

// Count returns the number of recorded outcomes.
func (a *Aggregator) Count() uint64 {
	return a.requests.Load()
}

// Outcomes returns a copy of every recorded outcome, in no particular order.
func (a *Aggregator) Outcomes() []Outcome {
	out := make([]Outcome, 0, a.requests.Load())
	for i := range a.shards {
		out = a.shards[i].appendTo(out)
	}
	return out
}

// Summarize computes the run summary. The caller must make sure recording has
// finished; wall is the run's wall-clock duration.
func (a *Aggregator) Summarize(wall time.Duration) Summary {
	return Summarize(a.Outcomes(), wall)
}

// Summarize computes a Summary over outcomes. Latency statistics include failed
// requests; the p95 uses the nearest-rank rule.
func Summarize(outcomes []Outcome, wall time.Duration) Summary {
	s := Summary{
		TotalSent: uint64(len(outcomes)),
		WallClock: wall,
	}
	if len(outcomes) == 0 {
		return s
	}
	s.HasData = true

	latencies := make([]time.Duration, len(outcomes))
	var sum time.Duration
	for i, o := range outcomes {
		latencies[i] = o.Duration
		sum += o.Duration
		if o.Success {
			s.TotalSucceeded++
		}
	}
	slices.Sort(latencies)

	s.SuccessRate = float64(s.TotalSucceeded) / float64(s.TotalSent)
	s.MeanLatency = sum / time.Duration(len(latencies))
	s.P95Latency = Percentile(latencies, 0.95)
	s.MaxLatency = latencies[len(latencies)-1]
	if wall > 0 {
		s.Throughput = float64(s.TotalSucceeded) / wall.Seconds()
	}
	return s
}

// Percentile returns the smallest sample such that at least q of the samples are <= it.
// sorted must be ascending; q is in (0, 1].
func Percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(math.Ceil(q*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// Snapshot merges the shard histograms into a live view.
func (a *Aggregator) Snapshot() Snapshot {
	merged := newHistogram()
	for i := range a.shards {
		a.shards[i].mergeInto(merged)
	}

	s := Snapshot{
		Requests: a.requests.Load(),
		Success:  a.success.Load(),
		Fail:     a.fail.Load(),
	}
	if merged.TotalCount() > 0 {
		s.P50Ms = float64(merged.ValueAtQuantile(50)) / 1000.0
		s.P90Ms = float64(merged.ValueAtQuantile(90)) / 1000.0
		s.P99Ms = float64(merged.ValueAtQuantile(99)) / 1000.0
		s.MaxMs = float64(merged.Max()) / 1000.0
	}
	return s
}

// ErrorRate is the live failure percentage.
func (s Snapshot) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return (float64(s.Fail) / float64(s.Requests)) * 100
}
