package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// 1us to 10min, 3 significant figures
const (
	histMin     = 1
	histMax     = int64(10 * time.Minute / time.Microsecond)
	histSigFigs = 3
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histMin, histMax, histSigFigs)
}

// shard is one stripe of the aggregator. Recorders only contend on the shard they
// were routed to.
type shard struct {
	mu       sync.Mutex
	outcomes []Outcome
	hist     *hdrhistogram.Histogram

	// keep neighbouring shards off the same cache line
	_ [64]byte
}

func (s *shard) add(o Outcome) {
	us := o.Duration.Microseconds()
	if us < histMin {
		us = histMin
	}

	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	// values above the trackable range are clamped rather than dropped
	if err := s.hist.RecordValue(us); err != nil {
		s.hist.RecordValue(histMax)
	}
	s.mu.Unlock()
}

func (s *shard) mergeInto(dst *hdrhistogram.Histogram) {
	s.mu.Lock()
	dst.Merge(s.hist)
	s.mu.Unlock()
}

func (s *shard) appendTo(dst []Outcome) []Outcome {
	s.mu.Lock()
	dst = append(dst, s.outcomes...)
	s.mu.Unlock()
	return dst
}
