package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestSummarizeEmpty(t *testing.T) {
	a := NewAggregator()

	var s Summary
	require.NotPanics(t, func() { s = a.Summarize(time.Second) })

	assert.False(t, s.HasData)
	assert.Zero(t, s.TotalSent)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.P95Latency)
	assert.Zero(t, s.Throughput)
	assert.Equal(t, time.Second, s.WallClock)
}

func TestSummarizeStatistics(t *testing.T) {
	a := NewAggregatorWithShards(3)
	// 1..20ms, every 4th one failed
	for i := 1; i <= 20; i++ {
		a.Record(Outcome{Duration: ms(i), Success: i%4 != 0})
	}

	s := a.Summarize(2 * time.Second)
	assert.True(t, s.HasData)
	assert.EqualValues(t, 20, s.TotalSent)
	assert.EqualValues(t, 15, s.TotalSucceeded)
	assert.InDelta(t, 0.75, s.SuccessRate, 1e-9)
	// mean counts failures too: (1+...+20)/20 = 10.5ms
	assert.Equal(t, 10500*time.Microsecond, s.MeanLatency)
	// ceil(0.95*20)-1 = 18 -> 19ms
	assert.Equal(t, ms(19), s.P95Latency)
	assert.Equal(t, ms(20), s.MaxLatency)
	assert.InDelta(t, 7.5, s.Throughput, 1e-9)

	assert.GreaterOrEqual(t, s.P95Latency, s.MeanLatency)
	assert.LessOrEqual(t, s.MeanLatency, s.MaxLatency)
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []time.Duration{ms(1), ms(2), ms(3), ms(4), ms(5)}
	// ceil(0.95*5)-1 = 4
	assert.Equal(t, ms(5), Percentile(sorted, 0.95))
	// ceil(0.5*5)-1 = 2
	assert.Equal(t, ms(3), Percentile(sorted, 0.5))
	assert.Equal(t, ms(1), Percentile(sorted[:1], 0.95))
	assert.Zero(t, Percentile(nil, 0.95))
}

func TestRecordConcurrent(t *testing.T) {
	a := NewAggregator()

	const workers, perWorker = 32, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a.Record(Outcome{Duration: ms(1 + i%7), Success: w%2 == 0})
			}
		}(w)
	}
	wg.Wait()

	s := a.Summarize(time.Second)
	assert.EqualValues(t, workers*perWorker, s.TotalSent)
	assert.EqualValues(t, workers*perWorker/2, s.TotalSucceeded)
	assert.Len(t, a.Outcomes(), workers*perWorker)
	assert.EqualValues(t, workers*perWorker, a.Count())
}

func TestSnapshot(t *testing.T) {
	a := NewAggregatorWithShards(2)
	assert.Zero(t, a.Snapshot().P99Ms)

	for i := 1; i <= 100; i++ {
		a.Record(Outcome{Duration: ms(i), Success: i > 10})
	}
	snap := a.Snapshot()
	assert.EqualValues(t, 100, snap.Requests)
	assert.EqualValues(t, 90, snap.Success)
	assert.EqualValues(t, 10, snap.Fail)
	assert.InDelta(t, 10.0, snap.ErrorRate(), 1e-9)
	assert.InDelta(t, 50, snap.P50Ms, 1)
	assert.InDelta(t, 99, snap.P99Ms, 1)
	assert.InDelta(t, 100, snap.MaxMs, 1)
}

func TestRecordClampsOutOfRange(t *testing.T) {
	a := NewAggregatorWithShards(1)
	a.Record(Outcome{Duration: 0, Success: true})
	a.Record(Outcome{Duration: time.Hour, Success: true})

	s := a.Summarize(time.Second)
	assert.Equal(t, time.Hour, s.MaxLatency)
	assert.EqualValues(t, 2, a.Snapshot().Requests)
}
