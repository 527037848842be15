package runner

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockbench/internal/conn"
	"sockbench/internal/echo"
	"sockbench/internal/pool"
)

func echoTarget() Target {
	return TargetFunc(func(_ context.Context, msg string) (string, error) { return msg, nil })
}

func baseConfig(rps int, d time.Duration) Config {
	return Config{
		Message:           DefaultMessage,
		RequestsPerSecond: rps,
		Duration:          d,
		PacingFraction:    DefaultPacingFraction,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, baseConfig(10, time.Second).Validate())

	bad := Config{RequestsPerSecond: 0, Duration: 0, PacingFraction: 2}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests per second")
	assert.Contains(t, err.Error(), "duration")
	assert.Contains(t, err.Error(), "pacing")
	assert.Contains(t, err.Error(), "message")

	_, err = New(bad, echoTarget(), nil)
	assert.Error(t, err)
}

func TestConfigDerived(t *testing.T) {
	c := baseConfig(10, 2*time.Second)
	assert.Equal(t, 20, c.TotalRequests())
	assert.Equal(t, 90*time.Millisecond, c.Spacing())

	c = baseConfig(350, 2500*time.Millisecond)
	assert.Equal(t, 875, c.TotalRequests())

	for _, tc := range []struct {
		rps  int
		d    time.Duration
		want int
	}{
		{100, 2300 * time.Millisecond, 230},
		{100, 290 * time.Millisecond, 29},
		{3, 700 * time.Millisecond, 2},
		{7, 100 * time.Millisecond, 0},
	} {
		assert.Equal(t, tc.want, baseConfig(tc.rps, tc.d).TotalRequests(), "%d/s for %s", tc.rps, tc.d)
	}
}

func TestParseMessage(t *testing.T) {
	plain, err := ParseMessage("hello")
	require.NoError(t, err)
	got, err := plain.Render(TemplateData{Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	ids, err := ParseMessage(DefaultMessage)
	require.NoError(t, err)
	a, err := ids.Render(TemplateData{})
	require.NoError(t, err)
	b, err := ids.Render(TemplateData{})
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)

	seq, err := ParseMessage("req-{{seq}}-{{requestID}}")
	require.NoError(t, err)
	got, err = seq.Render(TemplateData{Seq: 7, RequestID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "req-7-abc", got)

	_, err = ParseMessage("{{ broken")
	assert.Error(t, err)
}

func TestMessageRandomLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\n\nbeta\n"), 0o644))

	m, err := ParseMessage(`{{randomLine "` + path + `"}}`)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := m.Render(TemplateData{})
		require.NoError(t, err)
		assert.Contains(t, []string{"alpha", "beta"}, got)
	}

	missing, err := ParseMessage(`{{randomLine "/does/not/exist"}}`)
	require.NoError(t, err)
	_, err = missing.Render(TemplateData{})
	assert.Error(t, err)
}

func TestRunIssuesExactTotalAndDrains(t *testing.T) {
	srv, err := echo.Start(echo.ServerConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer srv.Close()
	ep, err := conn.ParseEndpoint(srv.Addr())
	require.NoError(t, err)

	p := pool.NewForEndpoint(ep, conn.DefaultOptions(), pool.Config{})
	defer p.Close()

	r, err := New(baseConfig(10, 2*time.Second), PoolTarget{Pool: p}, nil)
	require.NoError(t, err)

	summary := r.Run(context.Background())

	assert.EqualValues(t, 20, r.Issued())
	assert.EqualValues(t, 20, summary.TotalSent)
	assert.EqualValues(t, r.Issued(), summary.TotalSent)
	assert.EqualValues(t, 20, summary.TotalSucceeded)
	assert.InDelta(t, 1.0, summary.SuccessRate, 1e-9)
	assert.Zero(t, r.GetInflight())
	assert.True(t, summary.HasData)
	assert.Greater(t, summary.Throughput, 0.0)
	assert.Zero(t, p.Stats().InUse)

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Run")
	}
}

func TestRunFractionalDurationIssuesFullTotal(t *testing.T) {
	cfg := baseConfig(100, 290*time.Millisecond)
	cfg.PacingFraction = 0
	r, err := New(cfg, echoTarget(), nil)
	require.NoError(t, err)

	summary := r.Run(context.Background())
	assert.EqualValues(t, 29, r.Issued())
	assert.EqualValues(t, 29, summary.TotalSent)
}

func TestRunUnreachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep, err := conn.ParseEndpoint(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	opts := conn.DefaultOptions()
	opts.Policy = conn.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 3, MaxDelay: 5 * time.Millisecond}
	p := pool.NewForEndpoint(ep, opts, pool.Config{})
	defer p.Close()

	r, err := New(baseConfig(5, time.Second), PoolTarget{Pool: p}, nil)
	require.NoError(t, err)

	summary := r.Run(context.Background())
	assert.EqualValues(t, 5, summary.TotalSent)
	assert.Zero(t, summary.TotalSucceeded)
	assert.Zero(t, summary.SuccessRate)
	assert.True(t, summary.HasData)
	for _, o := range r.Stats.Outcomes() {
		assert.False(t, o.Success)
		assert.Contains(t, o.Err, "3 attempts")
	}
}

func TestRunRecordsRetriedRequestDuration(t *testing.T) {
	srv, err := echo.Start(echo.ServerConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer srv.Close()
	ep, err := conn.ParseEndpoint(srv.Addr())
	require.NoError(t, err)

	var dials atomic.Int32
	d := &net.Dialer{}
	opts := conn.DefaultOptions()
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if dials.Add(1) <= 2 {
			return nil, errors.New("refused")
		}
		return d.DialContext(ctx, network, addr)
	}
	p := pool.NewForEndpoint(ep, opts, pool.Config{})
	defer p.Close()

	r, err := New(baseConfig(1, time.Second), PoolTarget{Pool: p}, nil)
	require.NoError(t, err)

	summary := r.Run(context.Background())
	require.EqualValues(t, 1, summary.TotalSent)
	assert.EqualValues(t, 1, summary.TotalSucceeded)

	outcomes := r.Stats.Outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.GreaterOrEqual(t, outcomes[0].Duration, 1600*time.Millisecond)
}

func TestRunCancelStopsTicksButDrains(t *testing.T) {
	var sawCancelled atomic.Int32
	slow := TargetFunc(func(ctx context.Context, msg string) (string, error) {
		time.Sleep(300 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancelled.Add(1)
		}
		return msg, nil
	})

	r, err := New(baseConfig(5, 10*time.Second), slow, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(1500*time.Millisecond, cancel)

	start := time.Now()
	summary := r.Run(ctx)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, r.Issued(), uint64(50))
	assert.GreaterOrEqual(t, r.Issued(), uint64(5))
	assert.EqualValues(t, r.Issued(), summary.TotalSent, "every issued request is recorded")
	assert.Equal(t, summary.TotalSent, summary.TotalSucceeded)
	assert.Zero(t, sawCancelled.Load(), "in-flight requests keep a live context")
	assert.Zero(t, r.GetInflight())
}

func TestRunAlreadyCancelled(t *testing.T) {
	r, err := New(baseConfig(5, time.Second), echoTarget(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := r.Run(ctx)
	assert.Zero(t, summary.TotalSent)
	assert.False(t, summary.HasData)
}

func TestRunFailurePredicates(t *testing.T) {
	var n atomic.Int32
	target := TargetFunc(func(_ context.Context, msg string) (string, error) {
		switch n.Add(1) % 4 {
		case 0:
			panic("boom")
		case 1:
			return "", errors.New("exchange failed")
		case 2:
			return strings.ToUpper(msg) + "!", nil
		default:
			return msg, nil
		}
	})

	cfg := baseConfig(8, time.Second)
	cfg.PacingFraction = 0
	r, err := New(cfg, target, nil)
	require.NoError(t, err)

	summary := r.Run(context.Background())
	assert.EqualValues(t, 8, summary.TotalSent)
	assert.EqualValues(t, 2, summary.TotalSucceeded)

	var panics, mismatches int
	for _, o := range r.Stats.Outcomes() {
		if strings.HasPrefix(o.Err, "panic") {
			panics++
		}
		if strings.HasPrefix(o.Err, "response mismatch") {
			mismatches++
		}
		assert.NotEmpty(t, o.RequestID)
		assert.False(t, o.Timestamp.IsZero())
	}
	assert.Equal(t, 2, panics)
	assert.Equal(t, 2, mismatches)
}

func TestRunPublishesSnapshots(t *testing.T) {
	updates := make(StatsUpdateChan, 100)
	r, err := New(baseConfig(4, time.Second), echoTarget(), updates)
	require.NoError(t, err)

	r.Run(context.Background())
	require.NotEmpty(t, updates)

	var last Snapshot
	for len(updates) > 0 {
		last = <-updates
	}
	assert.EqualValues(t, 4, last.Requests)
	assert.EqualValues(t, 4, last.Issued)
	assert.Equal(t, 4, last.Total)
	assert.Greater(t, last.Elapsed, time.Duration(0))
}

func TestHTTPTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/exchange", req.URL.Path)
		msg := req.URL.Query().Get("message")
		if msg == "fail" {
			http.Error(w, "backend down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(msg))
	}))
	defer srv.Close()

	target := NewHTTPTarget(srv.URL+"/", 2*time.Second)

	resp, err := target.Send(context.Background(), "a b&c=d")
	require.NoError(t, err)
	assert.Equal(t, "a b&c=d", resp)

	_, err = target.Send(context.Background(), "fail")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Contains(t, se.Error(), "backend down")
}

func TestRunTwiceReturnsFirstSummary(t *testing.T) {
	r, err := New(baseConfig(3, time.Second), echoTarget(), nil)
	require.NoError(t, err)

	first := r.Run(context.Background())
	second := r.Run(context.Background())

	assert.Equal(t, first, second)
	assert.EqualValues(t, 3, r.Issued(), "second call issues nothing")
	assert.EqualValues(t, 3, r.Stats.Count())
}

func TestRunConcurrentCallersShareOneRun(t *testing.T) {
	r, err := New(baseConfig(4, time.Second), echoTarget(), nil)
	require.NoError(t, err)

	results := make(chan uint64, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- r.Run(context.Background()).TotalSent }()
	}
	assert.EqualValues(t, 4, <-results)
	assert.EqualValues(t, 4, <-results)
	assert.EqualValues(t, 4, r.Issued())
}
