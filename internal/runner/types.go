package runner

import (
	"errors"
	"fmt"
	"time"

	"sockbench/internal/stats"
)

const (
	ModeSocket = "socket"
	ModeHTTP   = "http"

	DefaultMessage        = "{{uuid}}"
	DefaultPacingFraction = 0.9
)

// Config is fixed for the lifetime of a run.
type Config struct {
	// Message is sent on every request; it may be a template (see MessageTemplate).
	Message           string        `json:"message"`
	RequestsPerSecond int           `json:"requests_per_second"`
	Duration          time.Duration `json:"duration"`
	// PacingFraction spaces issuances within a tick by this fraction of 1/rps.
	PacingFraction float64 `json:"pacing_fraction"`

	// Target selection, used by the command layer to build the Target.
	Mode     string        `json:"mode"`
	Target   string        `json:"target"`
	PoolSize int           `json:"pool_size,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`

	OutPrefix string `json:"out_prefix,omitempty"`
}

func (c Config) Validate() error {
	var errs []error
	if c.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("requests per second must be positive, got %d", c.RequestsPerSecond))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %s", c.Duration))
	}
	if c.PacingFraction < 0 || c.PacingFraction > 1 {
		errs = append(errs, fmt.Errorf("pacing fraction must be within [0, 1], got %g", c.PacingFraction))
	}
	if c.Message == "" {
		errs = append(errs, errors.New("message must not be empty"))
	}
	return errors.Join(errs...)
}

// TotalRequests is duration (in seconds) times the rate, rounded down. It is computed
// in integer nanoseconds so whole products stay exact.
func (c Config) TotalRequests() int {
	return int(c.Duration * time.Duration(c.RequestsPerSecond) / time.Second)
}

// Spacing is the delay between two issuances inside one tick.
func (c Config) Spacing() time.Duration {
	if c.RequestsPerSecond <= 0 {
		return 0
	}
	return time.Duration(c.PacingFraction * float64(time.Second) / float64(c.RequestsPerSecond))
}

// Snapshot is pushed to progress displays while a run is active.
type Snapshot struct {
	stats.Snapshot

	Issued   uint64
	Total    int
	Inflight int64
	Elapsed  time.Duration
}

// StatsUpdateChan carries live snapshots to a display.
type StatsUpdateChan chan Snapshot
