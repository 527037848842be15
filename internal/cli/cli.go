// Package cli is the headless front end: a progress line while the run is active,
// then the summary, reports and history.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sockbench/internal/logger"
	"sockbench/internal/report"
	"sockbench/internal/runner"
	"sockbench/internal/stats"
	"sockbench/internal/storage"
)

const refreshInterval = 200 * time.Millisecond

// Start runs r and redraws a progress line on out until every issued request
// has drained.
func Start(ctx context.Context, r *runner.Runner, out io.Writer) stats.Summary {
	printHeader(out, r.Cfg)

	summaries := make(chan stats.Summary, 1)
	go func() { summaries <- r.Run(ctx) }()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Updates:
			// progress is read from the runner directly
		case <-ticker.C:
			fmt.Fprint(out, "\r"+ProgressLine(r.Snapshot(), ctx.Err() != nil))
		case s := <-summaries:
			fmt.Fprint(out, "\r"+ProgressLine(r.Snapshot(), false)+"\n")
			return s
		}
	}
}

// Finish prints the summary, writes reports when an output prefix is set and
// records the run in store when it is non-nil.
func Finish(out io.Writer, r *runner.Runner, s stats.Summary, store *storage.Store) error {
	report.PrintSummary(out, s)

	if prefix := r.Cfg.OutPrefix; prefix != "" {
		fmt.Fprintf(out, "\nGenerating reports with prefix: %s\n", prefix)
		if err := report.ExportAll(r.Stats.Outcomes(), s, prefix); err != nil {
			return err
		}
		fmt.Fprintf(out, "Reports saved to %s.{csv,json} and %s_summary.json\n", prefix, prefix)
	}

	if store != nil {
		rec := storage.NewRecord(r.Cfg, s)
		if err := store.Save(rec); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
		logger.Debug("run saved to history", "id", rec.ID, "path", store.Path())
	}
	return nil
}

// ProgressLine renders one status line for a snapshot.
func ProgressLine(s runner.Snapshot, stopping bool) string {
	pct := 0.0
	if s.Total > 0 {
		pct = float64(s.Issued) / float64(s.Total)
	}
	rps := 0.0
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rps = float64(s.Requests) / secs
	}

	if stopping || (s.Total > 0 && int(s.Issued) >= s.Total && s.Inflight > 0) {
		return fmt.Sprintf("%s %3.0f%% | %s | Draining: %d in flight          ",
			progressBar(pct, 20), pct*100, s.Elapsed.Round(time.Second), s.Inflight)
	}
	return fmt.Sprintf("%s %3.0f%% | %s | Issued: %d/%d | Inf: %3d | RPS: %.1f | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second),
		s.Issued, s.Total,
		s.Inflight,
		rps,
		s.Success,
		s.Fail,
	)
}

func printHeader(out io.Writer, cfg runner.Config) {
	fmt.Fprintf(out, "\nSTARTING SOCKBENCH LOAD RUN\n")
	fmt.Fprintf(out, "======================================================================\n")
	fmt.Fprintf(out, "Mode       : %s\n", cfg.Mode)
	fmt.Fprintf(out, "Target     : %s\n", cfg.Target)
	fmt.Fprintf(out, "Message    : %s\n", cfg.Message)
	fmt.Fprintf(out, "Rate       : %d/s\n", cfg.RequestsPerSecond)
	fmt.Fprintf(out, "Duration   : %s (%d requests)\n", cfg.Duration, cfg.TotalRequests())
	fmt.Fprintf(out, "======================================================================\n\n")
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
