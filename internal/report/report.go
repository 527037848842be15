// Package report writes run results to disk and to the console.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"sockbench/internal/stats"
)

const label = "sockbench exchange"

var csvHeader = []string{
	"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
	"threadName", "dataType", "success", "failureMessage", "bytes",
	"sentBytes", "grpThreads", "allThreads", "URL", "Latency", "IdleTime", "Connect",
}

// ExportCSV writes one JMeter-style row per outcome.
func ExportCSV(outcomes []stats.Outcome, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteCSV(f, outcomes); err != nil {
		return err
	}
	return f.Close()
}

func WriteCSV(out io.Writer, outcomes []stats.Outcome) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, o := range outcomes {
		elapsed := strconv.FormatInt(o.Duration.Milliseconds(), 10)
		code, msg := "200", "OK"
		if !o.Success {
			code, msg = "500", "Failed"
		}
		record := []string{
			strconv.FormatInt(o.Timestamp.UnixMilli(), 10),
			elapsed,
			label,
			code,
			msg,
			o.RequestID,
			"text",
			strconv.FormatBool(o.Success),
			o.Err,
			"0", "0", "1", "1", "",
			elapsed,
			"0", "0",
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ExportJSON writes the raw outcomes.
func ExportJSON(outcomes []stats.Outcome, filename string) error {
	if outcomes == nil {
		outcomes = []stats.Outcome{}
	}
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// ExportSummary writes the summary to prefix_summary.json.
func ExportSummary(summary stats.Summary, prefix string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(prefix+"_summary.json", data, 0644)
}

// ExportAll writes prefix.csv, prefix.json and prefix_summary.json.
func ExportAll(outcomes []stats.Outcome, summary stats.Summary, prefix string) error {
	if err := ExportCSV(outcomes, prefix+".csv"); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	if err := ExportJSON(outcomes, prefix+".json"); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	if err := ExportSummary(summary, prefix); err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	return nil
}

// PrintSummary writes the end-of-run block. Rate and latency lines read "n/a" when
// nothing was recorded.
func PrintSummary(w io.Writer, s stats.Summary) {
	fmt.Fprintf(w, "\nLOAD TEST RESULTS\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Wall Clock     : %s\n", s.WallClock.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests Sent  : %d\n", s.TotalSent)
	fmt.Fprintf(w, "Succeeded      : %d\n", s.TotalSucceeded)
	fmt.Fprintf(w, "Failed         : %d\n", s.TotalSent-s.TotalSucceeded)
	fmt.Fprintf(w, "Success Rate   : %s\n", orNA(s.HasData, fmt.Sprintf("%.2f%%", s.SuccessRate*100)))
	fmt.Fprintf(w, "Throughput     : %s\n", orNA(s.HasData, fmt.Sprintf("%.2f req/s", s.Throughput)))
	fmt.Fprintf(w, "\nLATENCY (all requests, retries included)\n")
	fmt.Fprintf(w, "   Mean : %s\n", orNA(s.HasData, ms(s.MeanLatency)))
	fmt.Fprintf(w, "   P95  : %s\n", orNA(s.HasData, ms(s.P95Latency)))
	fmt.Fprintf(w, "   Max  : %s\n", orNA(s.HasData, ms(s.MaxLatency)))
	fmt.Fprintf(w, "======================================================================\n")
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}

func orNA(ok bool, v string) string {
	if !ok {
		return "n/a"
	}
	return v
}
