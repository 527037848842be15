package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sockbench/internal/runner"
	"sockbench/internal/tui/components"
	"sockbench/internal/tui/styles"
)

// Model renders the live state of one run.
type Model struct {
	Stats    runner.Snapshot
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	Duration   time.Duration
	LastUpdate time.Time
	LastReqs   uint64

	Width  int
	Height int
}

func NewModel(totalDur time.Duration) Model {
	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, 1, "Completed/s", styles.Active),
		LatencyLine: components.NewSparkline(40, 1, "Latency P90 (ms)", styles.Warn),
		Duration:    totalDur,
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.Snapshot:
		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		rps := float64(msg.Requests-m.LastReqs) / dt
		m.RpsLine.Add(uint64(rps))
		m.LatencyLine.Add(uint64(msg.P90Ms))

		m.Stats = msg
		m.LastReqs = msg.Requests
		m.LastUpdate = now

		return m, m.Progress.SetPercent(m.percent())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 4
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// percent is issuance progress; it reaches 1 once every request has been issued.
func (m Model) percent() float64 {
	if m.Stats.Total > 0 {
		return min(float64(m.Stats.Issued)/float64(m.Stats.Total), 1.0)
	}
	if m.Duration > 0 {
		return min(float64(m.Stats.Elapsed)/float64(m.Duration), 1.0)
	}
	return 0
}

func (m Model) View() string {
	s := strings.Builder{}

	errRate := m.Stats.ErrorRate()
	var errColor lipgloss.Style
	switch {
	case errRate > 5.0:
		errColor = styles.Error
	case errRate > 1.0:
		errColor = styles.Warn
	default:
		errColor = styles.Active
	}

	col1 := fmt.Sprintf("ISSUED: %d/%d\nINF: %d", m.Stats.Issued, m.Stats.Total, m.Stats.Inflight)
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, m.Stats.Fail)
	col3 := fmt.Sprintf("DONE: %d\nTIME: %s", m.Stats.Requests, m.Stats.Elapsed.Round(time.Second))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(errColor.Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	latencies := fmt.Sprintf(
		"P50: %.2f ms  |  P90: %.2f ms  |  P99: %.2f ms  |  Max: %.2f ms",
		m.Stats.P50Ms, m.Stats.P90Ms, m.Stats.P99Ms, m.Stats.MaxMs,
	)
	width := m.Width - 4
	if width < 20 {
		width = 80
	}
	s.WriteString(styles.Box.Width(width).Render(latencies))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())

	return s.String()
}
