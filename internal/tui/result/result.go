package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sockbench/internal/stats"
	"sockbench/internal/tui/styles"
)

// Model shows the summary of a finished run.
type Model struct {
	Summary stats.Summary

	Width  int
	Height int
}

func NewModel(s stats.Summary) Model {
	return Model{Summary: s}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}
	sum := m.Summary

	s.WriteString(styles.Title.Render("Run Complete"))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Overview"))
	s.WriteString("\n")
	overview := fmt.Sprintf(
		"Sent:       %d\nSucceeded:  %d\nFailed:     %d\nWall Clock: %s",
		sum.TotalSent, sum.TotalSucceeded, sum.TotalSent-sum.TotalSucceeded,
		sum.WallClock.Round(time.Millisecond),
	)
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Latency (retries included)"))
	s.WriteString("\n")
	latency := "No requests completed."
	if sum.HasData {
		latency = fmt.Sprintf(
			"Success Rate: %s\nThroughput:   %.2f req/s\nMean:         %s\nP95:          %s\nMax:          %s",
			rateStyle(sum.SuccessRate).Render(fmt.Sprintf("%.2f%%", sum.SuccessRate*100)),
			sum.Throughput,
			ms(sum.MeanLatency), ms(sum.P95Latency), ms(sum.MaxLatency),
		)
	}
	s.WriteString(styles.Box.Render(latency))
	s.WriteString("\n")

	return s.String()
}

func rateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= 0.99:
		return styles.Success
	case rate >= 0.95:
		return styles.Warn
	default:
		return styles.Error
	}
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}
