// Package tui is the terminal dashboard shown while a run is active.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"sockbench/internal/runner"
	"sockbench/internal/stats"
	"sockbench/internal/tui/live"
	"sockbench/internal/tui/result"
	"sockbench/internal/tui/styles"
)

type doneMsg stats.Summary

// Model drives one run. Quitting early only stops issuance; in-flight requests
// still drain before the program exits.
type Model struct {
	Runner *runner.Runner

	Live   live.Model
	Result *result.Model

	stop     context.CancelFunc
	summary  <-chan stats.Summary
	Stopping bool
	Width    int
	Height   int
}

func NewModel(r *runner.Runner, stop context.CancelFunc, summary <-chan stats.Summary) Model {
	return Model{
		Runner:  r,
		Live:    live.NewModel(r.Cfg.Duration),
		stop:    stop,
		summary: summary,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.Runner),
		waitForSummary(m.summary),
	)
}

// waitForUpdate yields the next snapshot, or nil once the run is over so the
// pending command does not outlive it.
func waitForUpdate(r *runner.Runner) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-r.Updates:
			return s
		case <-r.Done():
			return nil
		}
	}
}

func waitForSummary(sub <-chan stats.Summary) tea.Cmd {
	return func() tea.Msg {
		return doneMsg(<-sub)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.Stopping {
				m.Stopping = true
				m.stop()
			}
		}
		return m, nil

	case runner.Snapshot:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, tea.Batch(cmd, waitForUpdate(m.Runner))

	case doneMsg:
		res := result.NewModel(stats.Summary(msg))
		m.Result = &res
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Result != nil {
		return m.Result.View()
	}

	s := strings.Builder{}
	cfg := m.Runner.Cfg
	s.WriteString(styles.Title.Render("sockbench"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Mode: %s | Target: %s | Rate: %d/s | Duration: %s\n",
		cfg.Mode, cfg.Target, cfg.RequestsPerSecond, cfg.Duration))
	s.WriteString("\n")
	s.WriteString(m.Live.View())
	s.WriteString("\n\n")
	if m.Stopping {
		s.WriteString(styles.Warn.Render(fmt.Sprintf("Stopping: draining %d in-flight requests...", m.Live.Stats.Inflight)))
	} else {
		s.WriteString(styles.RenderKey("q", "Stop"))
	}
	return s.String()
}

// Run executes r under the dashboard and returns its summary. It always waits for
// the run to drain, even when the user quits early.
func Run(ctx context.Context, r *runner.Runner) (stats.Summary, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	summaries := make(chan stats.Summary, 1)
	final := make(chan stats.Summary, 1)
	go func() {
		s := r.Run(runCtx)
		summaries <- s
		final <- s
	}()

	// no alt screen, so the result view stays on the terminal after exit
	p := tea.NewProgram(NewModel(r, stop, summaries))
	if _, err := p.Run(); err != nil {
		stop()
		return <-final, fmt.Errorf("dashboard: %w", err)
	}
	return <-final, nil
}
