package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockbench/internal/runner"
	"sockbench/internal/stats"
)

func newTestModel(t *testing.T) (Model, *bool) {
	t.Helper()
	r, err := runner.New(runner.Config{
		Message:           "ping",
		RequestsPerSecond: 10,
		Duration:          2 * time.Second,
		Mode:              runner.ModeSocket,
		Target:            "127.0.0.1:9000",
	}, runner.TargetFunc(func(_ context.Context, m string) (string, error) { return m, nil }), nil)
	require.NoError(t, err)

	stopped := false
	return NewModel(r, func() { stopped = true }, make(chan stats.Summary)), &stopped
}

func TestModelSnapshotUpdatesLiveView(t *testing.T) {
	m, _ := newTestModel(t)

	snap := runner.Snapshot{Issued: 10, Total: 20, Inflight: 3}
	snap.Requests = 7
	snap.Fail = 1

	next, cmd := m.Update(snap)
	require.NotNil(t, cmd)
	got := next.(Model)
	assert.EqualValues(t, 10, got.Live.Stats.Issued)
	assert.Contains(t, got.View(), "ISSUED: 10/20")
	assert.Contains(t, got.View(), "127.0.0.1:9000")
}

func TestModelQuitStopsIssuingOnly(t *testing.T) {
	m, stopped := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	got := next.(Model)
	assert.True(t, *stopped)
	assert.True(t, got.Stopping)
	assert.Nil(t, cmd, "program keeps running until the drain finishes")
	assert.Contains(t, got.View(), "draining")
}

func TestModelDoneShowsResult(t *testing.T) {
	m, _ := newTestModel(t)

	next, cmd := m.Update(doneMsg(stats.Summary{TotalSent: 20, TotalSucceeded: 20, SuccessRate: 1, HasData: true}))
	got := next.(Model)
	require.NotNil(t, got.Result)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, got.View(), "Run Complete")
	assert.Contains(t, got.View(), "100.00%")
}

func TestWaitForUpdateReturnsAfterRun(t *testing.T) {
	m, _ := newTestModel(t)
	m.Runner.Run(context.Background())
	for len(m.Runner.Updates) > 0 {
		<-m.Runner.Updates
	}

	got := make(chan tea.Msg, 1)
	go func() { got <- waitForUpdate(m.Runner)() }()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("update command still blocked after the run finished")
	}
}
