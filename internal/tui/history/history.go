package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sockbench/internal/storage"
	"sockbench/internal/tui/result"
	"sockbench/internal/tui/styles"
)

// Model browses stored runs; enter toggles the detail of the selected run.
type Model struct {
	Records []storage.Record
	Table   table.Model
	Detail  *result.Model

	Width  int
	Height int
}

func NewModel(records []storage.Record) Model {
	columns := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Time", Width: 20},
		{Title: "Target", Width: 24},
		{Title: "RPS", Width: 6},
		{Title: "Sent", Width: 8},
		{Title: "Success", Width: 9},
		{Title: "P95 (ms)", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	t.SetRows(Rows(records))

	return Model{Records: records, Table: t}
}

// Rows renders records as table rows; shared with the plain-text listing.
func Rows(records []storage.Record) []table.Row {
	rows := make([]table.Row, len(records))
	for i, r := range records {
		success, p95 := "n/a", "n/a"
		if r.Summary.HasData {
			success = fmt.Sprintf("%.1f%%", r.Summary.SuccessRate*100)
			p95 = fmt.Sprintf("%.2f", float64(r.Summary.P95Latency)/float64(time.Millisecond))
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows[i] = table.Row{
			id,
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.Config.Target,
			fmt.Sprintf("%d", r.Config.RequestsPerSecond),
			fmt.Sprintf("%d", r.Summary.TotalSent),
			success,
			p95,
		}
	}
	return rows
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.Detail = nil
			return m, nil
		case "enter":
			if m.Detail != nil {
				m.Detail = nil
				return m, nil
			}
			if i := m.Table.Cursor(); i >= 0 && i < len(m.Records) {
				d := result.NewModel(m.Records[i].Summary)
				m.Detail = &d
			}
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Detail != nil {
		return m.Detail.View() + "\n" + styles.RenderKey("Esc", "Back") + "   " + styles.RenderKey("q", "Quit")
	}
	if len(m.Records) == 0 {
		return styles.Subtle.Render("No runs recorded yet.") + "\n"
	}
	return styles.Box.Render(m.Table.View()) + "\n" +
		styles.RenderKey("Enter", "Detail") + "   " + styles.RenderKey("q", "Quit") + "\n"
}
