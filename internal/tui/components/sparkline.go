package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one-row scrolling chart scaled to the largest visible value.
type Sparkline struct {
	Data  []uint64
	Width int
	// Height is reserved; only one row is drawn.
	Height int
	Max    uint64
	Style  lipgloss.Style
	Label  string
}

func NewSparkline(width, height int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width:  width,
		Height: height,
		Label:  label,
		Style:  style,
		Data:   make([]uint64, 0, width),
	}
}

func (s *Sparkline) Add(val uint64) {
	s.Data = append(s.Data, val)
	if s.Width > 0 && len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}

	s.Max = 0
	for _, v := range s.Data {
		s.Max = max(s.Max, v)
	}
}

// Graph is the bar row without label or styling.
func (s Sparkline) Graph() string {
	var graph strings.Builder
	data := s.Data
	if len(data) > s.Width {
		data = data[len(data)-s.Width:]
	}
	for _, v := range data {
		if s.Max == 0 {
			graph.WriteString(levels[0])
			continue
		}
		idx := int(float64(v) / float64(s.Max) * float64(len(levels)-1))
		idx = min(max(idx, 0), len(levels)-1)
		graph.WriteString(levels[idx])
	}
	if pad := s.Width - len(data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}
	return graph.String()
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}
	return s.Style.Render(s.Label) + "\n" + s.Style.Render(s.Graph())
}
