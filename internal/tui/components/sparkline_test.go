package components

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparklineWindow(t *testing.T) {
	s := NewSparkline(3, 1, "rps", lipgloss.NewStyle())
	for _, v := range []uint64{100, 1, 2, 4} {
		s.Add(v)
	}
	assert.Equal(t, []uint64{1, 2, 4}, s.Data)
	assert.EqualValues(t, 4, s.Max, "max follows the visible window")
}

func TestSparklineGraph(t *testing.T) {
	s := NewSparkline(4, 1, "lat", lipgloss.NewStyle())
	s.Add(0)
	s.Add(8)

	g := s.Graph()
	assert.Equal(t, 4, utf8.RuneCountInString(g))
	assert.Equal(t, " █  ", g)

	empty := NewSparkline(2, 1, "x", lipgloss.NewStyle())
	assert.Equal(t, "  ", empty.Graph())
}
