package banner

import (
	"github.com/charmbracelet/lipgloss"

	"sockbench/internal/tui/styles"
)

const ascii = `
                 _    _                     _
 ___  ___   ___ | | _| |__   ___ _ __   ___| |__
/ __|/ _ \ / __|| |/ / '_ \ / _ \ '_ \ / __| '_ \
\__ \ (_) | (__ |   <| |_) |  __/ | | | (__| | | |
|___/\___/ \___||_|\_\_.__/ \___|_| |_|\___|_| |_|`

// GetString is the startup banner, styled for the current terminal.
func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n"
}
