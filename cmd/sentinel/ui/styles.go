// Package ui provides the visual styling for the sentinel terminal client.
// The palette is a phosphor-terminal look: green on near-black, amber for
// warnings, red for alerts.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Terminal palette
	Background = lipgloss.Color("#0a0f0a")
	Foreground = lipgloss.Color("#c8e6c9") // pale phosphor
	Primary    = lipgloss.Color("#4caf50") // phosphor green
	Accent     = lipgloss.Color("#80cbc4") // cold teal, SENTINEL's voice
	Muted      = lipgloss.Color("#546e5a")
	Border     = lipgloss.Color("#2e4632")
	Card       = lipgloss.Color("#101810")

	// Semantic colors
	Destructive = lipgloss.Color("#ef5350") // alerts, suspicion
	Warning     = lipgloss.Color("#ffb300") // time warnings, amber
	Info        = lipgloss.Color("#64b5f6")
	Mystery     = lipgloss.Color("#ce93d8") // the third channel
)

// Theme holds the current color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
}

// TerminalTheme returns the default phosphor theme.
func TerminalTheme() Theme {
	return Theme{
		Background: Background,
		Foreground: Foreground,
		Primary:    Primary,
		Accent:     Accent,
		Muted:      Muted,
		Border:     Border,
		Card:       Card,
	}
}

// MonoTheme strips color for dumb terminals.
func MonoTheme() Theme {
	none := lipgloss.Color("")
	return Theme{
		Background: none,
		Foreground: none,
		Primary:    none,
		Accent:     none,
		Muted:      none,
		Border:     none,
		Card:       none,
	}
}

// DetectTheme picks mono when the terminal reports no color support.
func DetectTheme() Theme {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return MonoTheme()
	}
	return TerminalTheme()
}

// Styles holds all the styled components used by the chat interface.
type Styles struct {
	Theme Theme

	// Layout
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	// Text
	Title    lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Speakers
	Prompt    lipgloss.Style
	UserInput lipgloss.Style
	Sentinel  lipgloss.Style
	Intruder  lipgloss.Style // third-party channel insertions

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Status bar gauges
	Trust     lipgloss.Style
	Suspicion lipgloss.Style
	Sync      lipgloss.Style

	// Components
	Spinner lipgloss.Style
	Divider lipgloss.Style
	Badge   lipgloss.Style
	Panel   lipgloss.Style
	Overlay lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),

		Content: lipgloss.NewStyle().
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Sentinel: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Intruder: lipgloss.NewStyle().
			Foreground(Mystery).
			Italic(true),

		Success: lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Trust: lipgloss.NewStyle().
			Foreground(Primary),

		Suspicion: lipgloss.NewStyle().
			Foreground(Destructive),

		Sync: lipgloss.NewStyle().
			Foreground(Mystery),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(theme.Background).
			Padding(0, 1).
			Bold(true),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Overlay: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(theme.Primary).
			Padding(1, 3),
	}
}

// DefaultStyles returns styles with the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// Logo returns the SENTINEL boot banner.
func Logo(s Styles) string {
	logo := `
  ___  ___  _  _  _____  ___  _  _  ___  _
 / __|| __|| \| ||_   _||_ _|| \| || __|| |
 \__ \| _| |  ' |  | |   | | |  ' || _| | |__
 |___/|___||_|\_|  |_|  |___||_|\_||___||____|
`
	return s.Title.Render(logo)
}

// RenderDivider returns a horizontal divider of the given width.
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
