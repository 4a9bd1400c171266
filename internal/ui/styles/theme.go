package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the palette the task list draws with
type Theme struct {
	Name string

	Background    lipgloss.Color
	Foreground    lipgloss.Color
	ForegroundDim lipgloss.Color

	Primary lipgloss.Color // titles, keys, selection text
	Accent  lipgloss.Color // spinner
	Error   lipgloss.Color // banner, delete prompt

	Border      lipgloss.Color
	BorderFocus lipgloss.Color
	Selection   lipgloss.Color
}

// TokyoNight is the default color theme
var TokyoNight = Theme{
	Name: "Tokyo Night",

	Background:    lipgloss.Color("#1a1b26"),
	Foreground:    lipgloss.Color("#c0caf5"),
	ForegroundDim: lipgloss.Color("#565f89"),

	Primary: lipgloss.Color("#7aa2f7"),
	Accent:  lipgloss.Color("#7dcfff"),
	Error:   lipgloss.Color("#f7768e"),

	Border:      lipgloss.Color("#3b4261"),
	BorderFocus: lipgloss.Color("#7aa2f7"),
	Selection:   lipgloss.Color("#33467c"),
}

// Current holds the active theme
var Current = TokyoNight

// MaxWidth caps the content width so long lines stay readable on wide terminals
const MaxWidth = 80

// ContentWidth returns the smaller of the terminal width and MaxWidth
func ContentWidth(terminalWidth int) int {
	return min(terminalWidth, MaxWidth)
}

// CenterView centers content horizontally when the terminal is wider than MaxWidth
func CenterView(content string, terminalWidth, terminalHeight int) string {
	if terminalWidth <= MaxWidth {
		return content
	}
	return lipgloss.Place(terminalWidth, terminalHeight, lipgloss.Center, lipgloss.Top, content)
}

// Styles holds the pre-computed styles for the task list
type Styles struct {
	TitleBar   lipgloss.Style
	Title      lipgloss.Style
	TitleMuted lipgloss.Style

	ListItem     lipgloss.Style
	ListSelected lipgloss.Style
	TaskDone     lipgloss.Style

	Button        lipgloss.Style
	ButtonPrimary lipgloss.Style
	InputFocused  lipgloss.Style

	Error  lipgloss.Style
	Banner lipgloss.Style
	Popup  lipgloss.Style

	Help    lipgloss.Style
	HelpKey lipgloss.Style
}

// boxed is a rounded border in color with horizontal padding
func boxed(color lipgloss.Color, padX int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, padX)
}

// NewStyles creates styles based on the current theme
func NewStyles() *Styles {
	t := Current
	fg := lipgloss.NewStyle().Foreground(t.Foreground)
	dim := lipgloss.NewStyle().Foreground(t.ForegroundDim)
	accent := lipgloss.NewStyle().Foreground(t.Primary).Bold(true)

	return &Styles{
		TitleBar:   fg.Padding(0, 1).Bold(true),
		Title:      accent,
		TitleMuted: dim,

		ListItem:     fg.Padding(0, 2),
		ListSelected: accent.Background(t.Selection).Padding(0, 2),
		TaskDone:     dim.Strikethrough(true),

		Button:        boxed(t.Border, 2).Foreground(t.Foreground),
		ButtonPrimary: accent.Foreground(t.Background).Background(t.Primary).Padding(0, 2),
		InputFocused:  boxed(t.BorderFocus, 1).Foreground(t.Foreground),

		Error:  lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		Banner: boxed(t.Error, 1).Foreground(t.Error),
		Popup:  boxed(t.Border, 1),

		Help:    dim.Padding(1, 2),
		HelpKey: accent,
	}
}
