package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds every color the dashboard draws with. The active theme is
// replaced by InitializeSkin.
type Theme struct {
	Title      lipgloss.Color
	Border     lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	StatusBar  lipgloss.Color
	Frequency  lipgloss.Color
	Amplitude  lipgloss.Color
	StatusOK   lipgloss.Color
	StatusErr  lipgloss.Color
	StatusText lipgloss.Color
}

// DefaultTheme paints a normal sensor green and anything else red.
func DefaultTheme() Theme {
	return Theme{
		Title:      lipgloss.Color("#FFFFFF"),
		Border:     lipgloss.Color("#5A6374"),
		Text:       lipgloss.Color("#E6E6E6"),
		Muted:      lipgloss.Color("#8A8F98"),
		StatusBar:  lipgloss.Color("#1F2A44"),
		Frequency:  lipgloss.Color("#3498DB"),
		Amplitude:  lipgloss.Color("#E67E22"),
		StatusOK:   lipgloss.Color("#2ECC71"),
		StatusErr:  lipgloss.Color("#E74C3C"),
		StatusText: lipgloss.Color("#FFFFFF"),
	}
}

var theme = DefaultTheme()

// CurrentTheme returns the theme in use.
func CurrentTheme() Theme { return theme }

func titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Title)
}

func boxStyle(width, height int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(width).
		Height(height)
}

func boxTitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Text)
}

func statusBarStyle() lipgloss.Style {
	return lipgloss.NewStyle().Background(theme.StatusBar).Foreground(theme.Text)
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Muted)
}
