package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	minWidth  = 60
	minHeight = 16
	// share of the width given to the chart column
	chartColumnRatio = 0.7
)

// View renders the dashboard
func (m *DashboardModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Initializing dashboard..."
	}
	if m.width < minWidth || m.height < minHeight {
		return fmt.Sprintf("Terminal too small. Resize to at least %dx%d.", minWidth, minHeight)
	}

	title := lipgloss.PlaceHorizontal(m.width, lipgloss.Center, titleStyle().Render(dashboardTitle))
	footer := m.renderStatusLine()
	helpView := m.help.View(m.keys)

	bodyHeight := m.height - lipgloss.Height(title) - lipgloss.Height(footer) - lipgloss.Height(helpView)
	body := m.renderBody(m.width, bodyHeight)

	return lipgloss.JoinVertical(lipgloss.Left, title, body, helpView, footer)
}

func (m *DashboardModel) renderBody(width, height int) string {
	leftW := int(float64(width) * chartColumnRatio)
	rightW := width - leftW

	topH := height / 2
	bottomH := height - topH
	charts := lipgloss.JoinVertical(lipgloss.Left,
		chartBox("Frequency Over Time", m.current.FrequencySeries, leftW, topH, theme.Frequency),
		chartBox("Amplitude Over Time", m.current.AmplitudeSeries, leftW, bottomH, theme.Amplitude),
	)

	valuesH := 6
	statusH := height - valuesH
	side := lipgloss.JoinVertical(lipgloss.Left,
		m.renderCurrentValues(rightW, valuesH),
		m.renderStatusBox(rightW, statusH),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, charts, side)
}

func (m *DashboardModel) renderCurrentValues(width, height int) string {
	lines := []string{
		boxTitleStyle().Render("Current Values"),
		"",
		m.current.ADCDisplay,
		m.current.FrequencyDisplay,
		m.current.AmplitudeDisplay,
	}
	return boxStyle(width-2, height-2).Foreground(theme.Text).Render(strings.Join(lines, "\n"))
}

func (m *DashboardModel) renderStatusBox(width, height int) string {
	bg := theme.StatusErr
	if m.current.StatusStyle.Class == viewmodel.StyleOK {
		bg = theme.StatusOK
	}
	badge := lipgloss.NewStyle().
		Background(bg).
		Foreground(theme.StatusText).
		Bold(true).
		Padding(0, 2).
		Render(m.current.StatusText)

	content := lipgloss.JoinVertical(lipgloss.Left, boxTitleStyle().Render("Status"), "", badge)
	return boxStyle(width-2, max(height-2, 3)).Render(content)
}

// renderStatusLine renders the status line at the bottom of the screen
func (m *DashboardModel) renderStatusLine() string {
	left := fmt.Sprintf(" source: %s | renders: %d", m.source, m.renders)
	if !m.received {
		left += " | waiting for first tick"
	}
	right := "live "
	if m.frozen {
		right = fmt.Sprintf("FROZEN (%d skipped) ", m.skipped)
	}
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return statusBarStyle().Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
