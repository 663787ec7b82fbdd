package tui

import (
	"math"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/linechart/timeserieslinechart"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	minChartWidth  = 10
	minChartHeight = 4
	// a lone point still needs a visible time span
	minTimeSpan = 2 * time.Second
)

// renderSeriesChart draws s as a braille line chart of the given size.
// An empty series renders a placeholder instead of axes.
func renderSeriesChart(s viewmodel.Series, width, height int, color lipgloss.Color) string {
	if width < minChartWidth || height < minChartHeight {
		return ""
	}
	if len(s.Points) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
			mutedStyle().Render("waiting for data"))
	}

	tmin, tmax := timeBounds(s.Points)
	ymin, ymax := valueBounds(s.Points)

	chart := timeserieslinechart.New(width, height,
		timeserieslinechart.WithStyle(lipgloss.NewStyle().Foreground(color)),
		timeserieslinechart.WithXLabelFormatter(timeserieslinechart.HourTimeLabelFormatter()),
	)
	chart.SetTimeRange(tmin, tmax)
	chart.SetViewTimeRange(tmin, tmax)
	chart.SetYRange(ymin, ymax)
	chart.SetViewYRange(ymin, ymax)
	for _, p := range s.Points {
		chart.Push(timeserieslinechart.TimePoint{Time: p.Time, Value: p.Value})
	}
	chart.DrawBraille()
	return chart.View()
}

func timeBounds(points []viewmodel.Point) (time.Time, time.Time) {
	tmin, tmax := points[0].Time, points[0].Time
	for _, p := range points[1:] {
		if p.Time.Before(tmin) {
			tmin = p.Time
		}
		if p.Time.After(tmax) {
			tmax = p.Time
		}
	}
	if tmax.Sub(tmin) < minTimeSpan {
		tmin = tmax.Add(-minTimeSpan)
	}
	return tmin, tmax
}

// valueBounds pads the data range by 10% so the line never sits on an axis.
func valueBounds(points []viewmodel.Point) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	span := hi - lo
	if span == 0 {
		span = math.Max(math.Abs(hi), 1)
	}
	pad := span * 0.1
	return lo - pad, hi + pad
}

// chartBox frames a chart with its title inside a rounded border.
func chartBox(title string, s viewmodel.Series, width, height int, color lipgloss.Color) string {
	innerW := max(width-2, 0)
	innerH := max(height-2, 0)
	label := boxTitleStyle().Render(title)
	if s.Unit != "" {
		label += mutedStyle().Render(" (" + s.Unit + ")")
	}
	body := renderSeriesChart(s, innerW, max(innerH-1, 0), color)
	content := strings.Join([]string{label, body}, "\n")
	return boxStyle(innerW, innerH).Render(content)
}
