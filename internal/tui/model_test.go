package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

func sampleModel(status model.Status) viewmodel.RenderModel {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return viewmodel.RenderModel{
		FrequencySeries: viewmodel.Series{Name: "Frequency", Unit: "Hz", Points: []viewmodel.Point{
			{Time: now, Value: 37.5}, {Time: now.Add(500 * time.Millisecond), Value: 38.0},
		}},
		AmplitudeSeries: viewmodel.Series{Name: "Amplitude", Unit: "V", Points: []viewmodel.Point{
			{Time: now, Value: 0.18}, {Time: now.Add(500 * time.Millisecond), Value: 0.19},
		}},
		ADCDisplay:       "ADC Value: 516",
		FrequencyDisplay: "Frequency: 38.0 Hz",
		AmplitudeDisplay: "Amplitude: 0.19 V",
		StatusText:       string(status),
		StatusStyle:      viewmodel.StyleFor(status),
		GeneratedAt:      now,
	}
}

func sized(t *testing.T, w, h int) *DashboardModel {
	t.Helper()
	m := NewDashboardModel("static")
	m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return m
}

func TestNewDashboardModel_ShowsPlaceholders(t *testing.T) {
	t.Parallel()

	m := NewDashboardModel("static")
	cur := m.Current()
	if cur.ADCDisplay != viewmodel.ADCPlaceholder || cur.StatusText != "Unknown" {
		t.Fatalf("initial model = %+v", cur)
	}
	if got := m.View(); got != "Initializing dashboard..." {
		t.Fatalf("View before size = %q", got)
	}
}

func TestUpdate_RenderMsgReplacesModel(t *testing.T) {
	t.Parallel()

	m := sized(t, 120, 40)
	m.Update(RenderMsg{Model: sampleModel(model.StatusNormal)})

	if m.Current().ADCDisplay != "ADC Value: 516" {
		t.Fatalf("ADCDisplay = %q", m.Current().ADCDisplay)
	}
	view := m.View()
	for _, want := range []string{
		"Piezo Sensor Dashboard",
		"Frequency Over Time",
		"Amplitude Over Time",
		"Current Values",
		"ADC Value: 516",
		"Frequency: 38.0 Hz",
		"Amplitude: 0.19 V",
		"Status",
		"Normal",
		"source: static",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestUpdate_FreezeHoldsScreen(t *testing.T) {
	t.Parallel()

	m := sized(t, 120, 40)
	m.Update(RenderMsg{Model: sampleModel(model.StatusNormal)})
	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.Frozen() {
		t.Fatal("space should freeze the display")
	}

	m.Update(RenderMsg{Model: sampleModel(model.StatusError)})
	if m.Current().StatusText != "Normal" {
		t.Fatalf("frozen display changed to %q", m.Current().StatusText)
	}
	if !strings.Contains(m.View(), "FROZEN (1 skipped)") {
		t.Error("status line should report the frozen state")
	}

	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m.Update(RenderMsg{Model: sampleModel(model.StatusError)})
	if m.Current().StatusText != "Error" {
		t.Fatalf("resumed display = %q, want Error", m.Current().StatusText)
	}
}

func TestUpdate_QuitKeys(t *testing.T) {
	t.Parallel()

	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		m := sized(t, 120, 40)
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("%s: expected quit command", msg)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: command did not quit", msg)
		}
	}
}

func TestUpdate_HelpToggle(t *testing.T) {
	t.Parallel()

	m := sized(t, 120, 40)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if !strings.Contains(m.View(), "force quit") {
		t.Error("full help should list force quit")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if strings.Contains(m.View(), "force quit") {
		t.Error("short help should hide force quit")
	}
}

func TestView_TooSmall(t *testing.T) {
	t.Parallel()

	m := sized(t, 40, 10)
	if !strings.Contains(m.View(), "Terminal too small") {
		t.Fatalf("View() = %q", m.View())
	}
}

func TestView_EmptySeriesPlaceholder(t *testing.T) {
	t.Parallel()

	m := sized(t, 120, 40)
	m.Update(RenderMsg{Model: viewmodel.ErrorModel()})
	view := m.View()
	if !strings.Contains(view, "waiting for data") {
		t.Error("empty series should render a placeholder")
	}
	if !strings.Contains(view, viewmodel.FrequencyPlaceholder) {
		t.Error("error model should show display placeholders")
	}
}
