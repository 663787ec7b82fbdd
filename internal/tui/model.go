// Package tui renders the live piezo dashboard in the terminal.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/telemetry"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const dashboardTitle = "Piezo Sensor Dashboard"

// RenderMsg carries a freshly derived render model into the program.
type RenderMsg struct {
	Model viewmodel.RenderModel
}

// DashboardModel is the Bubble Tea model for the dashboard. It only draws
// what it is sent; the refresh cadence belongs to the scheduler.
type DashboardModel struct {
	source   string
	keys     KeyMap
	help     help.Model
	current  viewmodel.RenderModel
	received bool
	frozen   bool
	showHelp bool
	renders  uint64
	skipped  uint64
	width    int
	height   int
}

// NewDashboardModel creates a dashboard labelled with the source name.
func NewDashboardModel(source string) *DashboardModel {
	// placeholders until the first tick arrives
	initial, _ := viewmodel.Derive(telemetry.Snapshot{Status: model.StatusUnknown})
	return &DashboardModel{
		source:  source,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		current: initial,
	}
}

func (m *DashboardModel) Init() tea.Cmd { return nil }

// Frozen reports whether incoming render models are being ignored.
func (m *DashboardModel) Frozen() bool { return m.frozen }

// Current returns the model on screen.
func (m *DashboardModel) Current() viewmodel.RenderModel { return m.current }
