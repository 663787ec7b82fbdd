package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

// Sender is the part of *tea.Program the sink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramSink forwards render models into a running Bubble Tea program.
// Render never blocks; if the program falls behind, only the newest model
// is kept.
type ProgramSink struct {
	program Sender
	pending chan viewmodel.RenderModel
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewProgramSink starts the forwarding goroutine.
func NewProgramSink(p Sender) *ProgramSink {
	s := &ProgramSink{
		program: p,
		pending: make(chan viewmodel.RenderModel, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.forward()
	return s
}

func (s *ProgramSink) Render(rm viewmodel.RenderModel) {
	for {
		select {
		case s.pending <- rm:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

func (s *ProgramSink) forward() {
	defer s.wg.Done()
	for {
		select {
		case rm := <-s.pending:
			s.program.Send(RenderMsg{Model: rm})
		case <-s.done:
			return
		}
	}
}

// Close stops forwarding. Call it before the program exits so Send is not
// left blocked.
func (s *ProgramSink) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
