// Package scheduler drives the read → ingest → derive → render cycle on a
// fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/telemetry"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

// Source yields one sample per call. Implementations should honor ctx; the
// scheduler abandons a read once the read timeout expires either way.
type Source interface {
	Name() string
	Read(ctx context.Context) (model.Sample, error)
}

// Sink consumes render models. Render must not block for long and must not
// modify the model.
type Sink interface {
	Render(rm viewmodel.RenderModel)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rm viewmodel.RenderModel)

func (f SinkFunc) Render(rm viewmodel.RenderModel) { f(rm) }

// Recorder observes every read outcome after it was ingested (history,
// exporters). Record must not block.
type Recorder interface {
	Record(result model.SampleResult)
}

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Config holds the tick cadence and the collaborators fed each tick.
type Config struct {
	TickInterval time.Duration
	ReadTimeout  time.Duration
	Sinks        []Sink
	Recorders    []Recorder
}

// Validate fills zero durations with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.TickInterval == 0 {
		c.TickInterval = model.DefaultTickInterval
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = min(model.DefaultReadTimeout, c.TickInterval)
	}
	if c.TickInterval < 0 {
		return &model.ConfigError{Field: "tick-interval", Reason: "must be positive"}
	}
	if c.ReadTimeout < 0 || c.ReadTimeout > c.TickInterval {
		return &model.ConfigError{
			Field:  "read-timeout",
			Reason: fmt.Sprintf("must be in (0, %s], got %s", c.TickInterval, c.ReadTimeout),
		}
	}
	return nil
}

// Stats are cumulative tick counters.
type Stats struct {
	Ticks   uint64
	Dropped uint64
}

// Scheduler runs ticks strictly one at a time. A tick that comes due while
// the previous one is still running is dropped so the cadence holds.
type Scheduler struct {
	source    Source
	store     *telemetry.Store
	sinks     []Sink
	recorders []Recorder
	interval  time.Duration
	timeout   time.Duration

	state    atomic.Int32
	inFlight atomic.Bool
	ticks    atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex // guards cancel and serializes Start with Stop
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an idle scheduler.
func New(source Source, store *telemetry.Store, conf Config) (*Scheduler, error) {
	if source == nil || store == nil {
		return nil, errors.New("scheduler: source and store are required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		source:    source,
		store:     store,
		sinks:     append([]Sink(nil), conf.Sinks...),
		recorders: append([]Recorder(nil), conf.Recorders...),
		interval:  conf.TickInterval,
		timeout:   conf.ReadTimeout,
	}, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Stats returns the tick counters.
func (s *Scheduler) Stats() Stats {
	return Stats{Ticks: s.ticks.Load(), Dropped: s.dropped.Load()}
}

// Start moves the scheduler from idle to running. The first tick fires
// immediately, later ones every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("scheduler: cannot start from state %s", s.State())
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop halts future ticks and waits for an in-flight tick to finish. The
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateStopped))
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.drop()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.runTick(ctx)
	}()
}

// Tick runs one cycle synchronously, for tests and external event loops.
// It returns false when the tick was dropped because another one is in
// flight or the scheduler is stopped.
func (s *Scheduler) Tick(ctx context.Context) (viewmodel.RenderModel, bool) {
	if s.State() == StateStopped {
		return viewmodel.RenderModel{}, false
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.drop()
		return viewmodel.RenderModel{}, false
	}
	defer s.inFlight.Store(false)
	return s.runTick(ctx), true
}

func (s *Scheduler) drop() {
	n := s.dropped.Add(1)
	log.Printf("scheduler: tick dropped, previous tick still running (%d dropped so far)", n)
}

func (s *Scheduler) runTick(ctx context.Context) (rm viewmodel.RenderModel) {
	s.ticks.Add(1)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: recovered from tick panic: %v", r)
			rm = viewmodel.ErrorModel()
			s.deliver(rm)
		}
	}()

	result := s.read(ctx)
	if !result.OK() {
		log.Printf("scheduler: read from %s failed: %v", s.source.Name(), result.Err)
	}
	s.store.Ingest(result)
	for _, r := range s.recorders {
		r.Record(result)
	}

	rm, err := viewmodel.Derive(s.store.Snapshot())
	if err != nil {
		log.Printf("scheduler: %v", err)
	}
	s.deliver(rm)
	return rm
}

type readOutcome struct {
	sample model.Sample
	err    error
}

// read bounds the source call by the read timeout.
func (s *Scheduler) read(ctx context.Context) model.SampleResult {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan readOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- readOutcome{err: model.NewReadError(model.Disconnected, fmt.Errorf("source panic: %v", r))}
			}
		}()
		sample, err := s.source.Read(rctx)
		done <- readOutcome{sample: sample, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			out.err = model.NewReadError(model.Timeout, out.err)
		}
		return model.Result(out.sample, out.err)
	case <-rctx.Done():
		return model.SampleResult{Err: model.NewReadError(model.Timeout, rctx.Err())}
	}
}

func (s *Scheduler) deliver(rm viewmodel.RenderModel) {
	for _, sink := range s.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("scheduler: sink panic: %v", r)
				}
			}()
			sink.Render(rm)
		}()
	}
}
