// Package telemetry holds the bounded rolling history of sensor readings.
package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/ringbuf"
)

// Store owns four equally sized ring buffers (time, adc, frequency,
// amplitude) plus the last-known values and the current status. All four
// buffers advance together or not at all.
type Store struct {
	mu sync.RWMutex

	times       *ringbuf.Buffer[time.Time]
	adc         *ringbuf.Buffer[float64]
	frequency   *ringbuf.Buffer[float64]
	amplitude   *ringbuf.Buffer[float64]
	lastADC     model.OptFloat
	lastFreq    model.OptFloat
	lastAmp     model.OptFloat
	status      model.Status
	ingested    int64
	failedReads int64

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the timestamp source for ingested points.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store retaining at most capacity points per series.
func NewStore(capacity int, opts ...Option) (*Store, error) {
	times, err := ringbuf.New[time.Time](capacity)
	if err != nil {
		return nil, err
	}
	// capacity already validated above
	adc, _ := ringbuf.New[float64](capacity)
	freq, _ := ringbuf.New[float64](capacity)
	amp, _ := ringbuf.New[float64](capacity)

	s := &Store{
		times:     times,
		adc:       adc,
		frequency: freq,
		amplitude: amp,
		status:    model.StatusUnknown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest applies one read outcome.
//
// A sample pushes one point to every series: present fields are pushed and
// remembered, absent or non-finite fields repeat the last known value (0 if
// none yet).
// A failed read pushes nothing and only flips the status to Error.
func (s *Store) Ingest(result model.SampleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !result.OK() {
		s.status = model.StatusError
		s.failedReads++
		return
	}

	sample := result.Sample
	s.times.Push(s.now())
	s.adc.Push(fallback(sample.ADC, &s.lastADC))
	s.frequency.Push(fallback(sample.Frequency, &s.lastFreq))
	s.amplitude.Push(fallback(sample.Amplitude, &s.lastAmp))

	s.status = sample.Status
	if s.status == "" {
		s.status = model.StatusUnknown
	}
	s.ingested++
}

func fallback(v model.OptFloat, last *model.OptFloat) float64 {
	if v.Valid && !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0) {
		*last = v
		return v.Value
	}
	return last.Or(0)
}

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	Times         []time.Time
	ADC           []float64
	Frequency     []float64
	Amplitude     []float64
	LastADC       model.OptFloat
	LastFrequency model.OptFloat
	LastAmplitude model.OptFloat
	Status        model.Status
	Ingested      int64
	FailedReads   int64
}

// Len returns the number of points in the snapshot.
func (s Snapshot) Len() int { return len(s.Times) }

// Snapshot returns a deep copy that is safe to read from any goroutine.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Times:         s.times.Values(),
		ADC:           s.adc.Values(),
		Frequency:     s.frequency.Values(),
		Amplitude:     s.amplitude.Values(),
		LastADC:       s.lastADC,
		LastFrequency: s.lastFreq,
		LastAmplitude: s.lastAmp,
		Status:        s.status,
		Ingested:      s.ingested,
		FailedReads:   s.failedReads,
	}
}

// Capacity returns the per-series point limit.
func (s *Store) Capacity() int { return s.times.Cap() }
