// Package source implements sample sources: a static stub, line-oriented
// feeds (stdin, serial, TCP, MQTT, file replay) and a direct ADS1115 reader.
package source

import (
	"context"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// Source yields one sample per Read. Read returns a *model.ReadError on
// failure.
type Source interface {
	Name() string
	Read(ctx context.Context) (model.Sample, error)
	Close() error
}

// Static always returns the same reading. It stands in for a sensor during
// development.
type Static struct {
	Sample model.Sample
}

// NewStatic returns the bench reading 516 / 38.0 Hz / 0.19 V / Normal.
func NewStatic() *Static {
	return &Static{Sample: model.Sample{
		ADC:       model.Present(516),
		Frequency: model.Present(38.0),
		Amplitude: model.Present(0.19),
		Status:    model.StatusNormal,
	}}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Read(ctx context.Context) (model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return model.Sample{}, model.NewReadError(model.Timeout, err)
	}
	out := s.Sample
	out.Timestamp = time.Now()
	return out, nil
}

func (s *Static) Close() error { return nil }
