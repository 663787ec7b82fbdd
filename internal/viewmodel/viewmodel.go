// Package viewmodel turns a telemetry snapshot into render-ready data.
package viewmodel

import (
	"fmt"
	"math"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/telemetry"
)

// Display placeholders used when no reading is available.
const (
	ADCPlaceholder       = "ADC Value: --"
	FrequencyPlaceholder = "Frequency: -- Hz"
	AmplitudePlaceholder = "Amplitude: -- V"
)

// StyleClass is the binary status classification.
type StyleClass string

const (
	StyleOK    StyleClass = "ok"
	StyleError StyleClass = "error"
)

// StatusStyle tells the renderer how to paint the status panel.
type StatusStyle struct {
	Class StyleClass `json:"class"`
}

// Point is one (time, value) pair of a chart series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is an index-aligned time series.
type Series struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit"`
	Points []Point `json:"points"`
}

// RenderModel is the immutable structure handed to render sinks once per
// tick. Sinks must treat it as read-only.
type RenderModel struct {
	FrequencySeries  Series      `json:"frequency_series"`
	AmplitudeSeries  Series      `json:"amplitude_series"`
	ADCDisplay       string      `json:"adc_display"`
	FrequencyDisplay string      `json:"frequency_display"`
	AmplitudeDisplay string      `json:"amplitude_display"`
	StatusText       string      `json:"status_text"`
	StatusStyle      StatusStyle `json:"status_style"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// DerivationFault reports a snapshot that could not be turned into a view.
type DerivationFault struct {
	Reason string
}

func (e *DerivationFault) Error() string {
	return "viewmodel: derivation fault: " + e.Reason
}

// ErrorModel is the designated render model shown when derivation fails.
func ErrorModel() RenderModel {
	return RenderModel{
		FrequencySeries:  Series{Name: "Frequency", Unit: "Hz", Points: []Point{}},
		AmplitudeSeries:  Series{Name: "Amplitude", Unit: "V", Points: []Point{}},
		ADCDisplay:       ADCPlaceholder,
		FrequencyDisplay: FrequencyPlaceholder,
		AmplitudeDisplay: AmplitudePlaceholder,
		StatusText:       string(model.StatusError),
		StatusStyle:      StatusStyle{Class: StyleError},
	}
}

// StyleFor classifies a status: only Normal is ok.
func StyleFor(status model.Status) StatusStyle {
	if status == model.StatusNormal {
		return StatusStyle{Class: StyleOK}
	}
	return StatusStyle{Class: StyleError}
}

// Derive builds the render model for snap. Displays show the newest buffered
// point, so a failed read keeps showing the last successfully buffered values.
// On a malformed snapshot it returns ErrorModel and a *DerivationFault.
func Derive(snap telemetry.Snapshot) (RenderModel, error) {
	if err := validate(snap); err != nil {
		return ErrorModel(), err
	}

	rm := RenderModel{
		FrequencySeries:  Series{Name: "Frequency", Unit: "Hz", Points: pair(snap.Times, snap.Frequency)},
		AmplitudeSeries:  Series{Name: "Amplitude", Unit: "V", Points: pair(snap.Times, snap.Amplitude)},
		ADCDisplay:       ADCPlaceholder,
		FrequencyDisplay: FrequencyPlaceholder,
		AmplitudeDisplay: AmplitudePlaceholder,
		StatusText:       string(snap.Status),
		StatusStyle:      StyleFor(snap.Status),
	}

	if n := snap.Len(); n > 0 {
		rm.ADCDisplay = fmt.Sprintf("ADC Value: %.0f", snap.ADC[n-1])
		rm.FrequencyDisplay = fmt.Sprintf("Frequency: %.1f Hz", snap.Frequency[n-1])
		rm.AmplitudeDisplay = fmt.Sprintf("Amplitude: %.2f V", snap.Amplitude[n-1])
		rm.GeneratedAt = snap.Times[n-1]
	}
	return rm, nil
}

func validate(snap telemetry.Snapshot) error {
	n := len(snap.Times)
	if len(snap.ADC) != n || len(snap.Frequency) != n || len(snap.Amplitude) != n {
		return &DerivationFault{Reason: fmt.Sprintf(
			"series length mismatch (time=%d adc=%d frequency=%d amplitude=%d)",
			n, len(snap.ADC), len(snap.Frequency), len(snap.Amplitude))}
	}
	for i := 0; i < n; i++ {
		if !finite(snap.ADC[i]) || !finite(snap.Frequency[i]) || !finite(snap.Amplitude[i]) {
			return &DerivationFault{Reason: fmt.Sprintf("non-finite value at index %d", i)}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func pair(times []time.Time, values []float64) []Point {
	points := make([]Point, len(times))
	for i := range times {
		points[i] = Point{Time: times[i], Value: values[i]}
	}
	return points
}
