package model

import "time"

// Status is the sensor-reported health string. Values other than the
// predefined ones are carried through as-is.
type Status string

const (
	StatusNormal  Status = "Normal"
	StatusError   Status = "Error"
	StatusUnknown Status = "Unknown"
)

// OptFloat is a float64 reading that may be absent.
type OptFloat struct {
	Value float64
	Valid bool
}

// Present wraps v as a present reading.
func Present(v float64) OptFloat {
	return OptFloat{Value: v, Valid: true}
}

// Absent is the zero OptFloat.
var Absent = OptFloat{}

// Or returns the reading when present, fallback otherwise.
func (f OptFloat) Or(fallback float64) float64 {
	if f.Valid {
		return f.Value
	}
	return fallback
}

// Sample is one reading event from a sensor source. Any field may be absent.
type Sample struct {
	Timestamp time.Time
	ADC       OptFloat
	Frequency OptFloat
	Amplitude OptFloat
	Status    Status
}

// SampleResult is the outcome of one source read: either a sample or an error.
type SampleResult struct {
	Sample Sample
	Err    error
}

// OK reports whether the read produced a sample.
func (r SampleResult) OK() bool { return r.Err == nil }

// Result builds a SampleResult from a source's return values.
func Result(s Sample, err error) SampleResult {
	if err != nil {
		return SampleResult{Err: err}
	}
	return SampleResult{Sample: s}
}
