package model

import "time"

// HistoryRecord is one persisted tick outcome. Nil readings were absent in
// the sample; failed reads carry the error text and the Error status.
type HistoryRecord struct {
	Timestamp time.Time `json:"timestamp"`
	ADC       *float64  `json:"adc"`
	Frequency *float64  `json:"frequency"`
	Amplitude *float64  `json:"amplitude"`
	Status    string    `json:"status"`
	ReadError string    `json:"read_error,omitempty"`
}

// HistoryFromResult converts a tick's read outcome into a HistoryRecord.
// now stamps failed reads, which have no sample timestamp.
func HistoryFromResult(r SampleResult, now time.Time) HistoryRecord {
	if !r.OK() {
		return HistoryRecord{
			Timestamp: now,
			Status:    string(StatusError),
			ReadError: r.Err.Error(),
		}
	}
	ts := r.Sample.Timestamp
	if ts.IsZero() {
		ts = now
	}
	status := r.Sample.Status
	if status == "" {
		status = StatusUnknown
	}
	return HistoryRecord{
		Timestamp: ts,
		ADC:       r.Sample.ADC.ptr(),
		Frequency: r.Sample.Frequency.ptr(),
		Amplitude: r.Sample.Amplitude.ptr(),
		Status:    string(status),
	}
}

func (f OptFloat) ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// HistoryWriter appends tick outcomes to persistent storage.
type HistoryWriter interface {
	InsertSampleBatch(records []HistoryRecord) error
}

// HistoryReader is the read contract for persisted history, used by the
// HTTP API.
type HistoryReader interface {
	RecentSamples(limit int) ([]HistoryRecord, error)
	TotalSampleCount() (int64, error)
	StatusCounts() (map[string]int64, error)
}
