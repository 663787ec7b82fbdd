package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// wireSample is the JSON line shape. Missing or null fields are absent.
type wireSample struct {
	ADC       *float64 `json:"adc"`
	Frequency *float64 `json:"frequency"`
	Amplitude *float64 `json:"amplitude"`
	Status    string   `json:"status"`
}

// ParseLine decodes one sensor line. Two shapes are accepted:
//
//	{"adc":516,"frequency":38.0,"amplitude":0.19,"status":"Normal"}
//	516,38.0,0.19,Normal
//
// In the CSV form an empty field is absent and the status column is
// optional. A missing status becomes Unknown.
func ParseLine(line string) (model.Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Sample{}, malformed(errors.New("empty line"))
	}
	if strings.HasPrefix(line, "{") {
		return parseJSON(line)
	}
	return parseCSV(line)
}

func parseJSON(line string) (model.Sample, error) {
	var w wireSample
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return model.Sample{}, malformed(err)
	}
	return model.Sample{
		ADC:       fromPtr(w.ADC),
		Frequency: fromPtr(w.Frequency),
		Amplitude: fromPtr(w.Amplitude),
		Status:    statusOrUnknown(w.Status),
	}, nil
}

func parseCSV(line string) (model.Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return model.Sample{}, malformed(fmt.Errorf("want 3 or 4 fields, got %d", len(fields)))
	}

	var values [3]model.OptFloat
	for i := 0; i < 3; i++ {
		f := strings.TrimSpace(fields[i])
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return model.Sample{}, malformed(fmt.Errorf("field %d: %w", i+1, err))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Sample{}, malformed(fmt.Errorf("field %d: non-finite value %q", i+1, f))
		}
		values[i] = model.Present(v)
	}

	status := ""
	if len(fields) == 4 {
		status = strings.TrimSpace(fields[3])
	}
	return model.Sample{
		ADC:       values[0],
		Frequency: values[1],
		Amplitude: values[2],
		Status:    statusOrUnknown(status),
	}, nil
}

func fromPtr(p *float64) model.OptFloat {
	if p == nil {
		return model.Absent
	}
	return model.Present(*p)
}

func statusOrUnknown(s string) model.Status {
	if s == "" {
		return model.StatusUnknown
	}
	return model.Status(s)
}

func malformed(err error) error {
	return model.NewReadError(model.MalformedData, err)
}
