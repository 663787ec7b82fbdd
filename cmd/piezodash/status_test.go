package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/socketrpc"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

type fakeStatusClient struct {
	render    *viewmodel.RenderModel
	counts    map[string]int64
	countsErr error
}

func (f fakeStatusClient) Stats() (scheduler.Stats, error) {
	return scheduler.Stats{Ticks: 12, Dropped: 1}, nil
}

func (f fakeStatusClient) Render() (viewmodel.RenderModel, error) {
	if f.render == nil {
		return viewmodel.RenderModel{}, &socketrpc.RPCError{Code: socketrpc.CodeUnavailable, Message: "no render yet"}
	}
	return *f.render, nil
}

func (f fakeStatusClient) StatusCounts() (map[string]int64, error) {
	return f.counts, f.countsErr
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := printStatus(&buf, fakeStatusClient{
		render: &viewmodel.RenderModel{
			ADCDisplay:       "ADC Value: 516",
			FrequencyDisplay: "Frequency: 38.0 Hz",
			AmplitudeDisplay: "Amplitude: 0.19 V",
			StatusText:       "Normal",
			StatusStyle:      viewmodel.StatusStyle{Class: viewmodel.StyleOK},
		},
		counts: map[string]int64{"Normal": 10, "Error": 2},
	})
	if err != nil {
		t.Fatalf("printStatus: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ticks 12", "Normal", "Frequency: 38.0 Hz", "history", "Error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Error ") > strings.Index(out, "Normal ") {
		t.Errorf("history statuses not sorted:\n%s", out)
	}
}

func TestPrintStatus_NothingYet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	unavailable := &socketrpc.RPCError{Code: socketrpc.CodeUnavailable, Message: "history is disabled"}
	if err := printStatus(&buf, fakeStatusClient{countsErr: unavailable}); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	if !strings.Contains(buf.String(), "no reading yet") || strings.Contains(buf.String(), "history") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestPrintStatus_QueryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("db closed")
	err := printStatus(&bytes.Buffer{}, fakeStatusClient{countsErr: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
