package export

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
	collectorpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"
)

func TestBuildMetricsRequest(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	req := BuildMetricsRequest("bench", []model.Sample{
		{Timestamp: ts, ADC: model.Present(516), Frequency: model.Present(38), Amplitude: model.Present(0.19), Status: model.StatusNormal},
		{Timestamp: ts.Add(time.Second), Frequency: model.Present(39), Status: model.StatusUnknown},
	})

	rm := req.GetResourceMetrics()
	if len(rm) != 1 {
		t.Fatalf("resource metrics = %d, want 1", len(rm))
	}
	attrs := rm[0].GetResource().GetAttributes()
	if len(attrs) != 1 || attrs[0].GetKey() != "service.name" || attrs[0].GetValue().GetStringValue() != "bench" {
		t.Fatalf("resource attrs = %v", attrs)
	}

	got := map[string]int{}
	units := map[string]string{}
	for _, m := range rm[0].GetScopeMetrics()[0].GetMetrics() {
		got[m.GetName()] = len(m.GetGauge().GetDataPoints())
		units[m.GetName()] = m.GetUnit()
	}
	want := map[string]int{MetricADC: 1, MetricFrequency: 2, MetricAmplitude: 1}
	for name, n := range want {
		if got[name] != n {
			t.Errorf("%s points = %d, want %d", name, got[name], n)
		}
	}
	if units[MetricFrequency] != "Hz" || units[MetricAmplitude] != "V" {
		t.Errorf("units = %v", units)
	}
}

func TestBuildMetricsRequest_AllAbsent(t *testing.T) {
	t.Parallel()

	req := BuildMetricsRequest("bench", []model.Sample{{Timestamp: time.Now()}})
	if n := len(req.GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics()); n != 0 {
		t.Fatalf("metrics = %d, want 0", n)
	}
}

type collector struct {
	collectorpb.UnimplementedMetricsServiceServer
	mu     sync.Mutex
	points int
}

func (c *collector) Export(_ context.Context, req *collectorpb.ExportMetricsServiceRequest) (*collectorpb.ExportMetricsServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rm := range req.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				c.points += len(m.GetGauge().GetDataPoints())
			}
		}
	}
	return &collectorpb.ExportMetricsServiceResponse{}, nil
}

func TestOTLPExporter_FlushesOnClose(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	col := &collector{}
	collectorpb.RegisterMetricsServiceServer(srv, col)
	go srv.Serve(lis)
	defer srv.Stop()

	exp, err := NewOTLPExporter(OTLPConfig{Endpoint: lis.Addr().String(), FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewOTLPExporter: %v", err)
	}
	for i := 0; i < 3; i++ {
		exp.Record(model.SampleResult{Sample: model.Sample{
			Timestamp: time.Now(),
			ADC:       model.Present(float64(i)),
			Status:    model.StatusNormal,
		}})
	}
	exp.Record(model.SampleResult{Err: model.NewReadError(model.Timeout, context.DeadlineExceeded)})

	if err := exp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.points != 3 {
		t.Fatalf("collector received %d points, want 3", col.points)
	}
}

func TestNewOTLPExporter_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewOTLPExporter(OTLPConfig{}); err == nil {
		t.Fatal("expected config error for empty endpoint")
	}
}

func TestNewStatePayload(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := NewStatePayload(viewmodel.RenderModel{
		FrequencySeries:  viewmodel.Series{Points: []viewmodel.Point{{Time: now, Value: 37}, {Time: now, Value: 38}}},
		ADCDisplay:       "ADC Value: 516",
		FrequencyDisplay: "Frequency: 38.0 Hz",
		AmplitudeDisplay: "Amplitude: -- V",
		StatusText:       "Normal",
		StatusStyle:      viewmodel.StyleFor(model.StatusNormal),
		GeneratedAt:      now,
	})
	if p.FrequencyHz == nil || *p.FrequencyHz != 38 {
		t.Errorf("FrequencyHz = %v, want 38", p.FrequencyHz)
	}
	if p.AmplitudeV != nil {
		t.Errorf("AmplitudeV = %v, want nil", *p.AmplitudeV)
	}
	if p.StatusClass != "ok" || p.Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("payload = %+v", p)
	}
}

func TestMQTTPublisher_PublishesLatest(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		topics  []string
		payload []byte
	)
	published := make(chan struct{}, 10)
	p := newMQTTPublisher("", true, func(topic string, retained bool, b []byte) error {
		mu.Lock()
		topics = append(topics, topic)
		payload = b
		mu.Unlock()
		published <- struct{}{}
		return nil
	})
	defer p.Close()

	p.Render(viewmodel.RenderModel{StatusText: "Normal", ADCDisplay: "ADC Value: 1"})

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}

	mu.Lock()
	defer mu.Unlock()
	if topics[0] != DefaultMQTTStateTopic {
		t.Errorf("topic = %q, want %q", topics[0], DefaultMQTTStateTopic)
	}
	var got StatePayload
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ADC != "ADC Value: 1" || got.Status != "Normal" {
		t.Errorf("payload = %+v", got)
	}
}

func TestMQTTPublisher_RenderNeverBlocks(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	p := newMQTTPublisher("t", false, func(string, bool, []byte) error {
		<-block
		return nil
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Render(viewmodel.RenderModel{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Render blocked behind a slow broker")
	}
	close(block)
	p.Close()
}
