// Package export forwards pipeline output to external systems: OTLP metric
// collectors and MQTT brokers.
package export

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	collectorpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

const (
	MetricADC       = "piezo.adc"
	MetricFrequency = "piezo.frequency"
	MetricAmplitude = "piezo.amplitude"

	DefaultServiceName = "piezodash"
	scopeName          = "github.com/tinytelemetry/piezodash/internal/export"
)

// OTLPConfig configures the metrics exporter.
type OTLPConfig struct {
	Endpoint      string
	ServiceName   string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Timeout       time.Duration
}

func (c OTLPConfig) withDefaults() OTLPConfig {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// OTLPExporter records successful samples as OTLP gauge points and ships
// them to a collector over gRPC. Record never blocks: when the queue is
// full the sample is dropped and counted.
type OTLPExporter struct {
	conf    OTLPConfig
	conn    *grpc.ClientConn
	client  collectorpb.MetricsServiceClient
	queue   chan model.Sample
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

// NewOTLPExporter dials the collector lazily and starts the export worker.
func NewOTLPExporter(conf OTLPConfig) (*OTLPExporter, error) {
	conf = conf.withDefaults()
	if conf.Endpoint == "" {
		return nil, &model.ConfigError{Field: "otlp-endpoint", Reason: "must not be empty"}
	}
	conn, err := grpc.NewClient(conf.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp dial %s: %w", conf.Endpoint, err)
	}

	e := &OTLPExporter{
		conf:   conf,
		conn:   conn,
		client: collectorpb.NewMetricsServiceClient(conn),
		queue:  make(chan model.Sample, conf.QueueSize),
		done:   make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e, nil
}

// Record queues a successful sample for export. Failed reads are skipped.
func (e *OTLPExporter) Record(result model.SampleResult) {
	if !result.OK() {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.queue <- result.Sample:
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("export: otlp queue full, %d samples dropped", n)
		}
	}
}

// Dropped returns how many samples were discarded because the queue was full.
func (e *OTLPExporter) Dropped() uint64 { return e.dropped.Load() }

func (e *OTLPExporter) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.conf.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.Sample, 0, e.conf.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.export(batch)
		batch = batch[:0]
	}

	for {
		select {
		case s := <-e.queue:
			batch = append(batch, s)
			if len(batch) >= e.conf.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-e.done:
			for {
				select {
				case s := <-e.queue:
					batch = append(batch, s)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (e *OTLPExporter) export(samples []model.Sample) {
	req := BuildMetricsRequest(e.conf.ServiceName, samples)
	ctx, cancel := context.WithTimeout(context.Background(), e.conf.Timeout)
	defer cancel()

	resp, err := e.client.Export(ctx, req)
	if err != nil {
		log.Printf("export: otlp export of %d samples (%d bytes) failed: %v", len(samples), proto.Size(req), err)
		return
	}
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedDataPoints() > 0 {
		log.Printf("export: otlp collector rejected %d data points: %s", ps.GetRejectedDataPoints(), ps.GetErrorMessage())
	}
}

// Close flushes queued samples and closes the connection.
func (e *OTLPExporter) Close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
		err = e.conn.Close()
	})
	return err
}

// BuildMetricsRequest converts samples into one OTLP request with a gauge
// per reading kind. Absent readings produce no data point.
func BuildMetricsRequest(serviceName string, samples []model.Sample) *collectorpb.ExportMetricsServiceRequest {
	var adc, freq, amp []*metricspb.NumberDataPoint
	for _, s := range samples {
		attrs := []*commonpb.KeyValue{stringAttr("status", string(s.Status))}
		ts := uint64(s.Timestamp.UnixNano())
		if s.ADC.Valid {
			adc = append(adc, point(ts, s.ADC.Value, attrs))
		}
		if s.Frequency.Valid {
			freq = append(freq, point(ts, s.Frequency.Value, attrs))
		}
		if s.Amplitude.Valid {
			amp = append(amp, point(ts, s.Amplitude.Value, attrs))
		}
	}

	var metrics []*metricspb.Metric
	if len(adc) > 0 {
		metrics = append(metrics, gauge(MetricADC, "Raw ADC reading", "1", adc))
	}
	if len(freq) > 0 {
		metrics = append(metrics, gauge(MetricFrequency, "Piezo vibration frequency", "Hz", freq))
	}
	if len(amp) > 0 {
		metrics = append(metrics, gauge(MetricAmplitude, "Piezo signal amplitude", "V", amp))
	}

	return &collectorpb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{stringAttr("service.name", serviceName)},
			},
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: scopeName},
				Metrics: metrics,
			}},
		}},
	}
}

func gauge(name, desc, unit string, points []*metricspb.NumberDataPoint) *metricspb.Metric {
	return &metricspb.Metric{
		Name:        name,
		Description: desc,
		Unit:        unit,
		Data: &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{DataPoints: points},
		},
	}
}

func point(ts uint64, v float64, attrs []*commonpb.KeyValue) *metricspb.NumberDataPoint {
	return &metricspb.NumberDataPoint{
		TimeUnixNano: ts,
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: v},
		Attributes:   attrs,
	}
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}
