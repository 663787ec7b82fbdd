package duckdb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

func TestInsertBuffer_RecordAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Record(model.SampleResult{Sample: model.Sample{
			Timestamp: time.Now(),
			ADC:       model.Present(float64(i)),
			Status:    model.StatusNormal,
		}})
	}
	buf.Record(model.SampleResult{Err: model.NewReadError(model.Disconnected, errors.New("port gone"))})

	// Stop flushes everything pending.
	buf.Stop()

	count, err := store.TotalSampleCount()
	if err != nil {
		t.Fatalf("TotalSampleCount: %v", err)
	}
	if count != 11 {
		t.Errorf("after Stop, TotalSampleCount = %d, want 11", count)
	}
	counts, err := store.StatusCounts()
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts["Error"] != 1 {
		t.Errorf("Error rows = %d, want 1", counts["Error"])
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 10, FlushInterval: time.Hour})

	for i := 0; i < 35; i++ {
		buf.Add(model.HistoryRecord{Timestamp: time.Now(), Status: "Normal"})
	}
	buf.Stop()

	count, err := store.TotalSampleCount()
	if err != nil {
		t.Fatalf("TotalSampleCount: %v", err)
	}
	if count != 35 {
		t.Errorf("TotalSampleCount = %d, want 35", count)
	}
}

type countingWriter struct {
	mu      sync.Mutex
	batches int
	rows    int
}

func (w *countingWriter) InsertSampleBatch(records []model.HistoryRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches++
	w.rows += len(records)
	return nil
}

func TestInsertBuffer_ConcurrentAddAndStop(t *testing.T) {
	w := &countingWriter{}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 5, FlushQueueSize: 1})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				buf.Add(model.HistoryRecord{Timestamp: time.Now(), Status: "Normal"})
			}
		}()
	}
	wg.Wait()
	buf.Stop()
	buf.Stop()

	// Adds after Stop are ignored.
	buf.Add(model.HistoryRecord{Timestamp: time.Now(), Status: "Normal"})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rows != 200 {
		t.Fatalf("rows written = %d, want 200", w.rows)
	}
}
