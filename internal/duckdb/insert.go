package duckdb

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can wait for the
// flush worker.
const DefaultFlushQueueSize = 16

// InsertBuffer batches tick outcomes and writes them to DuckDB from a
// background worker. Record never blocks on database IO unless the flush
// queue is full.
type InsertBuffer struct {
	writer        model.HistoryWriter
	now           func() time.Time
	mu            sync.Mutex
	pending       []model.HistoryRecord
	flushChan     chan []model.HistoryRecord
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once

	// closeMu keeps Add from enqueueing after Stop closed flushChan.
	closeMu sync.RWMutex
	closed  bool

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer starts a buffer writing to writer.
func NewInsertBuffer(writer model.HistoryWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 100
	flushInterval := 2 * time.Second
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		now:           time.Now,
		pending:       make([]model.HistoryRecord, 0, batchSize),
		flushChan:     make(chan []model.HistoryRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// Record queues the outcome of one tick. It satisfies the scheduler's
// recorder contract.
func (b *InsertBuffer) Record(result model.SampleResult) {
	b.Add(model.HistoryFromResult(result, b.now()))
}

// Add queues a record, handing the batch to the worker once it is full.
func (b *InsertBuffer) Add(record model.HistoryRecord) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, record)
	var batch []model.HistoryRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]model.HistoryRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]model.HistoryRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

// enqueue hands batch to the worker, or writes it inline when the queue is
// full.
func (b *InsertBuffer) enqueue(batch []model.HistoryRecord) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.writer.InsertSampleBatch(batch); err != nil {
			log.Printf("duckdb: flush error (inline): %v", err)
		}
	}
}

func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes so far", count)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.writer.InsertSampleBatch(batch); err != nil {
			log.Printf("duckdb: flush error: %v", err)
		}
	}
}

// Stop flushes what is pending and waits for all writes to finish.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		b.closeMu.Unlock()

		close(b.done)
		// tickLoop does the final drain; flushChan must stay open until then.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})
}
