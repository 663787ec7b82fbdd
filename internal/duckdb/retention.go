package duckdb

import (
	"log"
	"sync"
	"time"
)

// DefaultRetention keeps one week of history.
const DefaultRetention = 7 * 24 * time.Hour

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	Retention time.Duration
	// Interval between cleanups; defaults to Retention/24, at least one minute.
	Interval time.Duration
}

// RetentionCleaner periodically deletes samples older than the retention
// window.
type RetentionCleaner struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewRetentionCleaner runs one cleanup immediately and then one per
// interval. It returns nil when retention is negative (disabled).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	var c RetentionConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	if c.Retention < 0 {
		return nil
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	if c.Interval <= 0 {
		c.Interval = max(c.Retention/24, time.Minute)
	}

	rc := &RetentionCleaner{
		store:     store,
		retention: c.Retention,
		interval:  c.Interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}

	// catch up after downtime
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() int64 {
	cutoff := rc.now().Add(-rc.retention)

	rows, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return 0
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup deleted %d samples older than %s", rows, rc.retention)
	}
	return rows
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
