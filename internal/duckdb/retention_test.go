package duckdb

import (
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{Retention: time.Hour})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}

func TestRetentionCleaner_DisabledIsNil(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{Retention: -1})
	if cleaner != nil {
		t.Fatal("expected nil cleaner when retention is disabled")
	}
	cleaner.Stop()
}

func TestRetentionCleaner_DeletesExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	insertTestSamples(t, store, []model.HistoryRecord{
		{Timestamp: now.Add(-3 * time.Hour), Status: "Normal"},
		{Timestamp: now.Add(-2 * time.Hour), Status: "Normal"},
		{Timestamp: now.Add(-time.Minute), Status: "Normal"},
	})

	cleaner := NewRetentionCleaner(store, RetentionConfig{Retention: time.Hour, Interval: time.Hour})
	defer cleaner.Stop()

	count, err := store.TotalSampleCount()
	if err != nil {
		t.Fatalf("TotalSampleCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("TotalSampleCount = %d, want 1", count)
	}
}
