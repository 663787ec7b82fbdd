package tui

import (
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

func TestValueBounds_PadsRange(t *testing.T) {
	t.Parallel()

	lo, hi := valueBounds([]viewmodel.Point{{Value: 10}, {Value: 20}})
	if lo != 9 || hi != 21 {
		t.Fatalf("valueBounds = %v, %v, want 9, 21", lo, hi)
	}

	lo, hi = valueBounds([]viewmodel.Point{{Value: 5}})
	if !(lo < 5 && hi > 5) {
		t.Fatalf("flat series bounds = %v, %v, want to straddle 5", lo, hi)
	}
}

func TestTimeBounds_MinimumSpan(t *testing.T) {
	t.Parallel()

	now := time.Now()
	lo, hi := timeBounds([]viewmodel.Point{{Time: now}})
	if hi.Sub(lo) != minTimeSpan {
		t.Fatalf("span = %v, want %v", hi.Sub(lo), minTimeSpan)
	}

	lo, hi = timeBounds([]viewmodel.Point{{Time: now.Add(time.Minute)}, {Time: now}})
	if !lo.Equal(now) || !hi.Equal(now.Add(time.Minute)) {
		t.Fatalf("bounds = %v..%v", lo, hi)
	}
}

func TestRenderSeriesChart_TooSmall(t *testing.T) {
	t.Parallel()

	if got := renderSeriesChart(viewmodel.Series{}, 5, 2, theme.Frequency); got != "" {
		t.Fatalf("renderSeriesChart tiny = %q, want empty", got)
	}
}
