package ringbuf

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/piezodash/internal/model"
)

func TestNew_RejectsZeroCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{0, -3} {
		b, err := New[int](capacity)
		if b != nil {
			t.Fatalf("New(%d) returned a buffer", capacity)
		}
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("New(%d) err = %v, want *model.ConfigError", capacity, err)
		}
	}
}

func TestPush_KeepsLastCapacityValuesInOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		capacity int
		pushes   int
	}{
		{capacity: 1, pushes: 5},
		{capacity: 3, pushes: 2},
		{capacity: 3, pushes: 3},
		{capacity: 5, pushes: 17},
		{capacity: 50, pushes: 51},
	}

	for _, tt := range tests {
		b, err := New[int](tt.capacity)
		if err != nil {
			t.Fatalf("New(%d): %v", tt.capacity, err)
		}
		for i := 1; i <= tt.pushes; i++ {
			b.Push(i)
			if b.Len() > tt.capacity {
				t.Fatalf("cap=%d: Len() = %d after %d pushes", tt.capacity, b.Len(), i)
			}
		}

		got := b.Values()
		wantLen := min(tt.capacity, tt.pushes)
		if len(got) != wantLen {
			t.Fatalf("cap=%d pushes=%d: len = %d, want %d", tt.capacity, tt.pushes, len(got), wantLen)
		}
		first := tt.pushes - wantLen + 1
		for i, v := range got {
			if v != first+i {
				t.Fatalf("cap=%d pushes=%d: Values() = %v", tt.capacity, tt.pushes, got)
			}
		}
	}
}

func TestValues_ReturnsCopy(t *testing.T) {
	t.Parallel()

	b, _ := New[string](2)
	b.Push("a")
	b.Push("b")

	vals := b.Values()
	vals[0] = "mutated"

	if got := b.Values()[0]; got != "a" {
		t.Fatalf("buffer changed through Values() copy: got %q", got)
	}
}

func TestLast(t *testing.T) {
	t.Parallel()

	b, _ := New[float64](2)
	if _, ok := b.Last(); ok {
		t.Fatal("Last() on empty buffer reported ok")
	}

	b.Push(1)
	b.Push(2)
	b.Push(3)
	if v, ok := b.Last(); !ok || v != 3 {
		t.Fatalf("Last() = %v, %v; want 3, true", v, ok)
	}
	if b.Cap() != 2 {
		t.Fatalf("Cap() = %d, want 2", b.Cap())
	}
}
