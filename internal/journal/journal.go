// Package journal records the sample stream to an append-only JSON-lines
// file that the replay source can play back.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// line is one recorded sample. Absent readings are omitted so playback
// sees them as absent again.
type line struct {
	TS        time.Time `json:"ts"`
	ADC       *float64  `json:"adc,omitempty"`
	Frequency *float64  `json:"frequency,omitempty"`
	Amplitude *float64  `json:"amplitude,omitempty"`
	Status    string    `json:"status"`
}

// Journal appends every tick outcome to a file. Successful reads become
// JSON sample lines; failed reads become '#' comment lines that playback
// skips.
type Journal struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
	failed  int64
	now     func() time.Time
}

// Open creates or appends to the journal at path. A partially written
// trailing line left by a crash is cut off first.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	if err := truncatePartialLine(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{path: path, file: f, now: time.Now}, nil
}

// Record appends one outcome. Write failures are counted and logged once.
func (j *Journal) Record(r model.SampleResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return
	}

	b, err := j.encode(r)
	if err == nil {
		_, err = j.file.Write(b)
	}
	if err != nil {
		if j.failed == 0 {
			log.Printf("journal: write %s: %v", j.path, err)
		}
		j.failed++
		return
	}
	j.written++
}

func (j *Journal) encode(r model.SampleResult) ([]byte, error) {
	ts := r.Sample.Timestamp
	if ts.IsZero() {
		ts = j.now()
	}
	ts = ts.UTC()

	if !r.OK() {
		msg := strings.ReplaceAll(r.Err.Error(), "\n", " ")
		return []byte(fmt.Sprintf("# %s read error: %s\n", ts.Format(time.RFC3339Nano), msg)), nil
	}

	b, err := json.Marshal(line{
		TS:        ts,
		ADC:       optPtr(r.Sample.ADC),
		Frequency: optPtr(r.Sample.Frequency),
		Amplitude: optPtr(r.Sample.Amplitude),
		Status:    string(r.Sample.Status),
	})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Counts returns the number of lines written and the number of failed writes.
func (j *Journal) Counts() (written, failed int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written, j.failed
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Close syncs and closes the file. Later Records are ignored.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	syncErr := j.file.Sync()
	closeErr := j.file.Close()
	j.file = nil
	return errors.Join(syncErr, closeErr)
}

func optPtr(f model.OptFloat) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// truncatePartialLine drops bytes after the last newline.
func truncatePartialLine(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, defaultFileMode)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: open for repair: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("journal: stat: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := max(end-chunk, 0)
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read tail: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return nil
			}
			return truncate(f, keep)
		}
		end = start
	}
	return truncate(f, 0)
}

func truncate(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("journal: truncate partial line: %w", err)
	}
	return nil
}
