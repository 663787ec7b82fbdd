package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// Replay plays back a recorded capture file, one line per Read. Blank lines
// and lines starting with # are skipped. A line longer than maxLineSize is
// discarded and reported as malformed data.
type Replay struct {
	mu          sync.Mutex
	file        *os.File
	reader      *bufio.Reader
	loop        bool
	path        string
	maxLineSize int
}

var errReplayLineTooLong = errors.New("replay line too long")

// NewReplay opens path. With loop set, playback restarts at EOF; otherwise
// reads after EOF fail with Disconnected.
func NewReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return &Replay{
		file:        f,
		reader:      bufio.NewReader(f),
		loop:        loop,
		path:        path,
		maxLineSize: DefaultMaxLineSize,
	}, nil
}

func (r *Replay) Name() string { return "replay" }

func (r *Replay) Read(ctx context.Context) (model.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.Sample{}, model.NewReadError(model.Timeout, err)
	}

	line, err := r.nextLine()
	if errors.Is(err, errReplayLineTooLong) {
		return model.Sample{}, malformed(fmt.Errorf("%w (over %d bytes)", err, r.maxLineSize))
	}
	if err != nil {
		return model.Sample{}, model.NewReadError(model.Disconnected, err)
	}
	sample, err := ParseLine(line)
	if err != nil {
		return model.Sample{}, err
	}
	sample.Timestamp = time.Now()
	return sample, nil
}

func (r *Replay) nextLine() (string, error) {
	rewound := false
	for {
		line, err := r.readLine()
		if err == nil {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return line, nil
		}
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if !r.loop || rewound {
			return "", errors.New("end of " + r.path)
		}
		if _, err := r.file.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		r.reader.Reset(r.file)
		rewound = true
	}
}

// readLine returns the next line, including its newline.
// An oversize line is consumed through its newline and reported as
// errReplayLineTooLong so the following read resumes on the next line.
func (r *Replay) readLine() (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if !tooLong && len(buf)+len(chunk) <= r.maxLineSize {
			buf = append(buf, chunk...)
		} else {
			tooLong = true
			buf = nil
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong):
			if tooLong {
				return "", errReplayLineTooLong
			}
			return string(buf), nil
		default:
			return "", err
		}
	}
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
