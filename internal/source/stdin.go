package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

const (
	// DefaultFeedBuffer is the default channel buffer for line feeds. Sensor
	// lines are small and the consumer only needs the newest one.
	DefaultFeedBuffer = 256

	// DefaultMaxLineSize is the default maximum size (in bytes) of one line.
	DefaultMaxLineSize = 64 * 1024
)

// ReaderConfig holds tunable parameters for reader-backed feeds.
type ReaderConfig struct {
	BufferSize  int
	MaxLineSize int
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultFeedBuffer
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	return c
}

// ReaderFeed scans newline-delimited readings from an io.Reader in a
// background goroutine. It backs the stdin and serial feeds.
type ReaderFeed struct {
	name     string
	ch       chan string
	cancel   context.CancelFunc
	closer   io.Closer
	stopOnce sync.Once
}

// NewStdinFeed reads sensor lines piped into the process.
func NewStdinFeed(ctx context.Context, conf ...ReaderConfig) *ReaderFeed {
	return newReaderFeed(ctx, "stdin", os.Stdin, nil, conf...)
}

func newStdinFeedWithReader(ctx context.Context, r io.Reader) *ReaderFeed {
	return newReaderFeed(ctx, "stdin", r, nil)
}

func newReaderFeed(ctx context.Context, name string, r io.Reader, closer io.Closer, conf ...ReaderConfig) *ReaderFeed {
	var c ReaderConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	c = c.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	f := &ReaderFeed{
		name:   name,
		ch:     make(chan string, c.BufferSize),
		cancel: cancel,
		closer: closer,
	}
	go f.read(ctx, r, c.MaxLineSize)
	return f
}

func (f *ReaderFeed) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(f.ch)

	// The blocking scan runs in its own goroutine so cancellation is observed
	// even when the reader never returns.
	results := make(chan string)
	go func() {
		defer close(results)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.Printf("source: %s line exceeded max size (%d bytes), stopping feed", f.name, maxLineSize)
				return
			}
			log.Printf("source: %s scanner error: %v", f.name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case f.ch <- line:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *ReaderFeed) Lines() <-chan string { return f.ch }
func (f *ReaderFeed) Name() string         { return f.name }

func (f *ReaderFeed) Stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		if f.closer != nil {
			_ = f.closer.Close()
		}
	})
}
