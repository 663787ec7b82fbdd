package source

import (
	"context"
	"errors"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

// Feed is a push-style producer of raw sensor lines (stdin, serial, TCP,
// MQTT). Lines is closed once the feed is done.
type Feed interface {
	Lines() <-chan string
	Stop()
	Name() string
}

// LineSource adapts a Feed to Source. Each Read takes the newest pending
// line and discards older backlog so the dashboard stays live.
type LineSource struct {
	feed Feed
	now  func() time.Time
}

// NewLineSource wraps feed.
func NewLineSource(feed Feed) *LineSource {
	return &LineSource{feed: feed, now: time.Now}
}

func (s *LineSource) Name() string { return s.feed.Name() }

func (s *LineSource) Read(ctx context.Context) (model.Sample, error) {
	line, err := s.latest(ctx)
	if err != nil {
		return model.Sample{}, err
	}
	sample, err := ParseLine(line)
	if err != nil {
		return model.Sample{}, err
	}
	sample.Timestamp = s.now()
	return sample, nil
}

func (s *LineSource) latest(ctx context.Context) (string, error) {
	lines := s.feed.Lines()

	var line string
	select {
	case l, ok := <-lines:
		if !ok {
			return "", model.NewReadError(model.Disconnected, errors.New(s.feed.Name()+" feed closed"))
		}
		line = l
	case <-ctx.Done():
		return "", model.NewReadError(model.Timeout, ctx.Err())
	}

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return line, nil
			}
			line = l
		default:
			return line, nil
		}
	}
}

func (s *LineSource) Close() error {
	s.feed.Stop()
	return nil
}
