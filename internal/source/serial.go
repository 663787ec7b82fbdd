package source

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// SerialConfig selects the serial device the sensor board writes to.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// DefaultBaudRate matches the sensor firmware.
const DefaultBaudRate = 115200

// NewSerialFeed opens the serial port and scans its lines. Stop closes the
// port, which unblocks the pending read.
func NewSerialFeed(ctx context.Context, cfg SerialConfig) (*ReaderFeed, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial: port is required")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Port, err)
	}
	return newReaderFeed(ctx, "serial", port, port), nil
}
