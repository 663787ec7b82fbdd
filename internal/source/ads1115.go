package source

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// DefaultADSAddress is the ADS1115 address with ADDR tied to GND.
	DefaultADSAddress = 0x48
	// full-scale range for PGA ±4.096V
	adsFullScale = 4.096
)

// ADS1115Config selects the I²C bus, device and input channel.
type ADS1115Config struct {
	Bus        string
	Address    uint16
	Channel    int
	SampleRate int
}

// ADS1115 reads the piezo pickup directly through an ADS1115 ADC. It
// reports the raw count as the ADC value and its voltage as the amplitude;
// frequency is not measured and stays absent.
type ADS1115 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channel    int
	sampleRate int
}

// NewADS1115 initializes the host drivers and opens the bus.
func NewADS1115(cfg ADS1115Config) (*ADS1115, error) {
	if cfg.Address == 0 {
		cfg.Address = DefaultADSAddress
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 128
	}
	if _, _, err := configForChannel(cfg.Channel, cfg.SampleRate); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return &ADS1115{
		dev:        &i2c.Dev{Addr: cfg.Address, Bus: bus},
		bus:        bus,
		channel:    cfg.Channel,
		sampleRate: cfg.SampleRate,
	}, nil
}

func (s *ADS1115) Name() string { return "ads1115" }

func (s *ADS1115) Read(ctx context.Context) (model.Sample, error) {
	msb, lsb, _ := configForChannel(s.channel, s.sampleRate)
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return model.Sample{}, model.NewReadError(model.Disconnected, fmt.Errorf("write config: %w", err))
	}

	// one conversion period plus margin
	wait := time.Second/time.Duration(s.sampleRate) + 2*time.Millisecond
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return model.Sample{}, model.NewReadError(model.Timeout, ctx.Err())
	}

	buf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, buf); err != nil {
		return model.Sample{}, model.NewReadError(model.Disconnected, fmt.Errorf("read conversion: %w", err))
	}
	raw := int16(buf[0])<<8 | int16(buf[1])

	return model.Sample{
		Timestamp: time.Now(),
		ADC:       model.Present(float64(raw)),
		Amplitude: model.Present(rawToVolts(raw)),
		Status:    model.StatusNormal,
	}, nil
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func rawToVolts(raw int16) float64 {
	return float64(raw) * adsFullScale / 32768.0
}

// configForChannel builds the single-shot config register for a
// single-ended channel at the given data rate.
func configForChannel(channel, sampleRate int) (byte, byte, error) {
	if channel < 0 || channel > 3 {
		return 0, 0, fmt.Errorf("ads1115: invalid channel %d", channel)
	}
	mux := byte(0x4 + channel)

	rates := map[int]byte{8: 0x0, 16: 0x1, 32: 0x2, 64: 0x3, 128: 0x4, 250: 0x5, 475: 0x6, 860: 0x7}
	dr, ok := rates[sampleRate]
	if !ok {
		return 0, 0, fmt.Errorf("ads1115: unsupported sample rate %d", sampleRate)
	}

	var cfg uint16 = 0x8000 // start single conversion
	cfg |= uint16(mux) << 12
	cfg |= 0x1 << 9 // PGA ±4.096V
	cfg |= 1 << 8   // single-shot
	cfg |= uint16(dr) << 5
	cfg |= 0x3 // comparator disabled
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
