package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/piezodash/internal/source"
)

const (
	sourceStatic  = "static"
	sourceStdin   = "stdin"
	sourceSerial  = "serial"
	sourceTCP     = "tcp"
	sourceReplay  = "replay"
	sourceMQTT    = "mqtt"
	sourceADS1115 = "ads1115"
)

var sourceKinds = []string{sourceStatic, sourceStdin, sourceSerial, sourceTCP, sourceReplay, sourceMQTT, sourceADS1115}

// sourcePlugin is a small plugin primitive for wiring sample inputs.
type sourcePlugin interface {
	Name() string
	Describe() string
	Build(ctx context.Context) (source.Source, error)
}

func buildSourcePlugin(cfg appConfig) (sourcePlugin, error) {
	switch cfg.Source {
	case sourceStatic:
		return staticPlugin{}, nil
	case sourceStdin:
		return stdinPlugin{}, nil
	case sourceSerial:
		return serialPlugin{conf: source.SerialConfig{Port: cfg.SerialPort, BaudRate: cfg.SerialBaud}}, nil
	case sourceTCP:
		return tcpPlugin{addr: cfg.TCPAddr}, nil
	case sourceReplay:
		return replayPlugin{path: cfg.ReplayPath, loop: cfg.ReplayLoop}, nil
	case sourceMQTT:
		return mqttPlugin{conf: source.MQTTConfig{
			Server:   cfg.MQTTServer,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}}, nil
	case sourceADS1115:
		return adsPlugin{conf: source.ADS1115Config{
			Bus:        cfg.I2CBus,
			Address:    uint16(cfg.I2CAddress),
			Channel:    cfg.ADSChannel,
			SampleRate: cfg.ADSSampleRate,
		}}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

type staticPlugin struct{}

func (staticPlugin) Name() string     { return sourceStatic }
func (staticPlugin) Describe() string { return "bench stub" }
func (staticPlugin) Build(context.Context) (source.Source, error) {
	return source.NewStatic(), nil
}

type stdinPlugin struct{}

func (stdinPlugin) Name() string     { return sourceStdin }
func (stdinPlugin) Describe() string { return "piped lines" }

func (stdinPlugin) Build(ctx context.Context) (source.Source, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("stdin source needs piped input")
	}
	return source.NewLineSource(source.NewStdinFeed(ctx)), nil
}

type serialPlugin struct{ conf source.SerialConfig }

func (p serialPlugin) Name() string { return sourceSerial }
func (p serialPlugin) Describe() string {
	return fmt.Sprintf("%s @ %d baud", p.conf.Port, p.conf.BaudRate)
}

func (p serialPlugin) Build(ctx context.Context) (source.Source, error) {
	feed, err := source.NewSerialFeed(ctx, p.conf)
	if err != nil {
		return nil, err
	}
	return source.NewLineSource(feed), nil
}

type tcpPlugin struct{ addr string }

func (p tcpPlugin) Name() string     { return sourceTCP }
func (p tcpPlugin) Describe() string { return "listening on " + p.addr }

func (p tcpPlugin) Build(context.Context) (source.Source, error) {
	feed := source.NewTCPFeed(p.addr)
	if err := feed.Start(); err != nil {
		return nil, fmt.Errorf("start tcp feed: %w", err)
	}
	return source.NewLineSource(feed), nil
}

type replayPlugin struct {
	path string
	loop bool
}

func (p replayPlugin) Name() string { return sourceReplay }
func (p replayPlugin) Describe() string {
	if p.loop {
		return p.path + " (looping)"
	}
	return p.path
}

func (p replayPlugin) Build(context.Context) (source.Source, error) {
	return source.NewReplay(p.path, p.loop)
}

type mqttPlugin struct{ conf source.MQTTConfig }

func (p mqttPlugin) Name() string     { return sourceMQTT }
func (p mqttPlugin) Describe() string { return p.conf.Server + " " + p.conf.Topic }

func (p mqttPlugin) Build(context.Context) (source.Source, error) {
	feed, err := source.NewMQTTFeed(p.conf)
	if err != nil {
		return nil, err
	}
	return source.NewLineSource(feed), nil
}

type adsPlugin struct{ conf source.ADS1115Config }

func (p adsPlugin) Name() string { return sourceADS1115 }
func (p adsPlugin) Describe() string {
	bus := p.conf.Bus
	if bus == "" {
		bus = "default bus"
	}
	return fmt.Sprintf("%s addr %#x ch%d", bus, p.conf.Address, p.conf.Channel)
}

func (p adsPlugin) Build(context.Context) (source.Source, error) {
	return source.NewADS1115(p.conf)
}
