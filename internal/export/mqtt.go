package export

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	DefaultMQTTServer     = "tcp://localhost:1883"
	DefaultMQTTClientID   = "piezodash-publisher"
	DefaultMQTTStateTopic = "piezo/state"
	publishTimeout        = 2 * time.Second
)

// MQTTConfig configures the state publisher.
type MQTTConfig struct {
	Server   string
	ClientID string
	Topic    string
	Username string
	Password string
	Retained bool
}

// StatePayload is the JSON document published after every tick.
type StatePayload struct {
	ADC         string   `json:"adc"`
	Frequency   string   `json:"frequency"`
	Amplitude   string   `json:"amplitude"`
	FrequencyHz *float64 `json:"frequency_hz"`
	AmplitudeV  *float64 `json:"amplitude_v"`
	Status      string   `json:"status"`
	StatusClass string   `json:"status_class"`
	Timestamp   string   `json:"timestamp"`
}

// NewStatePayload extracts the current values from rm. Numeric fields are
// taken from the newest series point and are nil for an empty series.
func NewStatePayload(rm viewmodel.RenderModel) StatePayload {
	p := StatePayload{
		ADC:         rm.ADCDisplay,
		Frequency:   rm.FrequencyDisplay,
		Amplitude:   rm.AmplitudeDisplay,
		FrequencyHz: lastValue(rm.FrequencySeries),
		AmplitudeV:  lastValue(rm.AmplitudeSeries),
		Status:      rm.StatusText,
		StatusClass: string(rm.StatusStyle.Class),
	}
	if !rm.GeneratedAt.IsZero() {
		p.Timestamp = rm.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}

func lastValue(s viewmodel.Series) *float64 {
	if len(s.Points) == 0 {
		return nil
	}
	v := s.Points[len(s.Points)-1].Value
	return &v
}

type publishFunc func(topic string, retained bool, payload []byte) error

// MQTTPublisher is a render sink that publishes the current values to a
// state topic. Only the newest model is kept when the broker is slow.
type MQTTPublisher struct {
	client   mqtt.Client
	publish  publishFunc
	topic    string
	retained bool
	pending  chan viewmodel.RenderModel
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewMQTTPublisher connects to the broker and starts the publish worker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultMQTTServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultMQTTClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	p := newMQTTPublisher(cfg.Topic, cfg.Retained, func(topic string, retained bool, payload []byte) error {
		t := client.Publish(topic, 0, retained, payload)
		if !t.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		return t.Error()
	})
	p.client = client
	return p, nil
}

func newMQTTPublisher(topic string, retained bool, publish publishFunc) *MQTTPublisher {
	if topic == "" {
		topic = DefaultMQTTStateTopic
	}
	p := &MQTTPublisher{
		publish:  publish,
		topic:    topic,
		retained: retained,
		pending:  make(chan viewmodel.RenderModel, 1),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Render replaces any not-yet-published model with rm.
func (p *MQTTPublisher) Render(rm viewmodel.RenderModel) {
	for {
		select {
		case p.pending <- rm:
			return
		default:
		}
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *MQTTPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case rm := <-p.pending:
			b, err := json.Marshal(NewStatePayload(rm))
			if err != nil {
				log.Printf("export: mqtt marshal: %v", err)
				continue
			}
			if err := p.publish(p.topic, p.retained, b); err != nil {
				log.Printf("export: mqtt publish: %v", err)
			}
		case <-p.done:
			return
		}
	}
}

// Close stops the worker and disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		if p.client != nil {
			p.client.Disconnect(250)
		}
	})
	return nil
}
