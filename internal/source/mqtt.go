package source

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultMQTTServer   = "tcp://localhost:1883"
	DefaultMQTTClientID = "piezodash"
	DefaultMQTTTopic    = "piezo/readings"
)

// MQTTConfig selects the broker and topic carrying sensor readings.
type MQTTConfig struct {
	Server   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTTFeed subscribes to a topic and forwards each payload as one line.
// When the consumer falls behind, the oldest pending payload is dropped.
type MQTTFeed struct {
	client mqtt.Client
	topic  string

	mu     sync.Mutex
	ch     chan string
	closed bool
}

// NewMQTTFeed connects to the broker. The subscription is renewed on every
// reconnect.
func NewMQTTFeed(cfg MQTTConfig) (*MQTTFeed, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultMQTTServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultMQTTClientID
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}

	f := &MQTTFeed{
		topic: cfg.Topic,
		ch:    make(chan string, DefaultFeedBuffer),
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(f.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			f.push(string(msg.Payload()))
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("source: mqtt subscribe %s: %v", f.topic, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("source: mqtt connection lost: %v", err)
	})

	f.client = mqtt.NewClient(opts)
	token := f.client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return f, nil
}

func (f *MQTTFeed) push(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- payload:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

func (f *MQTTFeed) Lines() <-chan string { return f.ch }
func (f *MQTTFeed) Name() string         { return "mqtt" }

// Stop closes Lines, then unsubscribes and disconnects. The lock is not
// held across broker round trips because message handlers take it too.
func (f *MQTTFeed) Stop() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.ch)
	f.mu.Unlock()

	if f.client != nil {
		f.client.Unsubscribe(f.topic).WaitTimeout(time.Second)
		f.client.Disconnect(250)
	}
}
