package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tiltlock/internal/session"
)

type MQTTConfig struct {
	// Broker is a URL such as tcp://localhost:1883 or tls://host:8883.
	Broker          string
	ClientID        string
	Username        string
	Password        string
	InsecureSkipTLS bool
	// Topic prefix. Transitions go to <Topic>/transition, the current
	// screen (retained) to <Topic>/screen.
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
}

type publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// MQTT publishes transitions to a broker.
type MQTT struct {
	device string
	cfg    MQTTConfig
	pub    publisher
}

// DialMQTT connects to the broker. The client reconnects on its own after
// the first successful connect.
func DialMQTT(device string, cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "tiltlock/" + device
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("tiltlock-%s-%d", device, time.Now().Unix())
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.InsecureSkipTLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Printf("mqtt: connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v (will auto-reconnect)", err)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return newMQTT(device, cfg, clientPublisher{c: c}), nil
}

func newMQTT(device string, cfg MQTTConfig, pub publisher) *MQTT {
	return &MQTT{device: device, cfg: cfg, pub: pub}
}

func (m *MQTT) Navigate(ctx context.Context, t session.Transition) error {
	b, err := Encode(m.device, t)
	if err != nil {
		return fmt.Errorf("mqtt notice: %w", err)
	}
	if err := m.pub.Publish(ctx, m.cfg.Topic+"/transition", m.cfg.QoS, false, b); err != nil {
		return fmt.Errorf("mqtt notice: %w", err)
	}
	if err := m.pub.Publish(ctx, m.cfg.Topic+"/screen", m.cfg.QoS, true, []byte(t.To.String())); err != nil {
		return fmt.Errorf("mqtt screen: %w", err)
	}
	return nil
}

func (m *MQTT) Close() {
	m.pub.Close()
}

type clientPublisher struct {
	c mqtt.Client
}

func (p clientPublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	tok := p.c.Publish(topic, qos, retained, payload)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p clientPublisher) Close() {
	if p.c.IsConnected() {
		p.c.Disconnect(1000)
	}
}
