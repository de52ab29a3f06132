package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBroker is the public broker used when none is configured.
const DefaultBroker = "wss://broker.hivemq.com:8884/mqtt"

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string, retained bool) error
}

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	QoS            byte
}

// ApplyDefaults applies default values to zero fields.
func (c *MQTTConfig) ApplyDefaults() {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = "patient_" + uuid.NewString()[:8]
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
}

// MQTTPublisher publishes over MQTT, connecting on first use.
type MQTTPublisher struct {
	cfg    MQTTConfig
	log    *zap.SugaredLogger
	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTPublisher creates a publisher. No connection is made until Publish.
func NewMQTTPublisher(cfg MQTTConfig, logger *zap.SugaredLogger) *MQTTPublisher {
	cfg.ApplyDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(cfg.ReconnectDelay).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnw("mqtt connection lost", "broker", cfg.Broker, "error", err)
		})
	return &MQTTPublisher{cfg: cfg, log: logger, client: mqtt.NewClient(opts)}
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return errors.New("timed out")
	}
}

func (p *MQTTPublisher) connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		return nil
	}
	if err := wait(ctx, p.client.Connect(), p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.cfg.Broker, err)
	}
	p.log.Infow("mqtt connected", "broker", p.cfg.Broker, "client_id", p.cfg.ClientID)
	return nil
}

// Publish sends payload to topic.
func (p *MQTTPublisher) Publish(ctx context.Context, topic, payload string, retained bool) error {
	if err := p.connect(ctx); err != nil {
		return err
	}
	if err := wait(ctx, p.client.Publish(topic, p.cfg.QoS, retained, payload), p.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

var _ Publisher = (*MQTTPublisher)(nil)
