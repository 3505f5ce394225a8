// Package broker is the MQTT side of the controller: one paho client, QoS 1
// retained command publishes and an availability topic backed by a will.
package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotConnected is returned by Publish while the client is offline.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrPublishTimeout is returned when the broker does not acknowledge in time.
	ErrPublishTimeout = errors.New("mqtt publish not acknowledged in time")
)

// Config defines MQTT broker connection settings.
type Config struct {
	Broker            string        // broker URL, e.g. "tcp://localhost:1885"
	User              string        // optional username
	Password          string        // optional password
	ClientID          string        // MQTT client identifier
	KeepAlive         time.Duration // keepalive interval
	PublishTimeout    time.Duration // max wait for a publish acknowledgement
	AvailabilityTopic string        // "" disables online/offline reporting
}

// MQTTManager handles all MQTT operations
type MQTTManager interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	IsConnected() bool
	AvailabilityTopic() string
	Disconnect()
}

// mqttManager implements MQTTManager using the paho MQTT client
type mqttManager struct {
	client            mqtt.Client
	availabilityTopic string
	publishTimeout    time.Duration
	logger            *logrus.Entry
}

// NewMQTTManager wraps an existing client.
func NewMQTTManager(client mqtt.Client, cfg Config, logger *logrus.Entry) MQTTManager {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &mqttManager{
		client:            client,
		availabilityTopic: cfg.AvailabilityTopic,
		publishTimeout:    timeout,
		logger:            logger,
	}
}

// Publish encodes payload (string and []byte pass through, anything else is
// JSON) and waits, bounded by the publish timeout, for the broker's ack.
func (m *mqttManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	var payloadBytes []byte
	switch v := payload.(type) {
	case string:
		payloadBytes = []byte(v)
	case []byte:
		payloadBytes = v
	default:
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := m.client.Publish(topic, qos, retained, payloadBytes)
	if !token.WaitTimeout(m.publishTimeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (m *mqttManager) IsConnected() bool {
	return m.client.IsConnected()
}

func (m *mqttManager) AvailabilityTopic() string {
	return m.availabilityTopic
}

// Disconnect marks the controller offline and closes the connection.
func (m *mqttManager) Disconnect() {
	if m.availabilityTopic != "" && m.client.IsConnectionOpen() {
		if err := m.Publish(m.availabilityTopic, 1, true, "offline"); err != nil {
			m.logger.WithError(err).Warn("Failed to publish offline status")
		}
	}
	m.client.Disconnect(250)
	m.logger.Info("Disconnected from MQTT")
}

// Connect builds the paho client, connects and returns the manager.
// A failed first connection is fatal for the caller; later drops are
// handled by paho's auto reconnect.
func Connect(cfg Config, logger *logrus.Entry) (MQTTManager, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	if cfg.AvailabilityTopic != "" {
		opts.SetWill(cfg.AvailabilityTopic, "offline", 1, true)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("Connected to MQTT")
		if cfg.AvailabilityTopic != "" {
			c.Publish(cfg.AvailabilityTopic, 1, true, "online")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("Reconnecting to MQTT")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", token.Error())
	}

	return NewMQTTManager(client, cfg, logger), nil
}
