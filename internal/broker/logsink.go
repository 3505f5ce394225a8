package broker

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogPublisher stands in for the broker on a bench without one: every
// publish is encoded exactly like the real client would and logged.
type LogPublisher struct {
	logger *logrus.Entry
}

// NewLogPublisher returns a publisher that only logs.
func NewLogPublisher(logger *logrus.Entry) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs topic, flags and the encoded payload.
func (p *LogPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"qos":      qos,
		"retained": retained,
	}).Info(string(data))
	return nil
}
