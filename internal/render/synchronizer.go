// Package render drives the LEDs, the display and the sensor command topic
// from menu snapshots.
package render

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/r0bb10/sensor-menu/internal/events"
	"github.com/r0bb10/sensor-menu/internal/menu"
)

// LEDs drives the four status LEDs. true means lit.
type LEDs interface {
	SetLEDs(states [menu.NumItems]bool) error
}

// Display shows a two-row screen; rows are separated by "\n".
type Display interface {
	Show(text string) error
}

// Publisher sends one message and reports whether the broker took it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// Policy decides what a failed publish does to the render queue.
type Policy string

const (
	// PolicyConfirmed keeps the snapshot queued until the broker acknowledges it.
	PolicyConfirmed Policy = "confirmed"
	// PolicyFireAndForget logs the failure and moves on.
	PolicyFireAndForget Policy = "fire-and-forget"
)

// ParsePolicy validates a policy name; "" means PolicyConfirmed.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyConfirmed:
		return PolicyConfirmed, nil
	case PolicyFireAndForget:
		return PolicyFireAndForget, nil
	default:
		return "", fmt.Errorf("unknown publish policy %q", s)
	}
}

// Command is the JSON body sent to a sensor node.
type Command struct {
	Enable bool `json:"enable"`
}

// Options configures a Synchronizer.
type Options struct {
	Topics menu.Topics
	QoS    byte
	Retain bool
	Policy Policy
}

// DefaultOptions is QoS 1, retained, confirmed delivery on the stock topics.
func DefaultOptions() Options {
	return Options{
		Topics: menu.DefaultTopics(),
		QoS:    1,
		Retain: true,
		Policy: PolicyConfirmed,
	}
}

// Result summarises one Sync call.
type Result struct {
	Rendered  int  // snapshots acknowledged
	Published int  // successful publishes
	Blocked   bool // a confirmed publish failed and the queue was left dirty
}

// Synchronizer renders queued snapshots. It is driven from a single goroutine.
type Synchronizer struct {
	state     *menu.State
	leds      LEDs
	display   Display
	publisher Publisher
	opts      Options
	bus       *events.Bus
	logger    *logrus.Entry
}

// NewSynchronizer wires the three outputs to the menu state. bus may be nil.
func NewSynchronizer(state *menu.State, leds LEDs, display Display, publisher Publisher, opts Options, bus *events.Bus, logger *logrus.Entry) *Synchronizer {
	if opts.Policy == "" {
		opts.Policy = PolicyConfirmed
	}
	return &Synchronizer{
		state:     state,
		leds:      leds,
		display:   display,
		publisher: publisher,
		opts:      opts,
		bus:       bus,
		logger:    logger,
	}
}

// Sync renders every snapshot queued when it starts, oldest first. Presses
// that land during the pass queue behind it and render on the next call.
// A clean state costs nothing: no output is touched.
func (s *Synchronizer) Sync() Result {
	var res Result
	pending := s.state.Pending()
	if len(pending) == 0 {
		return res
	}

	for _, snap := range pending {
		err := s.render(snap)
		if err != nil && s.opts.Policy == PolicyConfirmed {
			res.Blocked = true
			break
		}
		if err == nil {
			res.Published++
		}
		s.state.Ack(snap.Seq)
		res.Rendered++
	}
	return res
}

// render drives all outputs from one snapshot. Only the publish error is
// returned; LED and display failures are logged and left for the next pass.
func (s *Synchronizer) render(snap menu.Snapshot) error {
	log := s.logger.WithFields(logrus.Fields{
		"seq":      snap.Seq,
		"selected": snap.Selected.Name(),
		"cause":    snap.Cause.String(),
	})

	if err := s.leds.SetLEDs(snap.Enabled); err != nil {
		log.WithError(err).Warn("Failed to update LEDs")
		s.bus.Publish(events.OutputFailedEvent{Output: "leds", Error: err.Error()})
	}

	text := menu.Screen(snap.Selected, snap.SelectedEnabled())
	if err := s.display.Show(text); err != nil {
		log.WithError(err).Warn("Failed to update display")
		s.bus.Publish(events.OutputFailedEvent{Output: "display", Error: err.Error()})
	}

	topic := s.opts.Topics.Topic(snap.Selected)
	err := s.publish(topic, snap.SelectedEnabled())
	if err != nil {
		retained := s.opts.Policy == PolicyConfirmed
		log.WithError(err).WithFields(logrus.Fields{
			"topic":    topic,
			"retrying": retained,
		}).Warn("Failed to publish sensor command")
		s.bus.Publish(events.PublishFailedEvent{
			Seq:      snap.Seq,
			Topic:    topic,
			Error:    err.Error(),
			Retained: retained,
		})
	} else {
		log.WithFields(logrus.Fields{
			"topic":  topic,
			"enable": snap.SelectedEnabled(),
		}).Info("Sensor command published")
	}

	s.bus.Publish(events.RenderedEvent{
		Seq:       snap.Seq,
		Selected:  int(snap.Selected),
		Enabled:   snap.Enabled,
		Topic:     topic,
		Published: err == nil,
	})
	return err
}

var errNoTopic = errors.New("no topic configured")

func (s *Synchronizer) publish(topic string, enable bool) error {
	if topic == "" {
		return errNoTopic
	}
	return s.publisher.Publish(topic, s.opts.QoS, s.opts.Retain, Command{Enable: enable})
}
