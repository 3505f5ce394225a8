package menu

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/r0bb10/sensor-menu/internal/events"
)

// Router is the single consumer of press events and the only writer of State.
type Router struct {
	state   *State
	presses <-chan PressEvent
	bus     *events.Bus
	logger  *logrus.Entry
}

// NewRouter wires a router to its input queue. bus may be nil.
func NewRouter(state *State, presses <-chan PressEvent, bus *events.Bus, logger *logrus.Entry) *Router {
	return &Router{
		state:   state,
		presses: presses,
		bus:     bus,
		logger:  logger,
	}
}

// Run applies presses in arrival order until ctx is done or the queue closes.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.presses:
			if !ok {
				return nil
			}
			r.Handle(ev)
		}
	}
}

// Handle applies a single press.
func (r *Router) Handle(ev PressEvent) {
	snap, ok := r.state.Apply(ev.Press)
	if !ok {
		r.logger.WithField("line", ev.Line).Debug("Ignoring unknown press")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"press":    ev.Press.String(),
		"selected": snap.Selected.Name(),
		"enabled":  snap.SelectedEnabled(),
		"seq":      snap.Seq,
	}).Debug("Press applied")

	r.bus.Publish(events.StateChangedEvent{
		Press:    ev.Press.String(),
		Selected: int(snap.Selected),
		Enabled:  snap.Enabled,
		Seq:      snap.Seq,
	})
}
