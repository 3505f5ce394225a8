// Package driver owns the periodic render schedule.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"

	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/render"
)

// DefaultInterval is the stock render tick.
const DefaultInterval = time.Second

// Syncer renders whatever the menu has queued.
type Syncer interface {
	Sync() render.Result
}

// Notifier reports service state to a supervisor.
type Notifier interface {
	Notify(state string) (bool, error)
}

// SystemdNotifier sends sd_notify messages; it is a no-op outside systemd.
type SystemdNotifier struct{}

// Notify forwards state to $NOTIFY_SOCKET.
func (SystemdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Loop checks the dirty flag on a fixed tick and delegates to the Syncer.
// It does nothing else.
type Loop struct {
	state    *menu.State
	syncer   Syncer
	notifier Notifier
	logger   *logrus.Entry
	interval time.Duration
	reset    chan time.Duration
}

// New creates a loop. A non-positive interval uses DefaultInterval.
// notifier may be nil.
func New(state *menu.State, syncer Syncer, interval time.Duration, notifier Notifier, logger *logrus.Entry) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		state:    state,
		syncer:   syncer,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		reset:    make(chan time.Duration, 1),
	}
}

// SetInterval changes the tick period; the running loop picks it up before
// its next tick. It never blocks: a newer value replaces one not yet picked up.
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	for {
		select {
		case l.reset <- d:
			return
		default:
		}
		select {
		case <-l.reset:
		default:
		}
	}
}

// Run ticks until ctx is cancelled. Cancellation is observed between ticks
// only, so a render pass in progress always completes.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.notify(daemon.SdNotifyReady)
	l.logger.WithField("interval", l.interval).Info("Driver loop started")

	for {
		select {
		case <-ctx.Done():
			l.notify(daemon.SdNotifyStopping)
			l.logger.Info("Driver loop stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case d := <-l.reset:
			l.interval = d
			ticker.Reset(d)
			l.logger.WithField("interval", d).Info("Tick interval changed")
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one dirty check and, when needed, one render pass.
func (l *Loop) Tick() render.Result {
	l.notify(daemon.SdNotifyWatchdog)
	if !l.state.Dirty() {
		return render.Result{}
	}
	res := l.syncer.Sync()
	if res.Blocked {
		l.logger.WithField("rendered", res.Rendered).Warn("Render pass incomplete, retrying next tick")
	}
	return res
}

func (l *Loop) notify(state string) {
	if l.notifier == nil {
		return
	}
	if _, err := l.notifier.Notify(state); err != nil {
		l.logger.WithError(err).Debug("sd_notify failed")
	}
}

// Clearer blanks a display.
type Clearer interface {
	Clear() error
}

// ShutdownPolicy decides which outputs are reset when the process stops.
// No final command is published: the retained topics keep the last state.
type ShutdownPolicy struct {
	LEDsOff      bool
	ClearDisplay bool
}

// Shutdown resets outputs per policy. Call after Run has returned.
func Shutdown(leds render.LEDs, display Clearer, p ShutdownPolicy) error {
	var errs []error
	if p.LEDsOff && leds != nil {
		if err := leds.SetLEDs([menu.NumItems]bool{}); err != nil {
			errs = append(errs, err)
		}
	}
	if p.ClearDisplay && display != nil {
		if err := display.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
