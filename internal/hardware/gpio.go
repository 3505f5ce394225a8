// Package hardware binds the menu to the Raspberry Pi: three buttons, four
// status LEDs and an HD44780 character display, all on the GPIO character
// device.
package hardware

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/r0bb10/sensor-menu/internal/menu"
)

// ErrChipNotOpened is returned when lines are requested before OpenChip.
var ErrChipNotOpened = errors.New("chip not opened")

// GPIOManager handles all GPIO operations
type GPIOManager interface {
	// OpenChip opens the GPIO chip device
	OpenChip(chipName string) error
	// Close releases every requested line and the chip
	Close() error
	// SetupButtons requests pulled-up, falling-edge inputs delivering to handler
	SetupButtons(offsets []int, handler func(gpiod.LineEvent)) error
	// SetupLEDs requests the active-low status LED outputs, all off
	SetupLEDs(offsets [menu.NumItems]int) error
	// SetLEDs drives the status LEDs; true means lit
	SetLEDs(states [menu.NumItems]bool) error
	// RequestOutputs requests a group of outputs initialised low
	RequestOutputs(offsets []int) (*gpiod.Lines, error)
}

// gpioManager implements GPIOManager
type gpioManager struct {
	chip    *gpiod.Chip
	buttons *gpiod.Lines
	leds    *gpiod.Lines
	outputs []*gpiod.Lines
	mu      sync.Mutex
}

// NewGPIOManager creates a new GPIO manager
func NewGPIOManager() GPIOManager {
	return &gpioManager{}
}

func (g *gpioManager) OpenChip(chipName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	g.chip, err = gpiod.NewChip(chipName)
	if err != nil {
		return fmt.Errorf("open chip %s: %w", chipName, err)
	}
	return nil
}

func (g *gpioManager) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error

	if g.buttons != nil {
		if err := g.buttons.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buttons: %w", err))
		}
		g.buttons = nil
	}

	if g.leds != nil {
		if err := g.leds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close leds: %w", err))
		}
		g.leds = nil
	}

	for _, lines := range g.outputs {
		if err := lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close outputs: %w", err))
		}
	}
	g.outputs = nil

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		g.chip = nil
	}

	return errors.Join(errs...)
}

func (g *gpioManager) SetupButtons(offsets []int, handler func(gpiod.LineEvent)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chip == nil {
		return ErrChipNotOpened
	}

	// One request for all buttons gives one event stream in kernel order.
	lines, err := g.chip.RequestLines(offsets,
		gpiod.AsInput,
		gpiod.WithPullUp,
		gpiod.WithFallingEdge,
		gpiod.WithEventHandler(handler),
	)
	if err != nil {
		return fmt.Errorf("request button pins %v: %w", offsets, err)
	}
	g.buttons = lines
	return nil
}

func (g *gpioManager) SetupLEDs(offsets [menu.NumItems]int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chip == nil {
		return ErrChipNotOpened
	}

	// Active-low: logical 1 pulls the pin low and lights the LED.
	lines, err := g.chip.RequestLines(offsets[:],
		gpiod.AsActiveLow,
		gpiod.AsOutput(make([]int, menu.NumItems)...),
	)
	if err != nil {
		return fmt.Errorf("request led pins %v: %w", offsets, err)
	}
	g.leds = lines
	return nil
}

func (g *gpioManager) SetLEDs(states [menu.NumItems]bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.leds == nil {
		return fmt.Errorf("leds: %w", ErrChipNotOpened)
	}
	if err := g.leds.SetValues(ledValues(states)); err != nil {
		return fmt.Errorf("set leds: %w", err)
	}
	return nil
}

func (g *gpioManager) RequestOutputs(offsets []int) (*gpiod.Lines, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.chip == nil {
		return nil, ErrChipNotOpened
	}
	lines, err := g.chip.RequestLines(offsets, gpiod.AsOutput(make([]int, len(offsets))...))
	if err != nil {
		return nil, fmt.Errorf("request output pins %v: %w", offsets, err)
	}
	g.outputs = append(g.outputs, lines)
	return lines, nil
}

// ledValues converts logical LED states to line values.
func ledValues(states [menu.NumItems]bool) []int {
	values := make([]int, menu.NumItems)
	for i, on := range states {
		if on {
			values[i] = 1
		}
	}
	return values
}

// ButtonHandler adapts gpiocdev edge events to an edge sink such as
// debounce.Debouncer.Edge. Only falling edges (press on a pulled-up line)
// are forwarded.
func ButtonHandler(edge func(line int, ts time.Duration) bool) func(gpiod.LineEvent) {
	return func(evt gpiod.LineEvent) {
		if evt.Type != gpiod.LineEventFallingEdge {
			return
		}
		edge(evt.Offset, evt.Timestamp)
	}
}
