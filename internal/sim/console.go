// Package sim stands in for the GPIO board on a development machine: the
// display and LEDs are drawn on a terminal and buttons are read from
// keyboard input.
package sim

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/r0bb10/sensor-menu/internal/menu"
)

// Console draws the character display and the LED row on w.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	columns int
	rows    int
	leds    [menu.NumItems]bool
	screen  []string
}

// NewConsole returns a console with the given display geometry.
func NewConsole(w io.Writer, columns, rows int) *Console {
	if columns <= 0 {
		columns = 16
	}
	if rows <= 0 {
		rows = 2
	}
	return &Console{w: w, columns: columns, rows: rows}
}

// Show replaces the display text, truncated to the geometry like the LCD.
func (c *Console) Show(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setScreen(text)
	return c.draw()
}

// Draw sets LEDs and text together and draws one frame.
func (c *Console) Draw(leds [menu.NumItems]bool, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leds = leds
	c.setScreen(text)
	return c.draw()
}

func (c *Console) setScreen(text string) {
	lines := strings.Split(text, "\n")
	if len(lines) > c.rows {
		lines = lines[:c.rows]
	}
	for i, line := range lines {
		if len(line) > c.columns {
			lines[i] = line[:c.columns]
		}
	}
	c.screen = lines
}

// Clear blanks the display.
func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screen = nil
	return c.draw()
}

// SetLEDs records and redraws the LED row.
func (c *Console) SetLEDs(states [menu.NumItems]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leds = states
	return c.draw()
}

// Screen returns the visible rows.
func (c *Console) Screen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.screen...)
}

// LEDs returns the last LED states.
func (c *Console) LEDs() [menu.NumItems]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leds
}

func (c *Console) draw() error {
	var b strings.Builder
	border := "+" + strings.Repeat("-", c.columns) + "+\n"
	b.WriteString(border)
	for row := 0; row < c.rows; row++ {
		line := ""
		if row < len(c.screen) {
			line = c.screen[row]
		}
		fmt.Fprintf(&b, "|%-*s|\n", c.columns, line)
	}
	b.WriteString(border)
	for _, it := range menu.Items() {
		mark := ' '
		if c.leds[it] {
			mark = '*'
		}
		fmt.Fprintf(&b, "[%c] %s  ", mark, it.Name())
	}
	b.WriteString("\n")

	_, err := io.WriteString(c.w, b.String())
	return err
}
