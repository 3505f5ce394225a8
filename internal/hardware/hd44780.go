package hardware

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Bus sets a group of output lines in one operation. *gpiocdev.Lines
// satisfies it when requested in the order RS, EN, D4, D5, D6, D7.
type Bus interface {
	SetValues(values []int) error
}

const lcdLines = 6

const (
	lcdClear        = 0x01
	lcdEntryModeSet = 0x06 // increment, no shift
	lcdDisplayOn    = 0x0C // display on, cursor off, blink off
	lcdFunctionSet  = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetDDRAMAddr = 0x80
)

var rowOffsets = []int{0x00, 0x40, 0x14, 0x54}

// HD44780 drives a character LCD in 4-bit mode over six GPIO lines.
type HD44780 struct {
	bus     Bus
	columns int
	rows    int
	sleep   func(time.Duration)
	mu      sync.Mutex
}

// NewHD44780 returns a display driver; call Init before use.
func NewHD44780(bus Bus, columns, rows int) *HD44780 {
	if columns <= 0 {
		columns = 16
	}
	if rows <= 0 {
		rows = 2
	}
	if rows > len(rowOffsets) {
		rows = len(rowOffsets)
	}
	return &HD44780{
		bus:     bus,
		columns: columns,
		rows:    rows,
		sleep:   time.Sleep,
	}
}

// Init runs the 4-bit power-on sequence and clears the screen.
func (d *HD44780) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cmd := range []byte{0x33, 0x32, lcdDisplayOn, lcdFunctionSet, lcdEntryModeSet} {
		if err := d.write8(cmd, false); err != nil {
			return fmt.Errorf("init lcd: %w", err)
		}
	}
	return d.clear()
}

// Clear blanks the display and homes the cursor.
func (d *HD44780) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clear()
}

// Show clears the display and writes text; "\n" starts the next row and
// anything past the last column or row is dropped.
func (d *HD44780) Show(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.clear(); err != nil {
		return err
	}
	for row, line := range strings.Split(text, "\n") {
		if row >= d.rows {
			break
		}
		if len(line) > d.columns {
			line = line[:d.columns]
		}
		if err := d.write8(byte(lcdSetDDRAMAddr|rowOffsets[row]), false); err != nil {
			return fmt.Errorf("set cursor row %d: %w", row, err)
		}
		for i := 0; i < len(line); i++ {
			if err := d.write8(line[i], true); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}
	return nil
}

func (d *HD44780) clear() error {
	if err := d.write8(lcdClear, false); err != nil {
		return fmt.Errorf("clear lcd: %w", err)
	}
	d.sleep(3 * time.Millisecond)
	return nil
}

// write8 sends a byte as two nibbles, high first.
func (d *HD44780) write8(value byte, char bool) error {
	if err := d.pulse(value>>4, char); err != nil {
		return err
	}
	return d.pulse(value&0x0F, char)
}

// pulse latches one nibble: present data with EN low, raise EN, drop it.
func (d *HD44780) pulse(nibble byte, char bool) error {
	values := nibbleValues(nibble, char)
	if err := d.bus.SetValues(values); err != nil {
		return err
	}
	values[1] = 1
	d.sleep(time.Microsecond)
	if err := d.bus.SetValues(values); err != nil {
		return err
	}
	values[1] = 0
	d.sleep(time.Microsecond)
	if err := d.bus.SetValues(values); err != nil {
		return err
	}
	d.sleep(100 * time.Microsecond)
	return nil
}

// nibbleValues lays out RS, EN(0), D4..D7 for one nibble.
func nibbleValues(nibble byte, char bool) []int {
	values := make([]int, lcdLines)
	if char {
		values[0] = 1
	}
	for bit := 0; bit < 4; bit++ {
		values[2+bit] = int(nibble>>bit) & 1
	}
	return values
}
