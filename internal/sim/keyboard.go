package sim

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultKeyGap spaces keys typed on one line so that "rrr" is three presses
// rather than one press and two bounces.
const DefaultKeyGap = 50 * time.Millisecond

// EdgeFunc receives a falling edge on line at a monotonic timestamp.
type EdgeFunc func(line int, ts time.Duration) bool

// Keyboard turns lines of l, c and r keys into button edges. A line reading
// "q" ends input.
type Keyboard struct {
	in     io.Reader
	keys   map[rune]int
	edge   EdgeFunc
	gap    time.Duration
	logger *logrus.Entry

	start time.Time
	now   func() time.Time
	last  time.Duration
}

// NewKeyboard maps the l, c and r keys to the given button lines.
func NewKeyboard(in io.Reader, left, center, right int, edge EdgeFunc, logger *logrus.Entry) *Keyboard {
	return &Keyboard{
		in:     in,
		keys:   map[rune]int{'l': left, 'c': center, 'r': right},
		edge:   edge,
		gap:    DefaultKeyGap,
		logger: logger,
		start:  time.Now(),
		now:    time.Now,
	}
}

// Run reads until EOF, "q" or ctx cancellation. A read blocked on a
// terminal is abandoned on cancellation.
func (k *Keyboard) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(k.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return ctx.Err()
				}
			}
			if strings.TrimSpace(line) == "q" {
				return nil
			}
			k.Type(line)
		}
	}
}

// Type feeds every recognised key in line to the edge sink.
func (k *Keyboard) Type(line string) {
	for _, r := range strings.ToLower(line) {
		offset, ok := k.keys[r]
		if !ok {
			if r != ' ' && r != '\t' {
				k.logger.WithField("key", string(r)).Debug("Ignoring key")
			}
			continue
		}
		ts := k.now().Sub(k.start)
		if ts < k.last+k.gap {
			ts = k.last + k.gap
		}
		k.last = ts
		if !k.edge(offset, ts) {
			k.logger.WithField("line", offset).Debug("Key press rejected")
		}
	}
}
