// Package debounce turns raw button edges into logical presses.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/r0bb10/sensor-menu/internal/menu"
)

// DefaultWindow is the stock 10 ms bounce time of the menu buttons.
const DefaultWindow = 10 * time.Millisecond

// Stats are monotonically increasing edge counters.
type Stats struct {
	Accepted uint64
	Rejected uint64 // edges inside the window of the previous accepted edge
	Dropped  uint64 // accepted edges lost because the press queue was full
	Unknown  uint64 // edges on lines with no role
}

// Debouncer accepts at most one edge per line per window and hands accepted
// presses to the router queue without ever blocking the caller.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	roles  map[int]menu.Press
	last   map[int]time.Duration
	out    chan<- menu.PressEvent

	accepted atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
	unknown  atomic.Uint64
}

// New maps line offsets to presses. A non-positive window uses DefaultWindow.
func New(roles map[int]menu.Press, window time.Duration, out chan<- menu.PressEvent) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	r := make(map[int]menu.Press, len(roles))
	for line, p := range roles {
		r[line] = p
	}
	return &Debouncer{
		window: window,
		roles:  r,
		last:   make(map[int]time.Duration, len(roles)),
		out:    out,
	}
}

// Edge reports a falling edge on line at ts and returns true when a press
// was queued. Accept and hand-off happen under one lock, so queue order is
// accept order across all lines.
func (d *Debouncer) Edge(line int, ts time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	press, ok := d.roles[line]
	if !ok {
		d.unknown.Add(1)
		return false
	}

	if last, seen := d.last[line]; seen && !isStableStateChange(ts, last, d.window) {
		d.rejected.Add(1)
		return false
	}
	d.last[line] = ts
	d.accepted.Add(1)

	select {
	case d.out <- menu.PressEvent{Press: press, Line: line, Time: ts}:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// SetWindow changes the debounce window for subsequent edges.
func (d *Debouncer) SetWindow(w time.Duration) {
	if w <= 0 {
		w = DefaultWindow
	}
	d.mu.Lock()
	d.window = w
	d.mu.Unlock()
}

// Window returns the current debounce window.
func (d *Debouncer) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// Stats returns a copy of the edge counters.
func (d *Debouncer) Stats() Stats {
	return Stats{
		Accepted: d.accepted.Load(),
		Rejected: d.rejected.Load(),
		Dropped:  d.dropped.Load(),
		Unknown:  d.unknown.Load(),
	}
}

// isStableStateChange checks if enough time has passed since the last accepted edge.
// A timestamp going backwards is treated as a fresh edge.
func isStableStateChange(now, last, window time.Duration) bool {
	if now < last {
		return true
	}
	return now-last >= window
}
