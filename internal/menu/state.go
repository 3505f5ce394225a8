package menu

import (
	"sync"
	"time"
)

// Press is a logical button press.
type Press int

// Recognised presses. The zero value is not a press.
const (
	PressLeft Press = iota + 1
	PressCenter
	PressRight
)

func (p Press) String() string {
	switch p {
	case PressLeft:
		return "left"
	case PressCenter:
		return "center"
	case PressRight:
		return "right"
	default:
		return "unknown"
	}
}

// PressEvent is a debounced press travelling from the input side to the router.
type PressEvent struct {
	Press Press
	Line  int           // GPIO line offset that produced the edge
	Time  time.Duration // edge timestamp as reported by the kernel
}

// Cause records which kind of transition produced a snapshot.
type Cause int

const (
	CauseStartup Cause = iota
	CauseNavigate
	CauseToggle
)

func (c Cause) String() string {
	switch c {
	case CauseStartup:
		return "startup"
	case CauseNavigate:
		return "navigate"
	case CauseToggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of the menu taken for one render.
type Snapshot struct {
	Seq      uint64
	Selected Item
	Enabled  [NumItems]bool
	Cause    Cause
}

// SelectedEnabled is the enable flag of the highlighted slot.
func (s Snapshot) SelectedEnabled() bool {
	return s.Enabled[s.Selected]
}

// DefaultPendingLimit bounds the render queue before it is compacted.
const DefaultPendingLimit = 64

// State is the menu model: the highlighted slot, four enable flags and the
// queue of snapshots not yet rendered. The state is dirty while that queue
// is non-empty.
//
// Consecutive navigation snapshots collapse into one. Toggle snapshots never
// collapse so every toggle reaches the sensors.
type State struct {
	mu       sync.Mutex
	selected Item
	enabled  [NumItems]bool
	pending  []Snapshot
	seq      uint64
	limit    int
}

// NewState returns the startup state: DHT highlighted, everything disabled,
// and one startup snapshot queued so the first tick renders.
func NewState() *State {
	s := &State{limit: DefaultPendingLimit}
	s.enqueue(CauseStartup)
	return s
}

// SetPendingLimit changes the queue size at which compaction kicks in.
func (s *State) SetPendingLimit(n int) {
	if n < NumItems {
		n = NumItems
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

// Apply performs exactly one transition and marks the state dirty.
// Unknown presses are ignored and report false.
func (s *State) Apply(p Press) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cause Cause
	switch p {
	case PressLeft:
		s.selected = (s.selected + NumItems - 1) % NumItems
		cause = CauseNavigate
	case PressRight:
		s.selected = (s.selected + 1) % NumItems
		cause = CauseNavigate
	case PressCenter:
		s.enabled[s.selected] = !s.enabled[s.selected]
		cause = CauseToggle
	default:
		return Snapshot{}, false
	}
	return s.enqueue(cause), true
}

// enqueue must be called with mu held.
func (s *State) enqueue(cause Cause) Snapshot {
	s.seq++
	snap := Snapshot{
		Seq:      s.seq,
		Selected: s.selected,
		Enabled:  s.enabled,
		Cause:    cause,
	}

	if n := len(s.pending); n > 0 && cause != CauseToggle && s.pending[n-1].Cause != CauseToggle {
		s.pending[n-1] = snap
		return snap
	}

	s.pending = append(s.pending, snap)
	if len(s.pending) > s.limit {
		s.compact()
	}
	return snap
}

// compact keeps only the newest snapshot per selected slot, in queue order.
// The newest snapshot overall always survives, so the outputs converge.
func (s *State) compact() {
	var seen [NumItems]bool
	kept := make([]Snapshot, 0, NumItems)
	for i := len(s.pending) - 1; i >= 0; i-- {
		snap := s.pending[i]
		if seen[snap.Selected] {
			continue
		}
		seen[snap.Selected] = true
		kept = append(kept, snap)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.pending = kept
}

// Dirty reports whether there are snapshots waiting to be rendered.
func (s *State) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Pending returns a copy of the render queue, oldest first.
func (s *State) Pending() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := make([]Snapshot, len(s.pending))
	copy(out, s.pending)
	return out
}

// Ack drops every queued snapshot up to and including seq. Snapshots that
// were collapsed away while being rendered are simply not found.
func (s *State) Ack(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := 0
	for i < len(s.pending) && s.pending[i].Seq <= seq {
		i++
	}
	if i == 0 {
		return
	}
	s.pending = append(s.pending[:0], s.pending[i:]...)
}

// Current returns the live model without touching the queue.
func (s *State) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Seq:      s.seq,
		Selected: s.selected,
		Enabled:  s.enabled,
	}
}
