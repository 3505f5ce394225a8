package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeRendered
	TypePublishFailed
	TypeOutputFailed
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is emitted after the router applies a press.
type StateChangedEvent struct {
	Press    string  `json:"press"`
	Selected int     `json:"selected"`
	Enabled  [4]bool `json:"enabled"`
	Seq      uint64  `json:"seq"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// RenderedEvent is emitted after one snapshot has been driven to the outputs.
type RenderedEvent struct {
	Seq       uint64  `json:"seq"`
	Selected  int     `json:"selected"`
	Enabled   [4]bool `json:"enabled"`
	Topic     string  `json:"topic"`
	Published bool    `json:"published"`
}

// Type returns the event type identifier for RenderedEvent.
func (e RenderedEvent) Type() uint32 { return TypeRendered }

// PublishFailedEvent is emitted when a command publish did not complete.
type PublishFailedEvent struct {
	Seq   uint64 `json:"seq"`
	Topic string `json:"topic"`
	Error string `json:"error"`
	// Retained is true when the snapshot stays queued for the next pass.
	Retained bool `json:"retained"`
}

// Type returns the event type identifier for PublishFailedEvent.
func (e PublishFailedEvent) Type() uint32 { return TypePublishFailed }

// OutputFailedEvent is emitted when an LED or display write fails.
type OutputFailedEvent struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// Type returns the event type identifier for OutputFailedEvent.
func (e OutputFailedEvent) Type() uint32 { return TypeOutputFailed }

// ConfigReloadedEvent is emitted after a configuration reload was applied.
type ConfigReloadedEvent struct {
	Path            string   `json:"path"`
	RestartRequired []string `json:"restart_required,omitempty"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
