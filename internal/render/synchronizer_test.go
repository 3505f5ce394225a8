package render

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/r0bb10/sensor-menu/internal/events"
	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
)

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// recorder implements all three outputs and keeps a single ordered call log.
type recorder struct {
	calls      []string
	leds       [][menu.NumItems]bool
	screens    []string
	publishes  []publishCall
	publishErr error
	ledErr     error
	onLEDs     func()
}

func (r *recorder) SetLEDs(states [menu.NumItems]bool) error {
	r.calls = append(r.calls, "leds")
	r.leds = append(r.leds, states)
	if r.onLEDs != nil {
		r.onLEDs()
	}
	return r.ledErr
}

func (r *recorder) Show(text string) error {
	r.calls = append(r.calls, "display")
	r.screens = append(r.screens, text)
	return nil
}

func (r *recorder) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	r.calls = append(r.calls, "publish")
	if r.publishErr != nil {
		return r.publishErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.publishes = append(r.publishes, publishCall{topic, qos, retained, string(data)})
	return nil
}

func newTestSync(state *menu.State, rec *recorder, policy Policy) *Synchronizer {
	opts := DefaultOptions()
	opts.Policy = policy
	return NewSynchronizer(state, rec, rec, rec, opts, nil, logging.Discard())
}

// settled returns a state whose startup snapshot has already been rendered.
func settled(t *testing.T) *menu.State {
	t.Helper()
	s := menu.NewState()
	for _, snap := range s.Pending() {
		s.Ack(snap.Seq)
	}
	return s
}

func TestSync_InitialRender(t *testing.T) {
	rec := &recorder{}
	state := menu.NewState()
	res := newTestSync(state, rec, PolicyConfirmed).Sync()

	if res.Rendered != 1 || res.Published != 1 {
		t.Fatalf("result = %+v", res)
	}
	if rec.screens[0] != "DHT11 DISABLED\nMENU:1" {
		t.Errorf("screen = %q", rec.screens[0])
	}
	if rec.publishes[0].payload != `{"enable":false}` {
		t.Errorf("payload = %s", rec.publishes[0].payload)
	}
	if state.Dirty() {
		t.Error("state dirty after initial render")
	}
}

func TestSync_CenterFromStart(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	state.Apply(menu.PressCenter)

	newTestSync(state, rec, PolicyConfirmed).Sync()

	want := []string{"leds", "display", "publish"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, rec.calls[i], want[i])
		}
	}
	if rec.leds[0] != [menu.NumItems]bool{true, false, false, false} {
		t.Errorf("leds = %v, want only LED0 on", rec.leds[0])
	}
	if rec.screens[0] != "DHT11 ENABLED\nMENU:1" {
		t.Errorf("screen = %q", rec.screens[0])
	}
	got := rec.publishes[0]
	if got.topic != "sensors/dht/0/cmd" || got.payload != `{"enable":true}` || got.qos != 1 || !got.retained {
		t.Errorf("publish = %+v", got)
	}
}

func TestSync_RightThreeTimes(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	for i := 0; i < 3; i++ {
		state.Apply(menu.PressRight)
	}

	newTestSync(state, rec, PolicyConfirmed).Sync()

	if len(rec.screens) != 1 {
		t.Fatalf("rendered %d screens, want 1 for collapsed navigation", len(rec.screens))
	}
	if rec.screens[0] != "ROTARY ENCODER\nDISABLED MENU:4" {
		t.Errorf("screen = %q", rec.screens[0])
	}
	if rec.publishes[0].topic != "sensors/rotary/0/cmd" {
		t.Errorf("topic = %s", rec.publishes[0].topic)
	}
}

func TestSync_LeftWrapsToRotary(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	state.Apply(menu.PressLeft)

	newTestSync(state, rec, PolicyConfirmed).Sync()

	if rec.screens[0] != "ROTARY ENCODER\nDISABLED MENU:4" {
		t.Errorf("screen = %q", rec.screens[0])
	}
}

func TestSync_NoopWhenClean(t *testing.T) {
	rec := &recorder{}
	state := settled(t)

	res := newTestSync(state, rec, PolicyConfirmed).Sync()
	if res != (Result{}) {
		t.Errorf("result = %+v, want zero", res)
	}
	if len(rec.calls) != 0 {
		t.Errorf("clean sync touched outputs: %v", rec.calls)
	}
}

func TestSync_DirtyLifecycle(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	sync := newTestSync(state, rec, PolicyConfirmed)

	state.Apply(menu.PressRight)
	if !state.Dirty() {
		t.Fatal("not dirty after transition")
	}
	sync.Sync()
	if state.Dirty() {
		t.Fatal("dirty after a pass with no new presses")
	}
	sync.Sync()
	if len(rec.publishes) != 1 {
		t.Errorf("second pass republished: %d publishes", len(rec.publishes))
	}
}

func TestSync_DoubleToggleNotCoalesced(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	state.Apply(menu.PressCenter)
	state.Apply(menu.PressCenter)

	newTestSync(state, rec, PolicyConfirmed).Sync()

	if len(rec.publishes) != 2 {
		t.Fatalf("publishes = %d, want 2", len(rec.publishes))
	}
	if rec.publishes[0].payload != `{"enable":true}` || rec.publishes[1].payload != `{"enable":false}` {
		t.Errorf("payloads = %s, %s", rec.publishes[0].payload, rec.publishes[1].payload)
	}
	if state.Current().Enabled[menu.DHT] {
		t.Error("double toggle did not restore the original value")
	}
}

func TestSync_ToggleDifferentSlotsBothPublished(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	state.Apply(menu.PressCenter)
	state.Apply(menu.PressRight)
	state.Apply(menu.PressCenter)

	newTestSync(state, rec, PolicyConfirmed).Sync()

	var dhtOn, keypadOn bool
	for _, p := range rec.publishes {
		if p.topic == "sensors/dht/0/cmd" && p.payload == `{"enable":true}` {
			dhtOn = true
		}
		if p.topic == "sensors/keypad/0/cmd" && p.payload == `{"enable":true}` {
			keypadOn = true
		}
	}
	if !dhtOn || !keypadOn {
		t.Errorf("publishes = %+v, want both dht and keypad enabled", rec.publishes)
	}
}

func TestSync_SnapshotIsolatedFromConcurrentPress(t *testing.T) {
	rec := &recorder{}
	state := settled(t)
	state.Apply(menu.PressCenter)

	// A press lands while the LEDs are being written.
	injected := false
	rec.onLEDs = func() {
		if !injected {
			injected = true
			state.Apply(menu.PressRight)
		}
	}

	sync := newTestSync(state, rec, PolicyConfirmed)
	res := sync.Sync()

	if res.Rendered != 1 {
		t.Fatalf("rendered %d snapshots, want only the one queued at start", res.Rendered)
	}
	if rec.screens[0] != "DHT11 ENABLED\nMENU:1" {
		t.Errorf("in-flight screen changed to %q", rec.screens[0])
	}
	if rec.publishes[0].topic != "sensors/dht/0/cmd" {
		t.Errorf("in-flight publish went to %s", rec.publishes[0].topic)
	}
	if !state.Dirty() {
		t.Fatal("press during render was lost")
	}

	sync.Sync()
	if rec.screens[1] != "KEYPAD DISABLED\nMENU:2" {
		t.Errorf("next pass screen = %q", rec.screens[1])
	}
}

func TestSync_ConfirmedPolicyKeepsDirtyOnFailure(t *testing.T) {
	rec := &recorder{publishErr: errors.New("broker unreachable")}
	state := settled(t)
	state.Apply(menu.PressCenter)
	state.Apply(menu.PressCenter)
	sync := newTestSync(state, rec, PolicyConfirmed)

	res := sync.Sync()
	if !res.Blocked || res.Rendered != 0 {
		t.Fatalf("result = %+v, want blocked with nothing acknowledged", res)
	}
	if len(state.Pending()) != 2 {
		t.Fatalf("pending = %d, want both snapshots kept", len(state.Pending()))
	}

	rec.publishErr = nil
	res = sync.Sync()
	if res.Rendered != 2 || state.Dirty() {
		t.Errorf("retry result = %+v dirty=%v", res, state.Dirty())
	}
	if rec.publishes[0].payload != `{"enable":true}` {
		t.Errorf("retry did not start with the oldest snapshot: %+v", rec.publishes)
	}
}

func TestSync_FireAndForgetClearsOnFailure(t *testing.T) {
	rec := &recorder{publishErr: errors.New("broker unreachable")}
	state := settled(t)
	state.Apply(menu.PressCenter)

	res := newTestSync(state, rec, PolicyFireAndForget).Sync()
	if res.Blocked || res.Rendered != 1 || res.Published != 0 {
		t.Errorf("result = %+v", res)
	}
	if state.Dirty() {
		t.Error("fire-and-forget left the state dirty")
	}
}

func TestSync_OutputErrorDoesNotStopPass(t *testing.T) {
	rec := &recorder{ledErr: errors.New("line busy")}
	state := settled(t)
	state.Apply(menu.PressCenter)

	bus := events.New()
	failed := make(chan events.OutputFailedEvent, 1)
	defer bus.Subscribe(func(e events.OutputFailedEvent) { failed <- e })()

	opts := DefaultOptions()
	res := NewSynchronizer(state, rec, rec, rec, opts, bus, logging.Discard()).Sync()

	if res.Rendered != 1 || len(rec.publishes) != 1 || len(rec.screens) != 1 {
		t.Errorf("LED failure interrupted the pass: %+v", res)
	}
	select {
	case e := <-failed:
		if e.Output != "leds" {
			t.Errorf("output = %s, want leds", e.Output)
		}
	case <-time.After(time.Second):
		t.Error("no output failure event")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyConfirmed {
		t.Errorf(`ParsePolicy("") = %v, %v`, p, err)
	}
	if p, err := ParsePolicy("fire-and-forget"); err != nil || p != PolicyFireAndForget {
		t.Errorf("ParsePolicy(fire-and-forget) = %v, %v", p, err)
	}
	if _, err := ParsePolicy("maybe"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
