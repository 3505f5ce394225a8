package sim

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/r0bb10/sensor-menu/internal/debounce"
	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
)

func TestConsole_ShowTruncates(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, 16, 2)

	if err := c.Show("ROTARY ENCODER TOO LONG\n  ON MENU:4\nextra"); err != nil {
		t.Fatalf("Show: %v", err)
	}
	screen := c.Screen()
	if len(screen) != 2 {
		t.Fatalf("rows = %d, want 2", len(screen))
	}
	if screen[0] != "ROTARY ENCODER T" {
		t.Errorf("row 0 = %q", screen[0])
	}
	if !strings.Contains(out.String(), "|ROTARY ENCODER T|") {
		t.Errorf("output missing framed row:\n%s", out.String())
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(c.Screen()) != 0 {
		t.Errorf("screen after clear = %v", c.Screen())
	}
}

func TestConsole_LEDs(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, 16, 2)

	want := [menu.NumItems]bool{false, true, false, true}
	if err := c.SetLEDs(want); err != nil {
		t.Fatalf("SetLEDs: %v", err)
	}
	if c.LEDs() != want {
		t.Errorf("leds = %v", c.LEDs())
	}
	if !strings.Contains(out.String(), "[*] keypad") || !strings.Contains(out.String(), "[ ] dht") {
		t.Errorf("led row not drawn:\n%s", out.String())
	}
}

type edgeLog struct {
	mu    sync.Mutex
	lines []int
	ts    []time.Duration
}

func (e *edgeLog) edge(line int, ts time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, line)
	e.ts = append(e.ts, ts)
	return true
}

func TestKeyboard_TypeSpacesKeys(t *testing.T) {
	var log edgeLog
	k := NewKeyboard(strings.NewReader(""), 22, 27, 17, log.edge, logging.Discard())
	frozen := k.start
	k.now = func() time.Time { return frozen }

	k.Type("rRc x l")

	wantLines := []int{17, 17, 27, 22}
	if len(log.lines) != len(wantLines) {
		t.Fatalf("edges = %v, want %v", log.lines, wantLines)
	}
	for i := range wantLines {
		if log.lines[i] != wantLines[i] {
			t.Errorf("edge %d line = %d, want %d", i, log.lines[i], wantLines[i])
		}
		if i > 0 && log.ts[i]-log.ts[i-1] < DefaultKeyGap {
			t.Errorf("edge %d only %v after previous", i, log.ts[i]-log.ts[i-1])
		}
	}
}

func TestKeyboard_DrivesDebouncer(t *testing.T) {
	out := make(chan menu.PressEvent, 8)
	d := debounce.New(map[int]menu.Press{22: menu.PressLeft, 27: menu.PressCenter, 17: menu.PressRight}, debounce.DefaultWindow, out)

	k := NewKeyboard(strings.NewReader("rrc\nq\nl\n"), 22, 27, 17, d.Edge, logging.Discard())
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	var got []menu.Press
	for ev := range out {
		got = append(got, ev.Press)
	}
	want := []menu.Press{menu.PressRight, menu.PressRight, menu.PressCenter}
	if len(got) != len(want) {
		t.Fatalf("presses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("press %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKeyboard_EOF(t *testing.T) {
	var log edgeLog
	k := NewKeyboard(strings.NewReader("c\n"), 22, 27, 17, log.edge, logging.Discard())
	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log.lines) != 1 || log.lines[0] != 27 {
		t.Errorf("edges = %v", log.lines)
	}
}

func TestKeyboard_Cancel(t *testing.T) {
	var log edgeLog
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	k := NewKeyboard(blockingReader{}, 22, 27, 17, log.edge, logging.Discard())
	if err := k.Run(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestConsole_DrawSingleFrame(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, 16, 2)

	if err := c.Draw([menu.NumItems]bool{true}, menu.Screen(menu.DHT, true)); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if n := strings.Count(out.String(), "[*] dht"); n != 1 {
		t.Errorf("led row drawn %d times, want 1:\n%s", n, out.String())
	}
}
