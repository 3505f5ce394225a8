package hardware

import (
	"errors"
	"testing"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/r0bb10/sensor-menu/internal/menu"
)

func TestLEDValues(t *testing.T) {
	got := ledValues([menu.NumItems]bool{true, false, true, false})
	want := []int{1, 0, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ledValues = %v, want %v", got, want)
		}
	}
}

func TestButtonHandler_ForwardsFallingEdges(t *testing.T) {
	type edge struct {
		line int
		ts   time.Duration
	}
	var got []edge
	h := ButtonHandler(func(line int, ts time.Duration) bool {
		got = append(got, edge{line, ts})
		return true
	})

	h(gpiod.LineEvent{Offset: 27, Timestamp: time.Second, Type: gpiod.LineEventFallingEdge})
	h(gpiod.LineEvent{Offset: 27, Timestamp: 2 * time.Second, Type: gpiod.LineEventRisingEdge})

	if len(got) != 1 || got[0] != (edge{27, time.Second}) {
		t.Errorf("forwarded %+v, want only the falling edge", got)
	}
}

func TestGPIOManager_RequiresChip(t *testing.T) {
	g := NewGPIOManager()

	if err := g.SetupLEDs([menu.NumItems]int{25, 24, 23, 12}); !errors.Is(err, ErrChipNotOpened) {
		t.Errorf("SetupLEDs = %v, want ErrChipNotOpened", err)
	}
	if err := g.SetupButtons([]int{22, 27, 17}, func(gpiod.LineEvent) {}); !errors.Is(err, ErrChipNotOpened) {
		t.Errorf("SetupButtons = %v, want ErrChipNotOpened", err)
	}
	if err := g.SetLEDs([menu.NumItems]bool{}); !errors.Is(err, ErrChipNotOpened) {
		t.Errorf("SetLEDs = %v, want ErrChipNotOpened", err)
	}
	if _, err := g.RequestOutputs([]int{26, 19}); !errors.Is(err, ErrChipNotOpened) {
		t.Errorf("RequestOutputs = %v, want ErrChipNotOpened", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close on unopened manager = %v", err)
	}
}
