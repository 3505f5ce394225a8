package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/r0bb10/sensor-menu/internal/config"
	"github.com/r0bb10/sensor-menu/internal/events"
	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/sim"
)

func newTestApp(t *testing.T, body string) *Application {
	t.Helper()
	return newTestAppWithOverride(t, body, nil)
}

func newTestAppWithOverride(t *testing.T, body string, override func(*config.Config)) *Application {
	t.Helper()
	logging.SetOutput(io.Discard)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	app, err := NewApplication(path, override)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	return app
}

func TestApplication_PressReachesOutputs(t *testing.T) {
	app := newTestApp(t, "tick_ms = 10\n")
	console := sim.NewConsole(io.Discard, 16, 2)
	app.UseOutputs(console, console)
	app.UseLogPublisher()

	cfg := app.config
	press := func(ctx context.Context) error {
		app.debouncer.Edge(cfg.Pins.Right, 100*time.Millisecond)
		app.debouncer.Edge(cfg.Pins.Center, 200*time.Millisecond)

		want := [menu.NumItems]bool{false, true, false, false}
		deadline := time.After(2 * time.Second)
		for console.LEDs() != want || app.state.Dirty() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				t.Errorf("outputs never caught up: leds %v", console.LEDs())
				return nil
			case <-time.After(5 * time.Millisecond):
			}
		}
		return nil
	}

	if err := app.Run(context.Background(), press); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if got := console.LEDs(); got != [menu.NumItems]bool{} {
		t.Errorf("leds after shutdown = %v, want all off", got)
	}
	if len(console.Screen()) != 0 {
		t.Errorf("screen after shutdown = %v, want cleared", console.Screen())
	}
}

func TestApplication_RunWithoutOutputs(t *testing.T) {
	app := newTestApp(t, "")
	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run without outputs should fail")
	}
}

func TestApplication_ApplyConfig(t *testing.T) {
	app := newTestApp(t, "")

	reloaded := make(chan events.ConfigReloadedEvent, 1)
	defer app.bus.Subscribe(func(e events.ConfigReloadedEvent) { reloaded <- e })()

	next := app.config
	next.DebounceMs = 40
	next.Chip = "gpiochip4"
	app.applyConfig(next)

	if got := app.debouncer.Window(); got != 40*time.Millisecond {
		t.Errorf("debounce window = %v, want 40ms", got)
	}
	if app.config.Chip != config.Default().Chip {
		t.Errorf("chip changed live to %q", app.config.Chip)
	}

	select {
	case e := <-reloaded:
		if len(e.RestartRequired) != 1 || e.RestartRequired[0] != "chip" {
			t.Errorf("restart required = %v, want [chip]", e.RestartRequired)
		}
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}
}

func TestOptions_OverrideOnlyChangedFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.PersistentFlags().Parse([]string{"--broker", "tcp://flag:1883"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	opts := &Options{Broker: "tcp://flag:1883", LogLevel: "debug"}
	cfg := config.Default()
	opts.override(cmd.PersistentFlags())(&cfg)

	if cfg.MQTT.Broker != "tcp://flag:1883" {
		t.Errorf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want unchanged", cfg.Logging.Level)
	}
}

func TestApplication_ReloadKeepsFlagOverrides(t *testing.T) {
	app := newTestAppWithOverride(t, "[logging]\nlevel = \"warn\"\n", func(c *config.Config) {
		c.Logging.Level = "debug"
		c.MQTT.Broker = "tcp://flag:1883"
	})
	defer app.Shutdown()

	reloaded := make(chan events.ConfigReloadedEvent, 1)
	defer app.bus.Subscribe(func(e events.ConfigReloadedEvent) { reloaded <- e })()

	app.mu.Lock()
	app.startWatcher()
	app.mu.Unlock()

	if err := app.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	app.mu.Lock()
	level, broker := app.config.Logging.Level, app.config.MQTT.Broker
	app.mu.Unlock()
	if level != "debug" {
		t.Errorf("log level = %q after reload, want debug", level)
	}
	if broker != "tcp://flag:1883" {
		t.Errorf("broker = %q after reload", broker)
	}

	select {
	case e := <-reloaded:
		if len(e.RestartRequired) != 0 {
			t.Errorf("restart required = %v, want none", e.RestartRequired)
		}
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}
}

func TestApplication_ReloadWhileStarting(t *testing.T) {
	app := newTestApp(t, "tick_ms = 10\n")
	console := sim.NewConsole(io.Discard, 16, 2)
	app.UseOutputs(console, console)
	app.UseLogPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	for i := 0; i < 20; i++ {
		_ = app.Reload()
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
