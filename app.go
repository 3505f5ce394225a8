package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/r0bb10/sensor-menu/internal/broker"
	"github.com/r0bb10/sensor-menu/internal/config"
	"github.com/r0bb10/sensor-menu/internal/debounce"
	"github.com/r0bb10/sensor-menu/internal/driver"
	"github.com/r0bb10/sensor-menu/internal/events"
	"github.com/r0bb10/sensor-menu/internal/hardware"
	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/metrics"
	"github.com/r0bb10/sensor-menu/internal/render"
	"github.com/r0bb10/sensor-menu/internal/status"
)

// pressQueueSize bounds presses waiting for the router. Edges beyond it are
// dropped and counted by the debouncer.
const pressQueueSize = 32

// display is what the synchronizer and the shutdown path need from a screen.
type display interface {
	render.Display
	driver.Clearer
}

// Application represents the main application state
type Application struct {
	config     config.Config
	configFile string
	override   func(*config.Config)
	logger     *logrus.Entry

	bus       *events.Bus
	state     *menu.State
	presses   chan menu.PressEvent
	debouncer *debounce.Debouncer
	router    *menu.Router

	gpioManager hardware.GPIOManager
	leds        render.LEDs
	display     display
	mqttManager broker.MQTTManager
	publisher   render.Publisher
	notifier    driver.Notifier

	loop     *driver.Loop
	recorder *metrics.Recorder
	status   *status.Server
	watcher  *config.Watcher
	unsubs   []func()

	mu sync.Mutex
}

// NewApplication loads configuration and builds the input side: state,
// debouncer and router. Outputs are attached by the run or simulate command.
func NewApplication(configFile string, override func(*config.Config)) (*Application, error) {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	app := &Application{
		config:     cfg,
		configFile: configFile,
		override:   override,
		logger:     logging.GetLogger("main"),
		bus:        events.New(),
		state:      menu.NewState(),
		presses:    make(chan menu.PressEvent, pressQueueSize),
		recorder:   metrics.New(),
	}
	app.debouncer = debounce.New(cfg.ButtonRoles(), cfg.Debounce(), app.presses)
	app.router = menu.NewRouter(app.state, app.presses, app.bus, logging.GetLogger("menu"))

	app.unsubs = append(app.unsubs, app.recorder.Attach(app.bus))
	app.recorder.ObserveDebouncer(app.debouncer.Stats)
	app.recorder.ObserveState(app.state)

	return app, nil
}

// InitializeHardware opens the GPIO chip and claims the LEDs, the display
// bus and the buttons, in that order, so outputs are ready before the first
// press can arrive.
func (app *Application) InitializeHardware() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	cfg := app.config
	gpio := hardware.NewGPIOManager()
	if err := gpio.OpenChip(cfg.Chip); err != nil {
		return err
	}
	app.gpioManager = gpio

	if err := gpio.SetupLEDs(cfg.Pins.LEDs); err != nil {
		return err
	}
	app.leds = gpio

	lines, err := gpio.RequestOutputs(cfg.LCDLines())
	if err != nil {
		return err
	}
	lcd := hardware.NewHD44780(lines, cfg.Display.Columns, cfg.Display.Rows)
	if err := lcd.Init(); err != nil {
		return err
	}
	app.display = lcd

	offsets := []int{cfg.Pins.Left, cfg.Pins.Center, cfg.Pins.Right}
	if err := gpio.SetupButtons(offsets, hardware.ButtonHandler(app.debouncer.Edge)); err != nil {
		return err
	}

	app.logger.WithFields(logrus.Fields{
		"chip":    cfg.Chip,
		"buttons": offsets,
		"leds":    cfg.Pins.LEDs,
	}).Info("GPIO initialized")
	return nil
}

// UseOutputs attaches LEDs and a display that do not live on the GPIO chip.
func (app *Application) UseOutputs(leds render.LEDs, d display) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.leds = leds
	app.display = d
}

// InitializeMQTT connects to the broker. Failing to connect is fatal.
func (app *Application) InitializeMQTT() error {
	mqttCfg := app.config.MQTT
	m, err := broker.Connect(broker.Config{
		Broker:            mqttCfg.Broker,
		User:              mqttCfg.User,
		Password:          mqttCfg.Password,
		ClientID:          mqttCfg.ClientID,
		KeepAlive:         mqttCfg.KeepAlive(),
		PublishTimeout:    mqttCfg.PublishTimeout(),
		AvailabilityTopic: mqttCfg.AvailabilityTopic,
	}, logging.GetLogger("mqtt"))
	if err != nil {
		return err
	}

	app.mu.Lock()
	app.mqttManager = m
	app.publisher = m
	app.mu.Unlock()

	app.recorder.ObserveBroker(m.IsConnected)
	return nil
}

// UseLogPublisher replaces the broker with one that only logs commands.
func (app *Application) UseLogPublisher() {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.publisher = broker.NewLogPublisher(logging.GetLogger("mqtt"))
}

// UseNotifier reports readiness and liveness through n.
func (app *Application) UseNotifier(n driver.Notifier) {
	app.notifier = n
}

// connected reports broker state for health checks. The log publisher
// counts as connected.
func (app *Application) connected() bool {
	if app.mqttManager == nil {
		return app.publisher != nil
	}
	return app.mqttManager.IsConnected()
}

// Run starts the router and driver loop plus the optional status server and
// config watcher, and blocks until ctx is cancelled. extra runs alongside the
// core goroutines; its return cancels everything.
func (app *Application) Run(ctx context.Context, extra ...func(context.Context) error) error {
	app.mu.Lock()
	if app.leds == nil || app.display == nil || app.publisher == nil {
		app.mu.Unlock()
		return errors.New("outputs not initialized")
	}
	syncer := render.NewSynchronizer(app.state, app.leds, app.display, app.publisher,
		app.config.RenderOptions(), app.bus, logging.GetLogger("render"))
	app.loop = driver.New(app.state, syncer, app.config.TickInterval(), app.notifier, logging.GetLogger("driver"))

	if addr := app.config.Metrics.Listen; addr != "" {
		app.status = status.NewServer(app.state, app.recorder.Registry(), app.connected, logging.GetLogger("status"))
		app.status.Start(addr)
	}
	app.startWatcher()
	app.mu.Unlock()

	app.logger.WithFields(logrus.Fields{
		"policy": app.config.PublishPolicy,
		"tick":   app.config.TickInterval(),
	}).Info("Menu controller running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(app.router.Run(gctx)) })
	g.Go(func() error { return app.loop.Run(gctx) })
	for _, fn := range extra {
		g.Go(func() error {
			err := fn(gctx)
			if err == nil {
				err = errStopped
			}
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

// errStopped ends the group when an extra task finishes on its own.
var errStopped = errors.New("stopped")

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (app *Application) startWatcher() {
	if app.configFile == "" {
		return
	}
	if _, err := os.Stat(app.configFile); err != nil {
		app.logger.WithField("path", app.configFile).Info("No config file, running on defaults")
		return
	}
	app.watcher = config.NewWatcher(app.configFile, logging.GetLogger("config"), config.WithLoader(app.load))
	app.watcher.OnReload(app.applyConfig)
	if err := app.watcher.Start(); err != nil {
		app.logger.WithError(err).Warn("Config watcher unavailable, SIGHUP still reloads")
	}
}

// load reads the config file and reapplies command line overrides so a
// reload never undoes them.
func (app *Application) load(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if app.override != nil {
		app.override(&cfg)
	}
	return cfg, nil
}

// Reload re-reads the config file now, as on SIGHUP.
func (app *Application) Reload() error {
	app.mu.Lock()
	w := app.watcher
	app.mu.Unlock()

	if w == nil {
		return errors.New("no config file to reload")
	}
	return w.Reload()
}

// applyConfig applies the settings that can change live and reports the rest.
func (app *Application) applyConfig(cfg config.Config) {
	app.mu.Lock()
	old := app.config
	restart := cfg.RestartRequired(old)

	if cfg.DebounceMs != old.DebounceMs {
		app.debouncer.SetWindow(cfg.Debounce())
	}
	if cfg.TickMs != old.TickMs && app.loop != nil {
		app.loop.SetInterval(cfg.TickInterval())
	}
	if cfg.Logging.Level != old.Logging.Level {
		if err := logging.SetLevel(cfg.Logging.Level); err != nil {
			app.logger.WithError(err).Warn("Keeping previous log level")
			cfg.Logging.Level = old.Logging.Level
		}
	}
	app.config.DebounceMs = cfg.DebounceMs
	app.config.TickMs = cfg.TickMs
	app.config.Logging.Level = cfg.Logging.Level
	app.config.Shutdown = cfg.Shutdown
	app.mu.Unlock()

	entry := app.logger.WithFields(logrus.Fields{
		"debounce": cfg.Debounce(),
		"tick":     cfg.TickInterval(),
		"level":    cfg.Logging.Level,
	})
	if len(restart) > 0 {
		entry.WithField("restart_required", restart).Warn("Configuration reloaded; some changes need a restart")
	} else {
		entry.Info("Configuration reloaded")
	}
	app.bus.Publish(events.ConfigReloadedEvent{Path: app.configFile, RestartRequired: restart})
}

// Shutdown resets outputs and releases hardware and the broker connection.
// Call after Run has returned.
func (app *Application) Shutdown() error {
	var errs []error

	// The watcher's reload handler takes app.mu, so stop it first.
	app.mu.Lock()
	w := app.watcher
	app.watcher = nil
	app.mu.Unlock()
	if w != nil {
		if err := w.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop config watcher: %w", err))
		}
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	policy := driver.ShutdownPolicy{
		LEDsOff:      app.config.Shutdown.LEDsOff,
		ClearDisplay: app.config.Shutdown.ClearDisplay,
	}
	var clearer driver.Clearer
	if app.display != nil {
		clearer = app.display
	}
	if err := driver.Shutdown(app.leds, clearer, policy); err != nil {
		errs = append(errs, fmt.Errorf("reset outputs: %w", err))
	}

	if app.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := app.status.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop status server: %w", err))
		}
		cancel()
	}

	if app.gpioManager != nil {
		if err := app.gpioManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gpio: %w", err))
		}
	}

	if app.mqttManager != nil {
		app.mqttManager.Disconnect()
	}

	for _, u := range app.unsubs {
		u()
	}
	app.unsubs = nil

	return errors.Join(errs...)
}
