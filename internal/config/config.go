// Package config loads the controller's TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/render"
)

// DefaultPath is where the service looks when --config is not given.
const DefaultPath = "/etc/sensor-menu/config.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENSOR_MENU_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration structure loaded from TOML.
type Config struct {
	Chip          string         `toml:"chip"`           // GPIO chip device (e.g., "gpiochip0")
	DebounceMs    int64          `toml:"debounce_ms"`    // button debounce window
	TickMs        int64          `toml:"tick_ms"`        // render loop interval
	PublishPolicy string         `toml:"publish_policy"` // "confirmed" or "fire-and-forget"
	MQTT          MQTTConfig     `toml:"mqtt"`
	Topics        TopicsConfig   `toml:"topics"`
	Pins          PinsConfig     `toml:"pins"`
	Display       DisplayConfig  `toml:"display"`
	Shutdown      ShutdownConfig `toml:"shutdown"`
	Logging       logging.Config `toml:"logging"`
	Metrics       MetricsConfig  `toml:"metrics"`
}

// MQTTConfig defines MQTT broker connection settings.
type MQTTConfig struct {
	Broker            string `toml:"broker"` // MQTT broker URL (e.g., "tcp://localhost:1885")
	User              string `toml:"user"`
	Password          string `toml:"password"`
	ClientID          string `toml:"client_id"`
	KeepAliveS        int64  `toml:"keepalive_s"`
	QoS               int    `toml:"qos"`
	Retain            bool   `toml:"retain"`
	PublishTimeoutMs  int64  `toml:"publish_timeout_ms"`
	AvailabilityTopic string `toml:"availability_topic"` // "" disables online/offline reporting
}

// TopicsConfig overrides the per-sensor command topics.
type TopicsConfig struct {
	DHT    string `toml:"dht"`
	Keypad string `toml:"keypad"`
	Motion string `toml:"motion"`
	Rotary string `toml:"rotary"`
}

// PinsConfig holds BCM line offsets on Chip.
type PinsConfig struct {
	Left    int    `toml:"left"`
	Center  int    `toml:"center"`
	Right   int    `toml:"right"`
	LEDs    [4]int `toml:"leds"`     // one per menu slot, in slot order
	LCDRS   int    `toml:"lcd_rs"`   // register select
	LCDEN   int    `toml:"lcd_en"`   // enable strobe
	LCDData [4]int `toml:"lcd_data"` // D4..D7
}

// DisplayConfig is the character display geometry.
type DisplayConfig struct {
	Columns int `toml:"columns"`
	Rows    int `toml:"rows"`
}

// ShutdownConfig decides which outputs are reset on exit.
type ShutdownConfig struct {
	LEDsOff      bool `toml:"leds_off"`
	ClearDisplay bool `toml:"clear_display"`
}

// MetricsConfig enables the status HTTP server when Listen is set.
type MetricsConfig struct {
	Listen string `toml:"listen"` // e.g. ":9102"; "" disables
}

// Default returns the wiring and settings of the stock controller board.
func Default() Config {
	return Config{
		Chip:          "gpiochip0",
		DebounceMs:    10,
		TickMs:        1000,
		PublishPolicy: string(render.PolicyConfirmed),
		MQTT: MQTTConfig{
			Broker:            "tcp://localhost:1885",
			ClientID:          "master-menu",
			KeepAliveS:        60,
			QoS:               1,
			Retain:            true,
			PublishTimeoutMs:  5000,
			AvailabilityTopic: "master-menu/status",
		},
		Topics: TopicsConfig{
			DHT:    menu.DHT.DefaultTopic(),
			Keypad: menu.Keypad.DefaultTopic(),
			Motion: menu.Motion.DefaultTopic(),
			Rotary: menu.Rotary.DefaultTopic(),
		},
		Pins: PinsConfig{
			Left:    22,
			Center:  27,
			Right:   17,
			LEDs:    [4]int{25, 24, 23, 12},
			LCDRS:   26,
			LCDEN:   19,
			LCDData: [4]int{13, 6, 5, 11},
		},
		Display: DisplayConfig{Columns: 16, Rows: 2},
		Shutdown: ShutdownConfig{
			LEDsOff:      true,
			ClearDisplay: true,
		},
		Logging: logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadOrDefault behaves like Load but tolerates a missing file.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}
	return Load(path)
}

// ApplyEnv overrides the broker credentials and log level from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := getenv(EnvPrefix + "MQTT_USER"); v != "" {
		c.MQTT.User = v
	}
	if v := getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks ranges, enums and pin assignments.
func (c Config) Validate() error {
	var errs []error
	if c.Chip == "" {
		errs = append(errs, errors.New("chip is empty"))
	}
	if c.DebounceMs <= 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must be positive, got %d", c.DebounceMs))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if _, err := render.ParsePolicy(c.PublishPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is empty"))
	}
	if c.MQTT.ClientID == "" {
		errs = append(errs, errors.New("mqtt.client_id is empty"))
	}
	if c.MQTT.KeepAliveS <= 0 {
		errs = append(errs, fmt.Errorf("mqtt.keepalive_s must be positive, got %d", c.MQTT.KeepAliveS))
	}
	if c.MQTT.PublishTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("mqtt.publish_timeout_ms must be positive, got %d", c.MQTT.PublishTimeoutMs))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	for _, it := range menu.Items() {
		if c.TopicTable().Topic(it) == "" {
			errs = append(errs, fmt.Errorf("topics.%s is empty", it.Name()))
		}
	}
	if c.Display.Columns <= 0 || c.Display.Rows <= 0 || c.Display.Rows > 4 {
		errs = append(errs, fmt.Errorf("display must be 1-4 rows of at least one column, got %dx%d", c.Display.Columns, c.Display.Rows))
	}

	seen := make(map[int]string)
	for _, p := range c.Pins.named() {
		if p.pin < 0 {
			errs = append(errs, fmt.Errorf("pins.%s is negative", p.name))
			continue
		}
		if other, dup := seen[p.pin]; dup {
			errs = append(errs, fmt.Errorf("pin %d assigned to both %s and %s", p.pin, other, p.name))
			continue
		}
		seen[p.pin] = p.name
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

type namedPin struct {
	name string
	pin  int
}

// named lists every pin in a fixed order so errors are deterministic.
func (p PinsConfig) named() []namedPin {
	pins := []namedPin{
		{"left", p.Left},
		{"center", p.Center},
		{"right", p.Right},
	}
	for i, pin := range p.LEDs {
		pins = append(pins, namedPin{fmt.Sprintf("leds[%d]", i), pin})
	}
	pins = append(pins, namedPin{"lcd_rs", p.LCDRS}, namedPin{"lcd_en", p.LCDEN})
	for i, pin := range p.LCDData {
		pins = append(pins, namedPin{fmt.Sprintf("lcd_data[%d]", i), pin})
	}
	return pins
}

// Debounce returns the debounce window.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// TickInterval returns the render loop interval.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// KeepAlive returns the MQTT keepalive interval.
func (c MQTTConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveS) * time.Second
}

// PublishTimeout returns the longest a publish waits for its ack.
func (c MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMs) * time.Millisecond
}

// TopicTable returns topics in slot order.
func (c Config) TopicTable() menu.Topics {
	return menu.Topics{
		menu.DHT:    c.Topics.DHT,
		menu.Keypad: c.Topics.Keypad,
		menu.Motion: c.Topics.Motion,
		menu.Rotary: c.Topics.Rotary,
	}
}

// ButtonRoles maps button line offsets to presses.
func (c Config) ButtonRoles() map[int]menu.Press {
	return map[int]menu.Press{
		c.Pins.Left:   menu.PressLeft,
		c.Pins.Center: menu.PressCenter,
		c.Pins.Right:  menu.PressRight,
	}
}

// LCDLines returns the display lines in bus order: RS, EN, D4..D7.
func (c Config) LCDLines() []int {
	return []int{c.Pins.LCDRS, c.Pins.LCDEN, c.Pins.LCDData[0], c.Pins.LCDData[1], c.Pins.LCDData[2], c.Pins.LCDData[3]}
}

// RenderOptions converts the publish settings for the synchronizer.
func (c Config) RenderOptions() render.Options {
	policy, err := render.ParsePolicy(c.PublishPolicy)
	if err != nil {
		policy = render.PolicyConfirmed
	}
	return render.Options{
		Topics: c.TopicTable(),
		QoS:    byte(c.MQTT.QoS),
		Retain: c.MQTT.Retain,
		Policy: policy,
	}
}

// RestartRequired lists settings that differ from old and only take effect
// after a restart. Debounce, tick interval and log level apply live.
func (c Config) RestartRequired(old Config) []string {
	var fields []string
	if c.Chip != old.Chip {
		fields = append(fields, "chip")
	}
	if c.Pins != old.Pins {
		fields = append(fields, "pins")
	}
	if c.MQTT != old.MQTT {
		fields = append(fields, "mqtt")
	}
	if c.Topics != old.Topics {
		fields = append(fields, "topics")
	}
	if c.PublishPolicy != old.PublishPolicy {
		fields = append(fields, "publish_policy")
	}
	if c.Display != old.Display {
		fields = append(fields, "display")
	}
	if c.Metrics != old.Metrics {
		fields = append(fields, "metrics")
	}
	if c.Logging.Format != old.Logging.Format {
		fields = append(fields, "logging.format")
	}
	return fields
}
