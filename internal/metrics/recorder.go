// Package metrics exposes controller counters and gauges in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/r0bb10/sensor-menu/internal/debounce"
	"github.com/r0bb10/sensor-menu/internal/events"
	"github.com/r0bb10/sensor-menu/internal/menu"
)

const namespace = "sensor_menu"

// Recorder owns a registry and keeps its metrics current from bus events.
type Recorder struct {
	registry *prometheus.Registry

	presses         *prometheus.CounterVec
	renders         prometheus.Counter
	publishFailures *prometheus.CounterVec
	outputFailures  *prometheus.CounterVec
	reloads         prometheus.Counter
	selected        prometheus.Gauge
	enabled         *prometheus.GaugeVec
}

// New creates a recorder with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		presses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presses_total",
			Help:      "Debounced button presses applied to the menu",
		}, []string{"press"}),
		renders: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Snapshots driven to the LEDs and display",
		}),
		publishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_failures_total",
			Help:      "Command publishes that did not complete",
		}, []string{"topic"}),
		outputFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_failures_total",
			Help:      "Failed LED or display writes",
		}, []string{"output"}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Configuration reloads applied",
		}),
		selected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selected_item",
			Help:      "Index of the menu item shown by the last render",
		}),
		enabled: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_enabled",
			Help:      "1 when the sensor was enabled in the last render",
		}, []string{"sensor"}),
	}
}

// Registry returns the registry to serve.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes to bus and returns a function that unsubscribes again.
func (r *Recorder) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StateChangedEvent) {
			r.presses.WithLabelValues(e.Press).Inc()
		}),
		bus.Subscribe(r.observeRender),
		bus.Subscribe(func(e events.PublishFailedEvent) {
			r.publishFailures.WithLabelValues(e.Topic).Inc()
		}),
		bus.Subscribe(func(e events.OutputFailedEvent) {
			r.outputFailures.WithLabelValues(e.Output).Inc()
		}),
		bus.Subscribe(func(events.ConfigReloadedEvent) {
			r.reloads.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Recorder) observeRender(e events.RenderedEvent) {
	r.selected.Set(float64(e.Selected))
	for _, it := range menu.Items() {
		v := 0.0
		if e.Enabled[it] {
			v = 1
		}
		r.enabled.WithLabelValues(it.Name()).Set(v)
	}
	r.renders.Inc()
}

// ObserveDebouncer exports the debouncer's edge counters. Call once.
func (r *Recorder) ObserveDebouncer(stats func() debounce.Stats) {
	factory := promauto.With(r.registry)
	counters := []struct {
		name, help string
		value      func(debounce.Stats) uint64
	}{
		{"edges_accepted_total", "Button edges accepted as presses", func(s debounce.Stats) uint64 { return s.Accepted }},
		{"edges_rejected_total", "Button edges inside the debounce window", func(s debounce.Stats) uint64 { return s.Rejected }},
		{"edges_dropped_total", "Accepted presses lost to a full queue", func(s debounce.Stats) uint64 { return s.Dropped }},
		{"edges_unknown_total", "Edges on lines without a button role", func(s debounce.Stats) uint64 { return s.Unknown }},
	}
	for _, c := range counters {
		value := c.value
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "button",
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(value(stats())) })
	}
}

// ObserveState exports the number of snapshots waiting to be rendered. Call once.
func (r *Recorder) ObserveState(state *menu.State) {
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_snapshots",
		Help:      "Menu snapshots not yet rendered",
	}, func() float64 { return float64(len(state.Pending())) })
}

// ObserveBroker exports the MQTT connection state. Call once.
func (r *Recorder) ObserveBroker(connected func() bool) {
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mqtt",
		Name:      "connected",
		Help:      "1 while the MQTT client is connected",
	}, func() float64 {
		if connected() {
			return 1
		}
		return 0
	})
}
