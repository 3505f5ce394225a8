package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/r0bb10/sensor-menu/internal/config"
	"github.com/r0bb10/sensor-menu/internal/driver"
	"github.com/r0bb10/sensor-menu/internal/logging"
	"github.com/r0bb10/sensor-menu/internal/menu"
	"github.com/r0bb10/sensor-menu/internal/sim"
	"github.com/r0bb10/sensor-menu/internal/version"
)

// Options holds the flags shared by every command.
type Options struct {
	ConfigFile string
	Broker     string
	LogLevel   string
}

// override applies flags the user set explicitly; flags win over the
// environment, which wins over the file.
func (o *Options) override(flags *pflag.FlagSet) func(*config.Config) {
	return func(cfg *config.Config) {
		if flags.Changed("broker") {
			cfg.MQTT.Broker = o.Broker
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level = o.LogLevel
		}
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "sensor-menu",
		Short:         "Three-button menu that switches sensor nodes on and off over MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", config.DefaultPath, "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.Broker, "broker", "", "MQTT broker URL, overrides mqtt.broker")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the controller on the GPIO board",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runController(cmd, opts)
			},
		},
		newSimulateCmd(opts),
		newScreensCmd(),
		newVersionCmd(),
	)
	return root
}

func runController(cmd *cobra.Command, opts *Options) error {
	app, err := NewApplication(opts.ConfigFile, opts.override(cmd.Flags()))
	if err != nil {
		logrus.WithError(err).Error("Critical: startup failed")
		return err
	}
	app.logger.Infof("Sensor menu %s", version.Get())

	if err := app.InitializeHardware(); err != nil {
		app.logger.WithError(err).Error("GPIO initialization failed")
		_ = app.Shutdown()
		return err
	}
	if err := app.InitializeMQTT(); err != nil {
		app.logger.WithError(err).Error("MQTT initialization failed")
		_ = app.Shutdown()
		return err
	}
	app.UseNotifier(driver.SystemdNotifier{})

	return serve(app)
}

func newSimulateCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run the menu in the terminal: type l, c or r and Enter to press",
		Long: `Runs the controller with the display and LEDs drawn on the terminal.
Commands are logged instead of published unless --broker is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetOutput(os.Stderr)
			app, err := NewApplication(opts.ConfigFile, opts.override(cmd.Flags()))
			if err != nil {
				return err
			}

			cfg := app.config
			console := sim.NewConsole(os.Stdout, cfg.Display.Columns, cfg.Display.Rows)
			app.UseOutputs(console, console)
			if cmd.Flags().Changed("broker") {
				if err := app.InitializeMQTT(); err != nil {
					return err
				}
			} else {
				app.UseLogPublisher()
			}

			kb := sim.NewKeyboard(os.Stdin, cfg.Pins.Left, cfg.Pins.Center, cfg.Pins.Right,
				app.debouncer.Edge, logging.GetLogger("sim"))
			return serve(app, kb.Run)
		},
	}
}

func newScreensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "screens",
		Short: "Print every menu screen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, it := range menu.Items() {
				for _, enabled := range []bool{false, true} {
					fmt.Fprintf(out, "%s enabled=%t\n", it.Name(), enabled)
					console := sim.NewConsole(out, 16, 2)
					var leds [menu.NumItems]bool
					leds[it] = enabled
					if err := console.Draw(leds, menu.Screen(it, enabled)); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}

// serve runs app until SIGINT or SIGTERM, reloading config on SIGHUP, then
// shuts it down.
func serve(app *Application, extra ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	go func() {
		for {
			select {
			case s := <-sig:
				if s == syscall.SIGHUP {
					app.logger.Info("Received SIGHUP - Reloading configuration...")
					if err := app.Reload(); err != nil {
						app.logger.WithError(err).Warn("Reload failed")
					}
					continue
				}
				app.logger.WithField("signal", s.String()).Info("Shutting down...")
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	app.logger.Info("Running. Press Ctrl+C to exit, or send SIGHUP to reload config.")
	runErr := app.Run(ctx, extra...)
	cancel()

	if err := app.Shutdown(); err != nil {
		app.logger.WithError(err).Error("Shutdown error")
	}
	if runErr != nil {
		app.logger.WithError(runErr).Error("Controller stopped")
	}
	return runErr
}
