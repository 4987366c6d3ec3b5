// Package main provides the entry point for the ambient-light brightness daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shini4i/als-brightness-daemon/internal/brightness"
	"github.com/shini4i/als-brightness-daemon/internal/config"
	"github.com/shini4i/als-brightness-daemon/internal/daemon"
	"github.com/shini4i/als-brightness-daemon/internal/dbus"
	"github.com/shini4i/als-brightness-daemon/internal/hid"
	"github.com/shini4i/als-brightness-daemon/internal/logind"
	"github.com/shini4i/als-brightness-daemon/internal/sensor"
	"github.com/shini4i/als-brightness-daemon/internal/sysfs"
	"github.com/shini4i/als-brightness-daemon/internal/udev"
)

var (
	verbose    bool
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "als-brightness-daemon",
		Short: "Ambient-light driven screen and keyboard backlight daemon",
		Long: `als-brightness-daemon polls an ambient light sensor and sets the screen
and keyboard backlight levels through the logind session, writing only when
the level changes.

The screen curve can be shifted by an offset in percentage points via D-Bus,
e.g. from brightness hotkeys bound to "als-brightness-daemon offset increase".`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(configPath))
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}

	offsetCmd = &cobra.Command{
		Use:   "offset",
		Short: "Change the screen brightness offset of the running daemon",
	}

	offsetIncreaseCmd = &cobra.Command{
		Use:   "increase [step]",
		Short: "Raise the screen offset (default step from config)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOffset(cmd, args, (*dbus.Client).IncreaseOffset)
		},
	}

	offsetDecreaseCmd = &cobra.Command{
		Use:   "decrease [step]",
		Short: "Lower the screen offset (default step from config)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOffset(cmd, args, (*dbus.Client).DecreaseOffset)
		},
	}

	offsetResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Reset the screen offset to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOffset(cmd, nil, func(c *dbus.Client, _ uint32) (int32, error) {
				return c.ResetOffset()
			})
		},
	}

	offsetGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Print the current screen offset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOffset(cmd, nil, func(c *dbus.Client, _ uint32) (int32, error) {
				return c.GetOffset()
			})
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/als-brightness/config.yaml)")

	offsetCmd.AddCommand(offsetIncreaseCmd, offsetDecreaseCmd, offsetResetCmd, offsetGetCmd)
	rootCmd.AddCommand(configCmd, offsetCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// parseStep parses an optional step argument; no argument means the daemon default.
func parseStep(args []string) (uint32, error) {
	if len(args) == 0 {
		return 0, nil
	}
	step, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || step < 1 || step > 100 {
		return 0, fmt.Errorf("step must be a number between 1 and 100, got %q", args[0])
	}
	return uint32(step), nil
}

func callOffset(cmd *cobra.Command, args []string, fn func(*dbus.Client, uint32) (int32, error)) error {
	step, err := parseStep(args)
	if err != nil {
		return err
	}

	client, err := dbus.Dial()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close D-Bus connection")
		}
	}()

	offset, err := fn(client, step)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), offset)
	return err
}

// resolveDevice fills in an empty device name by scanning the device class.
func resolveDevice(reader *sysfs.Reader, dev config.DeviceConfig, pattern string) (config.DeviceConfig, error) {
	if !dev.Enabled || dev.Name != "" || dev.Class == hid.Class {
		return dev, nil
	}
	name, err := reader.FindDevice(dev.Class, pattern)
	if err != nil {
		return dev, err
	}
	dev.Name = name
	return dev, nil
}

func openSensor(cfg config.SensorConfig) (*sensor.Sensor, error) {
	if cfg.Path != "" {
		return sensor.New(cfg.Path), nil
	}
	return sensor.Discover(sensor.IIORoot)
}

// watchedDevices lists the controlled sysfs devices for the udev monitor.
func watchedDevices(devices ...config.DeviceConfig) []string {
	var watched []string
	for _, d := range devices {
		if d.Enabled && d.Name != "" && d.Class != hid.Class {
			watched = append(watched, d.Class+"/"+d.Name)
		}
	}
	return watched
}

const backlightClass = "backlight"

func run() error {
	v := config.New(configPath)
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log.Info().Str("config", v.ConfigFileUsed()).Msg("Starting als-brightness-daemon")

	reader := sysfs.NewReader()

	screenDev, err := resolveDevice(reader, cfg.Screen, "*")
	if err != nil {
		return fmt.Errorf("no screen backlight found: %w", err)
	}
	keyboardDev, err := resolveDevice(reader, cfg.Keyboard, "*kbd_backlight*")
	if err != nil {
		log.Warn().Err(err).Msg("No keyboard backlight found, keyboard control disabled")
		keyboardDev.Enabled = false
	}

	als, err := openSensor(cfg.Sensor)
	if err != nil {
		return err
	}
	log.Info().Str("path", als.Path()).Msg("Using ambient light sensor")

	// The logind session is borrowed by the controllers and closed here.
	conn, err := logind.Connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close system bus connection")
		}
	}()

	displays := hid.NewBackend()
	defer func() {
		if err := displays.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close displays")
		}
	}()
	router := hid.NewRouter(displays, reader, logind.NewSession(conn))

	server := dbus.NewServer(cfg.Offset.Step)

	// The monitor starts first so each controller knows whether its writes
	// are already reported as uevents.
	var monitor *udev.Monitor
	if cfg.Udev.Enabled {
		monitor = udev.NewMonitor(watchedDevices(screenDev, keyboardDev), createChangeHandler(reader, server))
		if err := monitor.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start udev monitor (external changes not signalled)")
			monitor = nil
		}
	}
	defer func() {
		if monitor == nil {
			return
		}
		if err := monitor.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop udev monitor")
		}
	}()

	controllerOpts := func(dev config.DeviceConfig) []brightness.Option {
		opts := []brightness.Option{brightness.WithReader(router)}
		if needsObserver(dev, monitor != nil) {
			opts = append(opts, brightness.WithObserver(func(device string, _ uint32, d brightness.Decision) {
				server.EmitBrightnessChanged(device, d.Level)
			}))
		}
		return opts
	}

	loopOpts := []daemon.Option{daemon.WithInterval(cfg.Sensor.Interval)}
	if screenDev.Enabled {
		screen, err := brightness.NewScreen(router, screenDev.Class, screenDev.Name, controllerOpts(screenDev)...)
		if err != nil {
			return err
		}
		log.Info().
			Str("device", screen.Device()).
			Uint32("max_brightness", screen.MaxBrightness()).
			Msg("Controlling screen backlight")
		loopOpts = append(loopOpts, daemon.WithScreen(screen))
	}
	if keyboardDev.Enabled {
		keyboard := brightness.NewKeyboard(router, keyboardDev.Class, keyboardDev.Name, controllerOpts(keyboardDev)...)
		log.Info().Str("device", keyboard.Device()).Msg("Controlling keyboard backlight")
		loopOpts = append(loopOpts, daemon.WithKeyboard(keyboard))
	}

	loop := daemon.New(als, loopOpts...)
	server.SetController(loop)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(ctx)
	}()

	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		config.Watch(v, func(c *config.Config) {
			server.SetDefaultStep(c.Offset.Step)
			if err := loop.SetInterval(c.Sensor.Interval); err != nil && !errors.Is(err, daemon.ErrStopped) {
				log.Error().Err(err).Msg("Failed to apply polling interval")
			}
		})
	}

	if cfg.DBus.Enabled {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start D-Bus service (offset control disabled)")
		}
	}

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	err = <-loopErr

	log.Info().Msg("Shutting down...")
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}

	log.Info().Msg("Daemon stopped")
	return err
}

// needsObserver reports whether a controller must signal its own writes.
// The kernel sends a change uevent when a backlight-class device is written
// through sysfs, but not for leds-class devices, and displays are not watched
// at all.
func needsObserver(dev config.DeviceConfig, monitorRunning bool) bool {
	return !monitorRunning || dev.Class != backlightClass
}

// brightnessNotifier emits brightness change signals.
type brightnessNotifier interface {
	EmitBrightnessChanged(device string, level uint32)
}

// createChangeHandler returns a udev handler that reads the new level and
// forwards it as a D-Bus signal.
func createChangeHandler(reader brightness.Reader, notifier brightnessNotifier) udev.EventHandler {
	return func(event udev.Event) {
		level, err := reader.ReadAttribute(event.Subsystem, event.Name, brightness.AttrBrightness)
		if err != nil {
			log.Warn().Err(err).Str("device", event.Device()).Msg("Failed to read changed brightness")
			return
		}
		notifier.EmitBrightnessChanged(event.Device(), level)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
