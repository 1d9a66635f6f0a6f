package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cjeanneret/camsrv/internal/command"
	"github.com/cjeanneret/camsrv/internal/config"
	"github.com/cjeanneret/camsrv/internal/debug"
	"github.com/cjeanneret/camsrv/internal/device"
	"github.com/cjeanneret/camsrv/internal/hostinfo"
	"github.com/cjeanneret/camsrv/internal/hw/camera"
	"github.com/cjeanneret/camsrv/internal/hw/gpio"
	"github.com/cjeanneret/camsrv/internal/mqtt"
	"github.com/cjeanneret/camsrv/internal/web"
)

var defaultConfigPath = filepath.Join("configs", "default.yaml")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath     string
	configExplicit bool
	port           int    // 0 = from config
	logLevel       int    // -1 = from config
	logFormat      string // "" = from config
	help           bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("camsrv", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to config file")
	flagSet.IntVarP(&opts.port, "port", "p", 0, "HTTP port (overrides server.port)")
	flagSet.IntVar(&opts.logLevel, "log-level", -1, "log level 0-4 (overrides logging.level)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "console or json (overrides logging.format)")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, flagSet, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	opts.configExplicit = flagSet.Changed("config")
	return opts, flagSet, nil
}

// loadConfig reads the config file. A missing default file falls back to
// built-in defaults; a missing file named on the command line is an error.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if !opts.configExplicit && errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.logLevel >= 0 {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newDriverFromConfig selects a camera implementation. The returned close
// function releases whatever hardware the driver holds.
func newDriverFromConfig(cfg *config.Config) (device.Driver, func() error, error) {
	switch cfg.Camera.Type {
	case config.CameraSimulated:
		sim := camera.NewSimulated(camera.SimConfig{
			ActivateDelay: cfg.SimActivateDelay(),
			CaptureDelay:  cfg.SimCaptureDelay(),
			FailActivate:  cfg.Camera.SimFailActivate,
			FailCapture:   cfg.Camera.SimFailCapture,
		})
		return sim, func() error { return nil }, nil

	case config.CameraGPIOShutter:
		debug.Value("Mock GPIO", cfg.MockGPIO)
		gpioDriver, err := gpio.NewDriver(cfg.MockGPIO)
		if err != nil {
			return nil, nil, fmt.Errorf("init GPIO: %w", err)
		}
		shutter := camera.NewGPIOShutter(gpioDriver, camera.ShutterConfig{
			FocusPin:     cfg.Camera.FocusPin,
			ShutterPin:   cfg.Camera.ShutterPin,
			Wake:         cfg.WakeDuration(),
			FocusDelay:   cfg.FocusDelay(),
			ShutterDelay: cfg.ShutterDelay(),
		})
		return shutter, gpioDriver.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

func run(args []string) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		fmt.Fprintln(os.Stderr, "Usage: camsrv [flags]")
		flagSet.PrintDefaults()
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	debug.Init(cfg.Logging.Level, cfg.Logging.Format)

	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Log level", cfg.Logging.Level)
	debug.Value("Camera type", cfg.Camera.Type)
	debug.PrintStruct("Camera config", cfg.Camera)

	driver, closeDriver, err := newDriverFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDriver(); err != nil {
			debug.Error(fmt.Errorf("closing camera driver: %w", err))
		}
	}()

	ctrl := device.NewController(driver)
	defer ctrl.Close()
	ctrl.Observe(broadcaster)

	dispatcher := command.NewDispatcher(ctrl, hostinfo.New(), cfg.RequestTimeout())

	if cfg.MQTT.Enabled {
		debug.Section("MQTT")
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return err
		}
		defer client.Close()

		mqttServer := mqtt.NewServer(client, dispatcher, cfg.MQTT.TopicPrefix)
		if err := mqttServer.Start(ctx); err != nil {
			return err
		}
		defer mqttServer.Stop()
		ctrl.Observe(mqttServer)
	}

	debug.Section("HTTP")
	handlers := web.NewHandlers(dispatcher, ctrl, broadcaster)
	srv := web.NewServer(cfg.Addr(), cfg.ShutdownTimeout(), handlers)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	debug.Info("camsrv stopped")
	return nil
}
