package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported camera driver types.
const (
	CameraSimulated   = "simulated"
	CameraGPIOShutter = "gpio_shutter"
)

// ServerConfig describes the HTTP command surface.
type ServerConfig struct {
	Host              string `yaml:"host"`                // bind host, empty = all interfaces
	Port              int    `yaml:"port"`                // bind port (default 8080)
	RequestTimeoutMs  int    `yaml:"request_timeout_ms"`  // caller-side wait limit per command
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"` // graceful shutdown budget
}

// CameraConfig describes how to reach the imaging device.
// Type selects a concrete driver ("simulated" or "gpio_shutter").
type CameraConfig struct {
	Type           string `yaml:"type"`
	FocusPin       int    `yaml:"focus_pin"`        // GPIO pin for FOCUS line (gpio_shutter)
	ShutterPin     int    `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line (gpio_shutter)
	WakeMs         int    `yaml:"wake_ms"`          // focus pulse that wakes the body on activation
	FocusDelayMs   int    `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int    `yaml:"shutter_delay_ms"` // shutter hold time (ms)

	// Simulated driver knobs.
	SimActivateMs   int    `yaml:"sim_activate_ms"`
	SimCaptureMs    int    `yaml:"sim_capture_ms"`
	SimFailActivate string `yaml:"sim_fail_activate"` // non-empty = activation fails with this reason
	SimFailCapture  string `yaml:"sim_fail_capture"`  // non-empty = captures fail with this reason
}

// MQTTConfig enables the optional MQTT command transport.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// LoggingConfig selects verbosity and output format.
type LoggingConfig struct {
	Level  int    `yaml:"level"`  // 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Format string `yaml:"format"` // console or json
}

// Config aggregates all application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Camera   CameraConfig  `yaml:"camera"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Logging  LoggingConfig `yaml:"logging"`
	MockGPIO bool          `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{MockGPIO: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeoutMs <= 0 {
		c.Server.RequestTimeoutMs = 30000
	}
	if c.Server.ShutdownTimeoutMs <= 0 {
		c.Server.ShutdownTimeoutMs = 5000
	}

	c.Camera.Type = strings.ToLower(strings.TrimSpace(c.Camera.Type))
	if c.Camera.Type == "" {
		c.Camera.Type = CameraSimulated
	}
	if c.Camera.WakeMs <= 0 {
		c.Camera.WakeMs = 300
	}
	if c.Camera.FocusDelayMs <= 0 {
		c.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Camera.ShutterDelayMs <= 0 {
		c.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if c.Camera.SimActivateMs <= 0 {
		c.Camera.SimActivateMs = 50
	}
	if c.Camera.SimCaptureMs <= 0 {
		c.Camera.SimCaptureMs = 100
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "camsrv"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "camsrv"
	}
	c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/")

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	switch c.Camera.Type {
	case CameraSimulated:
	case CameraGPIOShutter:
		if c.Camera.FocusPin <= 0 || c.Camera.ShutterPin <= 0 {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin are required for %s", CameraGPIOShutter)
		}
		if c.Camera.FocusPin == c.Camera.ShutterPin {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin must differ, both are %d", c.Camera.FocusPin)
		}
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Logging.Level < 0 || c.Logging.Level > 4 {
		return fmt.Errorf("logging.level must be between 0 and 4, got %d", c.Logging.Level)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RequestTimeout returns the caller-side wait limit for one command.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}

// WakeDuration returns the focus pulse used to wake the camera.
func (c *Config) WakeDuration() time.Duration {
	return time.Duration(c.Camera.WakeMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// SimActivateDelay returns how long the simulated driver takes to activate.
func (c *Config) SimActivateDelay() time.Duration {
	return time.Duration(c.Camera.SimActivateMs) * time.Millisecond
}

// SimCaptureDelay returns how long a simulated capture takes.
func (c *Config) SimCaptureDelay() time.Duration {
	return time.Duration(c.Camera.SimCaptureMs) * time.Millisecond
}
