package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout_ms: 1500
camera:
  type: "gpio_shutter"
  focus_pin: 24
  shutter_pin: 25
  wake_ms: 100
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  topic_prefix: "lab/cam/"
  qos: 1
logging:
  level: 2
  format: json
mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != CameraGPIOShutter {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, CameraGPIOShutter)
	}
	if cfg.Camera.FocusPin != 24 || cfg.Camera.ShutterPin != 25 {
		t.Errorf("pins = %d/%d, want 24/25", cfg.Camera.FocusPin, cfg.Camera.ShutterPin)
	}
	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %q, want 127.0.0.1:9090", got)
	}
	if got := cfg.RequestTimeout(); got != 1500*time.Millisecond {
		t.Errorf("RequestTimeout() = %v, want 1.5s", got)
	}
	if got := cfg.WakeDuration(); got != 100*time.Millisecond {
		t.Errorf("WakeDuration() = %v, want 100ms", got)
	}
	if cfg.MQTT.TopicPrefix != "lab/cam" {
		t.Errorf("mqtt.topic_prefix = %q, want trailing slash trimmed", cfg.MQTT.TopicPrefix)
	}
	if cfg.Logging.Level != 2 || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want level 2 json", cfg.Logging)
	}
	if !cfg.MockGPIO {
		t.Error("mock_gpio should be true")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "{}")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Camera.Type != CameraSimulated {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, CameraSimulated)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout() = %v, want 30s", cfg.RequestTimeout())
	}
	if cfg.ShutdownTimeout() != 5*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 5s", cfg.ShutdownTimeout())
	}
	if cfg.FocusDelay() != 500*time.Millisecond {
		t.Errorf("FocusDelay() = %v, want 500ms", cfg.FocusDelay())
	}
	if cfg.ShutterDelay() != 200*time.Millisecond {
		t.Errorf("ShutterDelay() = %v, want 200ms", cfg.ShutterDelay())
	}
	if cfg.SimActivateDelay() != 50*time.Millisecond {
		t.Errorf("SimActivateDelay() = %v, want 50ms", cfg.SimActivateDelay())
	}
	if cfg.MQTT.ClientID != "camsrv" || cfg.MQTT.TopicPrefix != "camsrv" {
		t.Errorf("mqtt defaults = %+v", cfg.MQTT)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("logging.format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoad_CameraTypeNormalized(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: \"  Simulated \"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != CameraSimulated {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, CameraSimulated)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %v, want read config file prefix", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"port_too_large", "server:\n  port: 70000\n", "server.port"},
		{"port_negative", "server:\n  port: -1\n", "server.port"},
		{"unknown_camera", "camera:\n  type: polaroid\n", "unsupported camera type"},
		{"gpio_missing_pins", "camera:\n  type: gpio_shutter\n", "focus_pin"},
		{"gpio_same_pins", "camera:\n  type: gpio_shutter\n  focus_pin: 4\n  shutter_pin: 4\n", "must differ"},
		{"mqtt_no_broker", "mqtt:\n  enabled: true\n", "mqtt.broker"},
		{"mqtt_bad_qos", "mqtt:\n  qos: 3\n", "mqtt.qos"},
		{"log_level", "logging:\n  level: 9\n", "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want it to contain %q", err, tc.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate, got: %v", err)
	}
	if !cfg.MockGPIO {
		t.Error("Default() should use mock GPIO")
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", cfg.Addr())
	}
}
