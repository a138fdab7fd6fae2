package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://192.168.1.103:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ConnectTimeout != 30*time.Second || cfg.MQTT.KeepAlive != 100*time.Second {
		t.Errorf("timeouts: got %v/%v", cfg.MQTT.ConnectTimeout, cfg.MQTT.KeepAlive)
	}
	if cfg.MQTT.ReconnectDelay != 5*time.Second {
		t.Errorf("reconnect delay: got %v", cfg.MQTT.ReconnectDelay)
	}
	if cfg.Topics() != logic.DefaultTopics() {
		t.Errorf("topics: got %+v", cfg.Topics())
	}
	if cfg.Station.Latitude != 60.056553 || cfg.Station.Longitude != 16.793934 {
		t.Errorf("coordinate: got %v,%v", cfg.Station.Latitude, cfg.Station.Longitude)
	}
	if cfg.Station.SaveInterval != time.Hour || cfg.Station.Window != 24 {
		t.Errorf("station: got %v/%d", cfg.Station.SaveInterval, cfg.Station.Window)
	}
	if cfg.Station.RefreshSchedule != "@every 1m" {
		t.Errorf("schedule: got %q", cfg.Station.RefreshSchedule)
	}
	if cfg.Storage.Driver != "sqlite3" || cfg.Storage.DSN != "weatherstation.db" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.LED.Pin != 0 {
		t.Errorf("http/led: got %q/%d", cfg.HTTP.Addr, cfg.LED.Pin)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("log format: got %q", cfg.Logging.Format)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: "ssl://broker.example.com:8883"
  reconnectDelay: 30s
  topics:
    greenhouseTemperature: "home/gh/t"
    greenhouseHumidity: "home/gh/h"
    breweryTemperature: "home/br/t"
    breweryHumidity: "home/br/h"
station:
  latitude: 59.3293
  longitude: 18.0686
  timezone: "UTC"
  saveInterval: 30m
  window: 12
  refreshSchedule: "*/5 * * * *"
storage:
  driver: "POSTGRES"
  dsn: "postgres://station:secret@db:5432/weather?sslmode=disable"
http:
  addr: ":9090"
  allowedOrigins: ["http://phone.local"]
led:
  pin: 17
logging:
  format: "LOGFMT"
  level: "DEBUG"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.MQTT.Broker != "ssl://broker.example.com:8883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ReconnectDelay != 30*time.Second {
		t.Errorf("reconnect delay: got %v", cfg.MQTT.ReconnectDelay)
	}
	if got := cfg.Topics().List(); got[0] != "home/gh/t" || got[3] != "home/br/h" {
		t.Errorf("topics: got %v", got)
	}
	if cfg.Station.SaveInterval != 30*time.Minute || cfg.Station.Window != 12 {
		t.Errorf("station: got %v/%d", cfg.Station.SaveInterval, cfg.Station.Window)
	}
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Errorf("location: got %v", loc)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("driver should be normalized, got %q", cfg.Storage.Driver)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.LED.Pin != 17 {
		t.Errorf("http/led: got %v/%d", cfg.HTTP.AllowedOrigins, cfg.LED.Pin)
	}
	if cfg.Logging.Format != "logfmt" || cfg.Logging.Level != "debug" {
		t.Errorf("logging should be normalized, got %+v", cfg.Logging)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://10.0.0.5:1883")
	t.Setenv("SAVE_INTERVAL", "2h")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://10.0.0.5:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.Station.SaveInterval != 2*time.Hour {
		t.Errorf("save interval: got %v", cfg.Station.SaveInterval)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("log format: got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7070")
	cfg, err := Load(writeConfig(t, "http:\n  addr: \":9090\"\n"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("addr: got %q, want :7070", cfg.HTTP.Addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "station:\n  timezone: UTC\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad scheme", func(c *Config) { c.MQTT.Broker = "http://b:1883" }, "scheme"},
		{"no host", func(c *Config) { c.MQTT.Broker = "tcp://" }, "invalid broker URL"},
		{"zero connect timeout", func(c *Config) { c.MQTT.ConnectTimeout = 0 }, "connect timeout"},
		{"negative reconnect delay", func(c *Config) { c.MQTT.ReconnectDelay = -time.Second }, "reconnect delay"},
		{"empty topic", func(c *Config) { c.MQTT.Topics.BreweryHumidity = "" }, "topics are required"},
		{"duplicate topic", func(c *Config) { c.MQTT.Topics.BreweryHumidity = c.MQTT.Topics.GreenhouseHumidity }, "duplicate topic"},
		{"latitude", func(c *Config) { c.Station.Latitude = 91 }, "latitude"},
		{"longitude", func(c *Config) { c.Station.Longitude = -181 }, "longitude"},
		{"timezone", func(c *Config) { c.Station.Timezone = "Mars/Olympus" }, "timezone"},
		{"save interval", func(c *Config) { c.Station.SaveInterval = 0 }, "save interval"},
		{"window", func(c *Config) { c.Station.Window = 0 }, "window"},
		{"schedule", func(c *Config) { c.Station.RefreshSchedule = "every minute" }, "refresh schedule"},
		{"driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage driver"},
		{"dsn", func(c *Config) { c.Storage.DSN = "" }, "DSN"},
		{"led pin", func(c *Config) { c.LED.Pin = -1 }, "LED pin"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"weatherstation.db", "weatherstation.db"},
		{"postgres://station:secret@db:5432/weather", "postgres://station:xxxxx@db:5432/weather"},
		{"host=db user=station password=secret dbname=weather", "host=db user=station password=xxxxx dbname=weather"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := MaskDSN(tt.dsn); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		t.Run(format, func(t *testing.T) {
			logger, err := NewLogger(&LoggingConfig{Format: format, Level: "warn"})
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if logger.Core().Enabled(zap.InfoLevel) {
				t.Error("info should be disabled at warn level")
			}
			if !logger.Core().Enabled(zap.ErrorLevel) {
				t.Error("error should be enabled at warn level")
			}
		})
	}
}

func TestNewLoggerNormalizesLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"WARN", "warn", false},
		{" debug ", "debug", false},
		{"", "info", false},
		{"fatal", "", true},
		{"trace", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &LoggingConfig{Format: "Console", Level: tt.in}
			_, err := NewLogger(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if cfg.Level != tt.want || cfg.Format != FormatConsole {
				t.Errorf("got %+v, want level %q", cfg, tt.want)
			}
		})
	}
}

func TestPrintConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.DSN = "postgres://station:secret@db/weather"
	// Must not panic with a no-op logger.
	cfg.PrintConfig(zap.NewNop())
}
