// Package config loads the station configuration from YAML and the
// environment and builds the logger.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
)

// Config represents the application configuration
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Station StationConfig `yaml:"station"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	LED     LEDConfig     `yaml:"led"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains the broker session configuration
type MQTTConfig struct {
	Broker         string        `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://192.168.1.103:1883"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"MQTT_CONNECT_TIMEOUT" env-default:"30s"`
	KeepAlive      time.Duration `yaml:"keepAlive" env:"MQTT_KEEP_ALIVE" env-default:"100s"`
	ReconnectDelay time.Duration `yaml:"reconnectDelay" env:"MQTT_RECONNECT_DELAY" env-default:"5s"`
	ClientIDPrefix string        `yaml:"clientIdPrefix" env:"MQTT_CLIENT_ID_PREFIX" env-default:"weatherstation"`
	Topics         TopicsConfig  `yaml:"topics"`
}

// TopicsConfig names the four sensor topics
type TopicsConfig struct {
	GreenhouseTemperature string `yaml:"greenhouseTemperature" env:"TOPIC_GREENHOUSE_TEMPERATURE" env-default:"rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/1/780/temperature_C"`
	GreenhouseHumidity    string `yaml:"greenhouseHumidity" env:"TOPIC_GREENHOUSE_HUMIDITY" env-default:"rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/1/780/humidity"`
	BreweryTemperature    string `yaml:"breweryTemperature" env:"TOPIC_BREWERY_TEMPERATURE" env-default:"rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/2/241/temperature_C"`
	BreweryHumidity       string `yaml:"breweryHumidity" env:"TOPIC_BREWERY_HUMIDITY" env-default:"rtl_433/Mikaels-MacBook-Pro/devices/Altronics-X7064/2/241/humidity"`
}

// StationConfig contains the observer and aggregation settings
type StationConfig struct {
	Latitude        float64       `yaml:"latitude" env:"STATION_LATITUDE" env-default:"60.056553"`
	Longitude       float64       `yaml:"longitude" env:"STATION_LONGITUDE" env-default:"16.793934"`
	Timezone        string        `yaml:"timezone" env:"STATION_TIMEZONE" env-default:"Local"`
	SaveInterval    time.Duration `yaml:"saveInterval" env:"SAVE_INTERVAL" env-default:"1h"`
	Window          int           `yaml:"window" env:"HIGH_LOW_WINDOW" env-default:"24"`
	RefreshSchedule string        `yaml:"refreshSchedule" env:"REFRESH_SCHEDULE" env-default:"@every 1m"`
}

// StorageConfig selects the reading store
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite3"`
	DSN    string `yaml:"dsn" env:"DB_DSN" env-default:"weatherstation.db"`
}

// HTTPConfig contains the web server settings
type HTTPConfig struct {
	Addr           string   `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	AllowedOrigins []string `yaml:"allowedOrigins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

// LEDConfig contains the connection LED settings. Pin 0 disables the LED.
type LEDConfig struct {
	Chip string `yaml:"chip" env:"LED_CHIP" env-default:"gpiochip0"`
	Pin  int    `yaml:"pin" env:"LED_PIN" env-default:"0"`
}

// Load loads configuration from a YAML file with environment variable
// overrides. An empty path reads the environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

var brokerSchemes = map[string]bool{"tcp": true, "ssl": true, "ws": true, "wss": true, "mqtt": true, "mqtts": true, "tls": true}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid broker URL: %q", c.MQTT.Broker)
	}
	if !brokerSchemes[u.Scheme] {
		return fmt.Errorf("broker URL scheme must be one of tcp, ssl, tls, ws, wss, mqtt, mqtts, got %q", u.Scheme)
	}
	if c.MQTT.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.MQTT.KeepAlive <= 0 {
		return fmt.Errorf("keep-alive must be positive")
	}
	if c.MQTT.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect delay must not be negative")
	}

	seen := make(map[string]bool)
	for _, topic := range c.Topics().List() {
		if topic == "" {
			return fmt.Errorf("all four topics are required")
		}
		if seen[topic] {
			return fmt.Errorf("duplicate topic %q", topic)
		}
		seen[topic] = true
	}

	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("latitude must be within [-90, 90], got %v", c.Station.Latitude)
	}
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("longitude must be within [-180, 180], got %v", c.Station.Longitude)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Station.SaveInterval <= 0 {
		return fmt.Errorf("save interval must be positive")
	}
	if c.Station.Window < 1 {
		return fmt.Errorf("high/low window must be at least 1")
	}
	if _, err := cron.ParseStandard(c.Station.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.Station.RefreshSchedule, err)
	}

	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver != store.DriverSQLite && c.Storage.Driver != store.DriverPostgres {
		return fmt.Errorf("storage driver must be '%s' or '%s', got '%s'", store.DriverSQLite, store.DriverPostgres, c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN is required")
	}

	if c.LED.Pin < 0 {
		return fmt.Errorf("LED pin must not be negative")
	}

	return ValidateLogging(&c.Logging)
}

// Topics returns the configured topic set.
func (c *Config) Topics() logic.TopicSet {
	return logic.TopicSet{
		GreenhouseTemperature: c.MQTT.Topics.GreenhouseTemperature,
		GreenhouseHumidity:    c.MQTT.Topics.GreenhouseHumidity,
		BreweryTemperature:    c.MQTT.Topics.BreweryTemperature,
		BreweryHumidity:       c.MQTT.Topics.BreweryHumidity,
	}
}

// Location returns the observer time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Station.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Station.Timezone, err)
	}
	return loc, nil
}

var dsnPassword = regexp.MustCompile(`(?i)(password=)(\S+)`)

// MaskDSN hides the password of a database DSN.
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(dsn, "${1}xxxxx")
}

// PrintConfig prints the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("broker", c.MQTT.Broker),
		zap.Duration("connect_timeout", c.MQTT.ConnectTimeout),
		zap.Duration("keep_alive", c.MQTT.KeepAlive),
		zap.Duration("reconnect_delay", c.MQTT.ReconnectDelay),
		zap.Strings("topics", c.Topics().List()),
		zap.Float64("latitude", c.Station.Latitude),
		zap.Float64("longitude", c.Station.Longitude),
		zap.String("timezone", c.Station.Timezone),
		zap.Duration("save_interval", c.Station.SaveInterval),
		zap.Int("window", c.Station.Window),
		zap.String("refresh_schedule", c.Station.RefreshSchedule),
		zap.String("db_driver", c.Storage.Driver),
		zap.String("db_dsn", MaskDSN(c.Storage.DSN)),
		zap.String("http_addr", c.HTTP.Addr),
		zap.Int("led_pin", c.LED.Pin),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
}
