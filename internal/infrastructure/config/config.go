package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ubidots API modes.
const (
	APIModeREST = "rest"
	APIModeUDP  = "udp"
	APIModeTCP  = "tcp"
)

// placeholderKeyPrefix marks an API key that was copied from the sample config
// and never replaced.
const placeholderKeyPrefix = "YOUR_"

// Config is the root configuration structure for Gray Logic Relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Ubidots  UbidotsConfig  `yaml:"ubidots"`
	Fields   FieldsConfig   `yaml:"fields"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
// The database holds the last reported state of each device.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTTopicsConfig selects where telemetry is read from and where processed
// messages are forwarded.
type MQTTTopicsConfig struct {
	// Telemetry is the subscription pattern for incoming device messages.
	Telemetry string `yaml:"telemetry"`

	// Next is the topic a processed message is republished to.
	// Empty disables forwarding.
	Next string `yaml:"next"`
}

// UbidotsConfig contains dashboard account and client settings.
type UbidotsConfig struct {
	// APIKeys is a comma-separated list of account API keys.
	// The same device may be registered under several accounts.
	APIKeys string `yaml:"api_keys"`

	// API selects the value update encoding: rest, udp or tcp.
	// Directory lookups always use REST.
	API string `yaml:"api"`

	BaseURL    string `yaml:"base_url"`
	SocketHost string `yaml:"socket_host"`
	SocketPort int    `yaml:"socket_port"`

	// CacheTTLMillis bounds how long a per-account catalog is served before refresh.
	CacheTTLMillis int `yaml:"cache_ttl_ms"`

	// RequestTimeout is the per-request HTTP timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// PageSize is the datasource list page size.
	PageSize int `yaml:"page_size"`

	RateLimit UbidotsRateLimitConfig `yaml:"rate_limit"`
	Breaker   UbidotsBreakerConfig   `yaml:"breaker"`
}

// UbidotsRateLimitConfig paces requests sent under one account.
type UbidotsRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// UbidotsBreakerConfig controls the per-account circuit breaker.
type UbidotsBreakerConfig struct {
	ConsecutiveFailures int `yaml:"consecutive_failures"`
	OpenSeconds         int `yaml:"open_seconds"`
}

// FieldsConfig lists the message fields copied into lat/lng, in priority order.
type FieldsConfig struct {
	LatFields string `yaml:"lat_fields"`
	LngFields string `yaml:"lng_fields"`
}

// APIConfig contains the operations HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_UBIDOTS_API_KEYS, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/relay.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-relay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				Telemetry: "graylogic/telemetry/+/+",
			},
		},
		Ubidots: UbidotsConfig{
			API:            APIModeREST,
			BaseURL:        "https://things.ubidots.com",
			SocketHost:     "translate.ubidots.com",
			SocketPort:     9012,
			CacheTTLMillis: 30000,
			RequestTimeout: 10,
			PageSize:       1000,
			RateLimit: UbidotsRateLimitConfig{
				RequestsPerSecond: 4,
				Burst:             4,
			},
			Breaker: UbidotsBreakerConfig{
				ConsecutiveFailures: 5,
				OpenSeconds:         60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Ubidots - keys belong in the environment, not the config file
	if v := os.Getenv("GRAYLOGIC_UBIDOTS_API_KEYS"); v != "" {
		cfg.Ubidots.APIKeys = v
	}
	if v := os.Getenv("GRAYLOGIC_UBIDOTS_API"); v != "" {
		cfg.Ubidots.API = v
	}

	// Field renaming
	if v := os.Getenv("GRAYLOGIC_LAT_FIELDS"); v != "" {
		cfg.Fields.LatFields = v
	}
	if v := os.Getenv("GRAYLOGIC_LNG_FIELDS"); v != "" {
		cfg.Fields.LngFields = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.Telemetry == "" {
		errs = append(errs, "mqtt.topics.telemetry is required")
	}

	// A placeholder key means the sample config was deployed untouched.
	if _, err := c.Ubidots.Keys(); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.Ubidots.API) {
	case APIModeREST, APIModeUDP, APIModeTCP:
	default:
		errs = append(errs, fmt.Sprintf("ubidots.api %q must be rest, udp, or tcp", c.Ubidots.API))
	}
	if c.Ubidots.CacheTTLMillis <= 0 {
		errs = append(errs, "ubidots.cache_ttl_ms must be positive")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Keys splits the comma-separated API key list.
// Blank entries are dropped; a missing or placeholder key is an error.
func (u UbidotsConfig) Keys() ([]string, error) {
	raw := strings.TrimSpace(u.APIKeys)
	if raw == "" || strings.HasPrefix(raw, placeholderKeyPrefix) {
		return nil, fmt.Errorf("ubidots.api_keys is required (set GRAYLOGIC_UBIDOTS_API_KEYS environment variable)")
	}

	var keys []string
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.HasPrefix(k, placeholderKeyPrefix) {
			return nil, fmt.Errorf("ubidots.api_keys contains a placeholder key")
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("ubidots.api_keys is required (set GRAYLOGIC_UBIDOTS_API_KEYS environment variable)")
	}
	return keys, nil
}

// CacheTTL returns the per-account cache TTL as a Duration.
func (u UbidotsConfig) CacheTTL() time.Duration {
	return time.Duration(u.CacheTTLMillis) * time.Millisecond
}

// Lists returns the ordered lat and lng field lists.
// Both are nil unless both settings are non-blank.
func (f FieldsConfig) Lists() (lat, lng []string) {
	latRaw := strings.TrimSpace(f.LatFields)
	lngRaw := strings.TrimSpace(f.LngFields)
	if latRaw == "" || lngRaw == "" {
		return nil, nil
	}
	return splitTrim(latRaw), splitTrim(lngRaw)
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
