package config

import (
	"fmt"
	"os"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	kfile "github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

type DeviceConfig struct {
	// ConnectionString is the full device connection string,
	// HostName=...;DeviceId=...;SharedAccessKey=...
	ConnectionString string `koanf:"connectionString" env:"IOTHUB_DEVICE_CONNECTION_STRING" validate:"required"`
}

type MQTTConfig struct {
	Port          int           `koanf:"port" env:"IOTHUB_MQTT_PORT" validate:"min=1,max=65535"`
	UseTLS        bool          `koanf:"useTls" env:"IOTHUB_MQTT_USE_TLS"`
	KeepAlive     time.Duration `koanf:"keepAlive" env:"IOTHUB_MQTT_KEEPALIVE"`
	ClientID      string        `koanf:"clientId" env:"IOTHUB_MQTT_CLIENT_ID"`
	CleanSession  bool          `koanf:"cleanSession" env:"IOTHUB_MQTT_CLEAN_SESSION"`
	TokenValidity time.Duration `koanf:"tokenValidity" env:"IOTHUB_SAS_TOKEN_VALIDITY" validate:"min=1m"`
}

type TLSConfig struct {
	CACert     string `koanf:"caCert" env:"IOTHUB_TLS_CA_CERT"`
	ServerName string `koanf:"serverName" env:"IOTHUB_TLS_SERVER_NAME"`
	SkipVerify bool   `koanf:"skipVerify" env:"IOTHUB_TLS_SKIP_VERIFY"`
}

type Config struct {
	Device DeviceConfig `koanf:"device"`
	MQTT   MQTTConfig   `koanf:"mqtt"`
	TLS    TLSConfig    `koanf:"tls"`
}

func NewConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port:          8883,
			UseTLS:        true,
			KeepAlive:     60 * time.Second,
			CleanSession:  true,
			TokenValidity: time.Hour,
		},
	}
}

// LoadFromEnv overlays IOTHUB_* environment variables onto the config.
func (c *Config) LoadFromEnv() error {
	if err := cenv.Parse(c); err != nil {
		return fmt.Errorf("failed to load environment configuration: %w", err)
	}
	return nil
}

// LoadFromFile overlays a YAML config file onto the config.
func (c *Config) LoadFromFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(kfile.Provider(path), kyaml.Parser()); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := k.Unmarshal("", c); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

// Validate checks the config, including that the connection string parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := ParseConnectionString(c.Device.ConnectionString); err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	return nil
}

// GenerateClientID returns the configured client ID, the device ID, or a
// random fallback, in that order of preference.
func (c *Config) GenerateClientID(deviceID string) string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	if deviceID != "" {
		return deviceID
	}
	return "iothub-go-" + uuid.NewString()
}
