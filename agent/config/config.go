package config

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/spf13/viper"
)

type HttpApiConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Debug bool   `mapstructure:"debug"`
}

func (c *HttpApiConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayConfig selects and configures the agent-to-agent envelope relay.
// Type is "file" or "kafka"; the kafka fields mirror the broker setup.
type RelayConfig struct {
	Type  string `mapstructure:"type"`
	Topic string `mapstructure:"topic"`

	// file relay
	Path string `mapstructure:"path"`

	// kafka relay
	DBDSN               string `mapstructure:"dbdsn"`
	ConsumerGroup       string `mapstructure:"consumer_group"`
	Timeout             time.Duration
	TlsConfig           *tls.Config
	ProducerCredentials *plain.Mechanism
	ConsumerCredentials *plain.Mechanism
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type Config struct {
	BaseUrl string `mapstructure:"base_url"`

	HttpApiConfig *HttpApiConfig `mapstructure:"http_api_config"`

	RelayConfig *RelayConfig `mapstructure:"relay_config"`

	GoogleConfig *GoogleConfig `mapstructure:"google_config"`

	Username      string `mapstructure:"username"`
	StateDBDSN    string `mapstructure:"state_dbdsn"`
	KeyStoreDBDSN string `mapstructure:"key_store_dbdsn"`

	// Topic namespaces the repositories inside one state db.
	Topic string `mapstructure:"topic"`
}

func defaults() *Config {
	return &Config{
		BaseUrl: "http://localhost:8080",
		HttpApiConfig: &HttpApiConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		RelayConfig: &RelayConfig{
			Type:    "file",
			Topic:   "meetd_envelopes",
			Path:    "/tmp/meetd_relay",
			Timeout: 10 * time.Second,
		},
		GoogleConfig:  &GoogleConfig{},
		Username:      "meetd",
		StateDBDSN:    "/tmp/meetd_state",
		KeyStoreDBDSN: "/tmp/meetd_key_store",
		Topic:         "meetd",
	}
}

// Load reads the optional config file and merges it over the defaults.
// An empty path yields the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
