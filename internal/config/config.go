// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds settings shared by the prescription pad services.
type Config struct {
	Port         string   `mapstructure:"PORT"`
	Env          string   `mapstructure:"ENV"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	APIKey       string   `mapstructure:"API_KEY"`
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	OTLPEndpoint string   `mapstructure:"OTLP_ENDPOINT"`
	MetricsPort  string   `mapstructure:"METRICS_PORT"`
}

// Load reads configuration, preferring environment variables over .env.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("METRICS_PORT", "9090")

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "KAFKA_BROKERS",
		"API_KEY", "LOG_LEVEL", "OTLP_ENDPOINT", "METRICS_PORT",
	} {
		v.BindEnv(key)
	}

	// A missing .env file is fine; env vars alone can configure everything.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.KafkaBrokers) <= 1 {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}
