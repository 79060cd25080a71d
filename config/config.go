// Package config loads the service configuration from file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the audit consumer service.
type Config struct {
	Stream struct {
		// Addr is the Redis host:port the audit stream lives on.
		Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`

		// Name is the stream key to consume.
		Name string `mapstructure:"name" validate:"required"`

		// Group is the consumer group; all consumer processes of one
		// deployment share it.
		Group string `mapstructure:"group" validate:"required"`

		// Consumer names this process within the group. Empty derives a
		// name from the hostname.
		Consumer string `mapstructure:"consumer"`

		// BlockTimeout bounds one blocking read.
		BlockTimeout time.Duration `mapstructure:"block_timeout"`
	} `mapstructure:"stream"`

	Storage struct {
		// SQLitePath is the database file path; ":memory:" runs fully
		// in memory.
		SQLitePath string `mapstructure:"sqlite_path" validate:"required"`
	} `mapstructure:"storage"`

	Extraction struct {
		// Policy is "all-matches" or "first-match".
		Policy string `mapstructure:"policy" validate:"oneof=all-matches first-match"`

		// RegexTimeout bounds one pattern evaluation.
		RegexTimeout time.Duration `mapstructure:"regex_timeout"`

		// PatternCacheSize bounds the compiled pattern cache.
		PatternCacheSize int `mapstructure:"pattern_cache_size" validate:"gte=0"`
	} `mapstructure:"extraction"`

	Consumer struct {
		// RetryBackoff is the wait before retrying a failed record.
		RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	} `mapstructure:"consumer"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	} `mapstructure:"api"`
}

func setDefaults() {
	viper.SetDefault("stream.addr", "localhost:6379")
	viper.SetDefault("stream.password", "")
	viper.SetDefault("stream.db", 0)
	viper.SetDefault("stream.name", "audit-events")
	viper.SetDefault("stream.group", "audit-consumers")
	viper.SetDefault("stream.consumer", "")
	viper.SetDefault("stream.block_timeout", 5*time.Second)
	viper.SetDefault("storage.sqlite_path", "./data/auditsync.db")
	viper.SetDefault("extraction.policy", "all-matches")
	viper.SetDefault("extraction.regex_timeout", 100*time.Millisecond)
	viper.SetDefault("extraction.pattern_cache_size", 1024)
	viper.SetDefault("consumer.retry_backoff", 5*time.Second)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8081)
}

func loadFromEnv() {
	viper.SetEnvPrefix("AUDITSYNC")
	viper.AutomaticEnv()

	_ = viper.BindEnv("stream.addr", "AUDITSYNC_STREAM_ADDR")
	_ = viper.BindEnv("stream.password", "AUDITSYNC_STREAM_PASSWORD")
	_ = viper.BindEnv("stream.name", "AUDITSYNC_STREAM_NAME")
	_ = viper.BindEnv("stream.group", "AUDITSYNC_STREAM_GROUP")
	_ = viper.BindEnv("stream.consumer", "AUDITSYNC_STREAM_CONSUMER")
	_ = viper.BindEnv("storage.sqlite_path", "AUDITSYNC_SQLITE_PATH")
	_ = viper.BindEnv("extraction.policy", "AUDITSYNC_EXTRACTION_POLICY")
	_ = viper.BindEnv("api.port", "AUDITSYNC_API_PORT")
}

// LoadConfig loads configuration from config.yaml and environment
// variables. A missing config file is fine; defaults and the environment
// cover everything.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.resolveConsumerName()

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// resolveConsumerName derives a consumer name from the hostname when none
// is configured, so each process in a deployment gets a distinct name.
func (c *Config) resolveConsumerName() {
	if c.Stream.Consumer != "" {
		return
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "consumer"
	}
	c.Stream.Consumer = fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
