package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config configures sftpushd, the queue worker running settings-file uploads.
type Config struct {
	Redis   RedisConfig   `mapstructure:"redis" validate:"required"`
	Daemon  DaemonConfig  `mapstructure:"daemon" validate:"required"`
	Publish PublishConfig `mapstructure:"publish" validate:"required"`
	HTTP    HTTPConfig    `mapstructure:"http" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
}

type DaemonConfig struct {
	LogLevel       string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	LogDirectory   string `mapstructure:"log_directory"`
	Concurrency    int    `mapstructure:"concurrency" validate:"min=1,max=64"`
	LockTTLMinutes int    `mapstructure:"lock_ttl_minutes" validate:"min=1,max=1440"`
}

type PublishConfig struct {
	MaxRetry       int `mapstructure:"max_retry" validate:"min=0,max=10"`
	TimeoutMinutes int `mapstructure:"timeout_minutes" validate:"required,min=1,max=1440"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

func LoadFromFile(filename string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(filename)
	v.SetConfigType("toml")

	v.SetEnvPrefix("SFTPUSHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("daemon.log_directory", "")
	v.SetDefault("daemon.concurrency", 2)
	v.SetDefault("daemon.lock_ttl_minutes", 60)

	v.SetDefault("publish.max_retry", 3)
	v.SetDefault("publish.timeout_minutes", 60*6) // 6 hours

	v.SetDefault("http.addr", ":8080")
}

func validateConfig(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(config)
}
