package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockwatch/internal/collect"
	"stockwatch/internal/dispatch"
	"stockwatch/internal/logger"
	"stockwatch/internal/notify"
	"stockwatch/internal/source"
	"stockwatch/internal/storage"
	"stockwatch/internal/validator"

	"github.com/spf13/viper"
)

// AppName is the application name used for config search paths
const AppName = "stockwatch"

// Config represents the configuration shared by the collector, dispatcher
// and API processes
type Config struct {
	Log        logger.Config         `mapstructure:"log"`
	Store      storage.Config        `mapstructure:"store"`
	Redis      RedisConfig           `mapstructure:"redis"`
	Source     source.Config         `mapstructure:"source"`
	Collector  collect.Config        `mapstructure:"collector"`
	Dispatcher dispatch.Config       `mapstructure:"dispatcher"`
	Telegram   notify.TelegramConfig `mapstructure:"telegram"`
	API        APIConfig             `mapstructure:"api"`
}

// RedisConfig represents the optional fetch cache configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig represents the HTTP API configuration
type APIConfig struct {
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
	}

	// Add search paths
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/" + AppName)
	v.AddConfigPath("/etc/" + AppName)
	if ex, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Dir(ex))
	}

	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&config)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = AppName
	}
	if cfg.Collector.Interval == 0 {
		cfg.Collector.Interval = time.Minute
	}
	if cfg.Collector.Workers == 0 {
		cfg.Collector.Workers = 10
	}
	if cfg.Dispatcher.PollInterval == 0 {
		cfg.Dispatcher.PollInterval = 5 * time.Second
	}
	if cfg.Dispatcher.Delay == 0 {
		cfg.Dispatcher.Delay = 10 * time.Minute
	}
	if cfg.API.Address == "" {
		cfg.API.Address = ":8080"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
}
