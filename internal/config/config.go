// Package config loads, validates and watches QuillDB configuration.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config errors.
var (
	ErrMissingConfigFile = errors.New("config file path is required")
	ErrMissingOnChange   = errors.New("watcher needs an OnChange callback")
)

// Config holds the complete store configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Index   IndexConfig   `mapstructure:"index"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LogConfig     `mapstructure:"logging"`
}

// StorageConfig holds the durable-file configuration.
type StorageConfig struct {
	// Path is the data file. The write-ahead log lives next to it with
	// a ".wal" suffix.
	Path string `mapstructure:"path"`
	// BlockSize is the allocation unit of the data file, in bytes.
	BlockSize int `mapstructure:"blockSize"`
}

// IndexConfig holds the primary index configuration.
type IndexConfig struct {
	// Order bounds each index node: a leaf holds at most order
	// entries.
	Order int `mapstructure:"order"`
}

// CacheConfig holds the read cache configuration.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxBytes bounds the cached document bytes.
	MaxBytes int64 `mapstructure:"maxBytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads the config file at path, fills in defaults and validates
// the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrMissingConfigFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
