package config

import "github.com/spf13/viper"

// Built-in defaults, used for every key the file leaves unset.
const (
	DefaultBlockSize = 4096
	DefaultOrder     = 64
	DefaultMaxBytes  = 64 << 20
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:      "quill.db",
			BlockSize: DefaultBlockSize,
		},
		Index: IndexConfig{
			Order: DefaultOrder,
		},
		Cache: CacheConfig{
			Enabled:  true,
			MaxBytes: DefaultMaxBytes,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.blockSize", d.Storage.BlockSize)
	v.SetDefault("index.order", d.Index.Order)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.maxBytes", d.Cache.MaxBytes)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}
