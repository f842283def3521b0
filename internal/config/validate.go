package config

import (
	"fmt"

	"github.com/quilldb/quill/internal/storage"
)

// Validate checks the configuration for values the store cannot run
// with.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Storage.BlockSize < storage.MinBlockSize {
		return fmt.Errorf("storage.blockSize %d is below the minimum %d",
			c.Storage.BlockSize, storage.MinBlockSize)
	}
	if c.Index.Order < 1 {
		return fmt.Errorf("index.order %d must be positive", c.Index.Order)
	}
	if c.Cache.Enabled && c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache.maxBytes %d must be positive when the cache is enabled",
			c.Cache.MaxBytes)
	}
	return nil
}
