package ipfs

import (
	"errors"
	"time"
)

// Config holds the pinning daemon connection settings.
type Config struct {
	// APIAddr is the base URL of the daemon RPC API, e.g. "http://ipfs:5001".
	APIAddr string        `mapstructure:"api_addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		APIAddr: "http://localhost:5001",
		Timeout: 30 * time.Second,
	}
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.APIAddr == "" {
		return errors.New("ipfs api_addr is required")
	}
	return nil
}
