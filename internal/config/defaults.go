package config

import "time"

// DefaultConfig returns a Config with sensible defaults. The bot list is
// empty: a gateway without accounts starts, serves health checks and does
// nothing else.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:1052",
		DataDir:      "data",
		QueueSize:    1024,
		PollInterval: 500 * time.Millisecond,
		DialogLimit:  5,
	}
}
