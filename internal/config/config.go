// Package config loads and validates the botgate configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (BOTGATE_*). A missing file yields the
// defaults rather than an error; a corrupt file fails loudly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: BOTGATE_LISTEN_ADDR -> listen_addr, etc.
	if err := k.Load(env.Provider("BOTGATE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BOTGATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validPlatforms is the set of recognized platform values.
var validPlatforms = map[Platform]bool{
	PlatformTelegram: true,
	PlatformWSRelay:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.DialogLimit <= 0 {
		return fmt.Errorf("dialog_limit must be positive")
	}

	seen := make(map[string]bool, len(c.Bots))
	for _, b := range c.Bots {
		if b.Name == "" {
			return fmt.Errorf("bot name is required")
		}
		if b.Name == "*" {
			return fmt.Errorf("bot name %q collides with the wildcard target", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate bot name %q", b.Name)
		}
		seen[b.Name] = true

		if !validPlatforms[b.Platform] {
			return fmt.Errorf("bot %q: invalid platform %q: must be one of telegram, wsrelay", b.Name, b.Platform)
		}
		switch b.Platform {
		case PlatformTelegram:
			if b.Token == "" {
				return fmt.Errorf("bot %q: token is required for telegram", b.Name)
			}
		case PlatformWSRelay:
			if b.RelayURL == "" {
				return fmt.Errorf("bot %q: relay_url is required for wsrelay", b.Name)
			}
		}
	}

	return nil
}
