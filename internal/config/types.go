package config

import "time"

// Platform identifies a messaging platform connector implementation.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformWSRelay  Platform = "wsrelay"
)

// BotConfig describes one messaging account.
type BotConfig struct {
	Name     string   `yaml:"name" koanf:"name"`
	Platform Platform `yaml:"platform" koanf:"platform"`
	// CallbackURL is the external endpoint notified about inbound events
	// for this bot.
	CallbackURL string `yaml:"callback_url" koanf:"callback_url"`
	// Token authenticates a telegram bot.
	Token string `yaml:"token" koanf:"token"`
	// RelayURL is the websocket endpoint of a wsrelay bridge daemon.
	RelayURL string `yaml:"relay_url" koanf:"relay_url"`
	Phone    string `yaml:"phone" koanf:"phone"`
}

// Config is the top-level botgate configuration, corresponding to .botgate.yml.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr" koanf:"listen_addr"`
	DataDir      string        `yaml:"data_dir" koanf:"data_dir"`
	QueueSize    int           `yaml:"queue_size" koanf:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
	DialogLimit  int           `yaml:"dialog_limit" koanf:"dialog_limit"`
	AllowAllCORS bool          `yaml:"allow_all_cors" koanf:"allow_all_cors"`
	Bots         []BotConfig   `yaml:"bots" koanf:"bots"`
}
