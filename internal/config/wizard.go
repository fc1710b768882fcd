package config

import (
	"fmt"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .botgate.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to botgate! Let's configure your gateway.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Listen address.
	listenPrompt := promptui.Prompt{
		Label:   "HTTP listen address",
		Default: cfg.ListenAddr,
	}
	listenAddr, err := listenPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("listen address: %w", err)
	}
	cfg.ListenAddr = listenAddr

	// 2. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory (sessions, contacts, message log)",
		Default: cfg.DataDir,
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dataDir

	// 3. Bot accounts, one at a time.
	for {
		addPrompt := promptui.Select{
			Label: "Add a bot account?",
			Items: []string{"yes", "no, finish"},
		}
		idx, _, err := addPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("bot selection: %w", err)
		}
		if idx != 0 {
			break
		}

		bot, err := promptBot()
		if err != nil {
			return nil, err
		}
		cfg.Bots = append(cfg.Bots, *bot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}

	configPath := ".botgate.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}

func promptBot() (*BotConfig, error) {
	namePrompt := promptui.Prompt{Label: "Bot name"}
	name, err := namePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("bot name: %w", err)
	}

	platformPrompt := promptui.Select{
		Label: "Platform",
		Items: []string{string(PlatformTelegram), string(PlatformWSRelay)},
	}
	_, platformStr, err := platformPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("platform selection: %w", err)
	}

	bot := &BotConfig{Name: name, Platform: Platform(platformStr)}

	switch bot.Platform {
	case PlatformTelegram:
		tokenPrompt := promptui.Prompt{Label: "Bot API token", Mask: '*'}
		token, err := tokenPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		bot.Token = token
	case PlatformWSRelay:
		relayPrompt := promptui.Prompt{
			Label:   "Relay websocket URL",
			Default: "ws://127.0.0.1:8088/ws",
		}
		relayURL, err := relayPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("relay url: %w", err)
		}
		bot.RelayURL = relayURL
	}

	callbackPrompt := promptui.Prompt{
		Label:   "Callback API URL (blank to disable webhooks)",
		Default: "",
	}
	callbackURL, err := callbackPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("callback url: %w", err)
	}
	bot.CallbackURL = callbackURL

	phonePrompt := promptui.Prompt{
		Label:   "Account phone number (optional)",
		Default: "",
	}
	phone, err := phonePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("phone: %w", err)
	}
	bot.Phone = phone

	return bot, nil
}
