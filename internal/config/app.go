package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App is the service configuration. Non-secret settings come from a YAML
// file; secrets come from environment variables and override the file.
type App struct {
	ListenAddr string `yaml:"listen_addr"`
	Model      string `yaml:"model"`

	Telegram struct {
		BotToken      string `yaml:"bot_token"`
		WebhookSecret string `yaml:"webhook_secret"`
		AllowedUserID string `yaml:"allowed_user_id"`
	} `yaml:"telegram"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"gemini"`

	GitHub struct {
		Token string `yaml:"token"`
		Repo  string `yaml:"repo"`
	} `yaml:"github"`

	Vault struct {
		Backend string `yaml:"backend"` // sqlite | dir
		Path    string `yaml:"path"`
	} `yaml:"vault"`

	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
	} `yaml:"rate_limit"`
}

// DefaultApp returns the configuration used when no file is given.
func DefaultApp() App {
	var cfg App
	cfg.ListenAddr = ":8080"
	cfg.Model = "gemini-2.0-flash"
	cfg.Vault.Backend = "sqlite"
	cfg.Vault.Path = "vault.db"
	cfg.RateLimit.PerMinute = 20
	return cfg
}

// LoadApp reads the YAML file at path (optional) and applies environment
// overrides for secrets.
func LoadApp(path string) (App, error) {
	cfg := DefaultApp()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Telegram.WebhookSecret = v
	}
	if v := os.Getenv("ALLOWED_USER_ID"); v != "" {
		cfg.Telegram.AllowedUserID = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		cfg.GitHub.Repo = v
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = 20
	}

	return cfg, nil
}
