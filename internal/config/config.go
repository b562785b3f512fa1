package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/loykin/drover/internal/logger"
	"github.com/loykin/drover/internal/scheduler"
	"github.com/loykin/drover/internal/store"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	MaxConcurrentSessions int    `toml:"max_concurrent_sessions" mapstructure:"max_concurrent_sessions"`
	CycleSchedule         string `toml:"cycle_schedule" mapstructure:"cycle_schedule"`
	ProfileBase           string `toml:"profile_base" mapstructure:"profile_base"`

	Browser  BrowserConfig   `toml:"browser" mapstructure:"browser"`
	Store    store.Config    `toml:"store" mapstructure:"store"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Notify   NotifyConfig    `toml:"notify" mapstructure:"notify"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	Log      logger.Config   `toml:"log" mapstructure:"log"`
	Accounts []AccountConfig `toml:"accounts" mapstructure:"accounts"`
}

type AccountConfig struct {
	ID         string         `toml:"id" mapstructure:"id"`
	ProfileDir string         `toml:"profile_dir" mapstructure:"profile_dir"`
	Behaviors  []string       `toml:"behaviors" mapstructure:"behaviors"`
	Limits     map[string]int `toml:"limits" mapstructure:"limits"`
}

type BrowserConfig struct {
	Bin      string `toml:"bin" mapstructure:"bin"`
	Headless bool   `toml:"headless" mapstructure:"headless"`
}

type HistoryConfig struct {
	// DSNs of external analytics sinks (sqlite path, postgres://, clickhouse://).
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token" mapstructure:"telegram_token"`
	TelegramChatID int64  `toml:"telegram_chat_id" mapstructure:"telegram_chat_id"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
	Metrics bool   `toml:"metrics" mapstructure:"metrics"`
}

// Load parses a TOML config file and applies defaults and validation.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}

	if fc.MaxConcurrentSessions <= 0 {
		fc.MaxConcurrentSessions = 1
	}
	if fc.CycleSchedule == "" {
		fc.CycleSchedule = "@every 10m"
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:8321"
	}

	seen := make(map[string]bool, len(fc.Accounts))
	for i := range fc.Accounts {
		a := &fc.Accounts[i]
		if a.ID == "" {
			return nil, fmt.Errorf("accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
		if a.ProfileDir == "" {
			if fc.ProfileBase == "" {
				return nil, fmt.Errorf("account %s: profile_dir is required when profile_base is unset", a.ID)
			}
			a.ProfileDir = filepath.Join(fc.ProfileBase, a.ID)
		}
		for _, typ := range a.Behaviors {
			if _, ok := a.Limits[typ]; !ok {
				return nil, fmt.Errorf("account %s: behavior %q has no hourly limit", a.ID, typ)
			}
		}
	}
	return &fc, nil
}

// AccountSpecs converts the configured accounts into scheduler specs.
func (fc *FileConfig) AccountSpecs() []scheduler.AccountSpec {
	out := make([]scheduler.AccountSpec, 0, len(fc.Accounts))
	for _, a := range fc.Accounts {
		out = append(out, scheduler.AccountSpec{
			ID:         a.ID,
			ProfileDir: a.ProfileDir,
			Behaviors:  a.Behaviors,
			Limits:     a.Limits,
		})
	}
	return out
}

// ProfileFor returns the profile directory resolver used by the registry.
func (fc *FileConfig) ProfileFor() func(account string) string {
	dirs := make(map[string]string, len(fc.Accounts))
	for _, a := range fc.Accounts {
		dirs[a.ID] = a.ProfileDir
	}
	return func(account string) string {
		if d, ok := dirs[account]; ok {
			return d
		}
		return filepath.Join(fc.ProfileBase, account)
	}
}
