// Package config loads the engine's run configuration from a small JSON
// file under the XDG config directory, with defaults filled in where the
// file is absent or a field is unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrisonrobin/tasksync/internal/provider"
)

const (
	xdgAppName = "tasksync"
	configFile = "config.json"
)

// ProviderConfig is one provider's OAuth client/token file pair, keyed
// by tag in Config.Providers.
type ProviderConfig struct {
	ClientSecretsFile string `json:"clientSecretsFile"`
	TokenFile         string `json:"tokenFile"`
}

// Config is the full set of run parameters a sync cycle needs.
type Config struct {
	StateDir            string                    `json:"stateDir"`
	Mode                provider.Mode             `json:"mode"`
	TombstoneTTLDays    int                       `json:"tombstoneTtlDays"`
	DryRun              bool                      `json:"dryRun"`
	PollIntervalMinutes int                       `json:"pollIntervalMinutes"`
	ProviderOrder       []string                  `json:"providerOrder"`
	Providers           map[string]ProviderConfig `json:"providers"`
}

func defaults() *Config {
	return &Config{
		StateDir:            ".task-sync",
		Mode:                provider.ModeBidirectional,
		TombstoneTTLDays:    30,
		DryRun:              false,
		PollIntervalMinutes: 15,
		ProviderOrder:       []string{"google", "msgraph"},
		Providers:           map[string]ProviderConfig{},
	}
}

// GetConfigPath returns ~/.config/tasksync/config.json.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".config", xdgAppName, configFile), nil
}

// Load reads config.json, returning built-in defaults for any field the
// file omits and for the file itself when it does not exist.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := defaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case provider.ModeBidirectional, provider.ModeAToBOnly, provider.ModeMirror:
	default:
		return fmt.Errorf("config: unknown sync mode %q", c.Mode)
	}

	if len(c.ProviderOrder) == 0 {
		return fmt.Errorf("config: providerOrder must name at least one provider")
	}

	if c.TombstoneTTLDays <= 0 {
		return fmt.Errorf("config: tombstoneTtlDays must be positive, got %d", c.TombstoneTTLDays)
	}

	return nil
}

// Save writes cfg to config.json, creating the XDG config directory if
// needed.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file for writing: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(cfg)
}
