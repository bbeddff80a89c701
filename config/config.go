package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./kvault-data"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 18
	}
	if cfg.SettlementCooldownSeconds == 0 {
		cfg.SettlementCooldownSeconds = 3600
	}
	if cfg.YieldToleranceBps == 0 {
		cfg.YieldToleranceBps = 1000
	}
	if cfg.Admins == nil {
		cfg.Admins = []string{}
	}
	if cfg.Relayers == nil {
		cfg.Relayers = []string{}
	}
	if cfg.Guardians == nil {
		cfg.Guardians = []string{}
	}
	if cfg.Institutions == nil {
		cfg.Institutions = []string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:             ":8080",
		DataDir:                   "./kvault-data",
		ChainID:                   1,
		Decimals:                  18,
		Environment:               "local",
		SettlementCooldownSeconds: 3600,
		YieldToleranceBps:         1000,
		Admins:                    []string{},
		Relayers:                  []string{},
		Guardians:                 []string{},
		Institutions:              []string{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
