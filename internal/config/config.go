package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.lingua/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	RelayURL       string `toml:"relay_url"`
	TranslatorURL  string `toml:"translator_url"`
	TargetLanguage string `toml:"target_language"`
}

// Default returns the config defaults applied for missing fields.
func Default() *Config {
	return &Config{
		RelayURL:       "wss://relay.linguachat.dev/v1/stream",
		TranslatorURL:  "https://translate.linguachat.dev/v1",
		TargetLanguage: "en",
	}
}

// Load reads config from the given path, filling missing fields with
// defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
