package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Render encodes cfg as TOML.
func Render(cfg Config) ([]byte, error) {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return b, nil
}

// Template is DefaultConfig with an example library and default, ready to be
// edited.
func Template() Config {
	cfg := DefaultConfig()
	cfg.Libraries = []LibraryConfig{
		{Address: "ultra-light-node-v2", Capability: "send-and-receive"},
	}
	cfg.Defaults = DefaultsConfig{
		Version: 1,
		Send:    "ultra-light-node-v2",
		Receive: "ultra-light-node-v2",
	}
	return cfg
}

// WriteTemplate writes Template to path, refusing to replace an existing
// file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	b, err := Render(Template())
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
