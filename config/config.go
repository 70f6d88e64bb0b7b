// Package config loads the libregd daemon configuration from TOML.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	GRPCAddr    string   `toml:"grpc_addr"`
	HTTPAddr    string   `toml:"http_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// AdminKey is the "<alg>:<base64>" key that signs register, bind and
	// checkpoint.advance commands. Empty disables remote administration.
	AdminKey   string           `toml:"admin_key"`
	Journal    JournalConfig    `toml:"journal"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Defaults   DefaultsConfig   `toml:"defaults"`
	Libraries  []LibraryConfig  `toml:"libraries"`
	Owners     []OwnerConfig    `toml:"owners"`
}

type JournalConfig struct {
	Backend string            `toml:"backend"`
	Options map[string]string `toml:"options"`
	Ref     string            `toml:"ref"`
	Mirrors []MirrorConfig    `toml:"mirrors"`
}

// MirrorConfig is an additional store every journal block is copied to.
type MirrorConfig struct {
	Name    string            `toml:"name"`
	Backend string            `toml:"backend"`
	Options map[string]string `toml:"options"`
}

type CheckpointConfig struct {
	Start uint64 `toml:"start"`
}

// DefaultsConfig names default libraries by their configured address.
type DefaultsConfig struct {
	Version uint64              `toml:"version"`
	Send    string              `toml:"send"`
	Receive string              `toml:"receive"`
	Paths   []PathDefaultConfig `toml:"path"`
}

type PathDefaultConfig struct {
	EID     uint32 `toml:"eid"`
	Send    string `toml:"send"`
	Receive string `toml:"receive"`
}

// LibraryConfig is a library registered at startup if the journal does not
// already hold it.
type LibraryConfig struct {
	Address    string `toml:"address"`
	Capability string `toml:"capability"`
}

// OwnerConfig is an owner binding applied at startup if the application is
// not yet bound.
type OwnerConfig struct {
	App string `toml:"app"`
	Key string `toml:"key"`
}

func DefaultConfig() Config {
	return Config{
		GRPCAddr:    "127.0.0.1:7780",
		HTTPAddr:    "127.0.0.1:7781",
		CorsOrigins: []string{"http://localhost:3000"},
		Journal: JournalConfig{
			Backend: "localfs",
			Options: map[string]string{"dir": "./libreg-data"},
			Ref:     "head",
		},
	}
}

// Load decodes path and overlays every key it defines onto DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load libregd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("load libregd config: unknown keys: %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("grpc_addr") {
		cfg.GRPCAddr = strings.TrimSpace(raw.GRPCAddr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("admin_key") {
		cfg.AdminKey = strings.TrimSpace(raw.AdminKey)
	}

	if meta.IsDefined("journal", "backend") {
		cfg.Journal.Backend = strings.TrimSpace(raw.Journal.Backend)
		// Options belong to the backend; do not inherit the default's.
		cfg.Journal.Options = map[string]string{}
	}
	if meta.IsDefined("journal", "options") {
		cfg.Journal.Options = raw.Journal.Options
	}
	if meta.IsDefined("journal", "ref") {
		cfg.Journal.Ref = strings.TrimSpace(raw.Journal.Ref)
	}
	if meta.IsDefined("journal", "mirrors") {
		cfg.Journal.Mirrors = raw.Journal.Mirrors
	}

	if meta.IsDefined("checkpoint", "start") {
		cfg.Checkpoint.Start = raw.Checkpoint.Start
	}
	if meta.IsDefined("defaults") {
		cfg.Defaults = raw.Defaults
	}
	if meta.IsDefined("libraries") {
		cfg.Libraries = raw.Libraries
	}
	if meta.IsDefined("owners") {
		cfg.Owners = raw.Owners
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("libregd config %s: %w", path, err)
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
