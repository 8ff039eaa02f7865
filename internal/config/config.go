package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional drift configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Remote   RemoteConfig   `toml:"remote"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Workers     *int    `toml:"workers"`
	Retries     *int    `toml:"retries"`
	ChunkSize   *string `toml:"chunk_size"`
	Quiet       *bool   `toml:"quiet"`
	LogFile     *string `toml:"log_file"`
	MetricsAddr *string `toml:"metrics_addr"`
}

// RemoteConfig holds S3 connection defaults.
type RemoteConfig struct {
	Region    *string `toml:"region"`
	Endpoint  *string `toml:"endpoint"`
	PathStyle *bool   `toml:"path_style"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "drift", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
