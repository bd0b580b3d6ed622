package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the posts binary can be tuned with. Precedence:
// defaults, then the YAML file, then POSTS_* env vars, then flags.
type Config struct {
	APIURL   string        `yaml:"api_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Theme    string        `yaml:"theme"`
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file"`
	Server   Server        `yaml:"server"`
}

// Server captures the API server settings.
type Server struct {
	Addr     string        `yaml:"addr"`
	DataFile string        `yaml:"data_file"` // empty keeps posts in memory only
	Latency  time.Duration `yaml:"latency"`
	Token    string        `yaml:"token"`
}

// Dir is ~/.posts, home of the config file, credentials and the TUI log.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".posts"), nil
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{
		APIURL:   "http://localhost:8080",
		Timeout:  10 * time.Second,
		Theme:    "classic",
		LogLevel: "info",
		Server: Server{
			Addr:     ":8080",
			DataFile: "posts.json",
		},
	}
	if dir, err := Dir(); err == nil {
		cfg.LogFile = filepath.Join(dir, "posts.log")
	}
	return cfg
}

// Load reads path on top of the defaults and applies env overrides.
// An empty path means ~/.posts/config.yaml, which may be absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return cfg, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.APIURL, "POSTS_API_URL")
	set(&c.Theme, "POSTS_THEME")
	set(&c.LogLevel, "POSTS_LOG_LEVEL")
	set(&c.LogFile, "POSTS_LOG_FILE")
	set(&c.Server.Addr, "POSTS_ADDR")
	set(&c.Server.DataFile, "POSTS_DATA_FILE")
	set(&c.Server.Token, "POSTS_SERVER_TOKEN")
}
