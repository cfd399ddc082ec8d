// Package config loads casefile settings.
//
// Sources, later ones winning:
//
//  1. built-in defaults (Default)
//  2. YAML file at $CASEFILE_CONFIG or ~/.casefile/config.yaml
//  3. environment: CASEFILE_DB, CASEFILE_ATTACHMENTS
//  4. command-line flags, applied by the caller
//
// A missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath  = "CASEFILE_CONFIG"
	EnvDBPath      = "CASEFILE_DB"
	EnvAttachments = "CASEFILE_ATTACHMENTS"
)

// Viewport bounds attachment decoding, in pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	DBPath          string    `yaml:"db_path"`
	AttachmentDir   string    `yaml:"attachment_dir"`
	Viewport        Viewport  `yaml:"viewport"`
	MaxDecodePixels int       `yaml:"max_decode_pixels"`
	Log             LogConfig `yaml:"log"`
}

// Home is the directory holding the database, attachments and config file.
func Home() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".casefile")
}

// DefaultPath is where Load looks when $CASEFILE_CONFIG is unset.
func DefaultPath() string {
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return filepath.Join(Home(), "config.yaml")
}

func Default() *Config {
	return &Config{
		DBPath:        filepath.Join(Home(), "cases.db"),
		AttachmentDir: filepath.Join(Home(), "photos"),
		Viewport: Viewport{
			Width:  1080,
			Height: 1920,
		},
		MaxDecodePixels: 48_000_000,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads path (DefaultPath when empty) over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.fillZero()
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if env := os.Getenv(EnvDBPath); env != "" {
		c.DBPath = env
	}
	if env := os.Getenv(EnvAttachments); env != "" {
		c.AttachmentDir = env
	}
}

// fillZero restores defaults for fields a partial file left empty.
func (c *Config) fillZero() {
	def := Default()
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.AttachmentDir == "" {
		c.AttachmentDir = filepath.Join(filepath.Dir(c.DBPath), "photos")
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = def.Viewport.Width
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = def.Viewport.Height
	}
	if c.MaxDecodePixels <= 0 {
		c.MaxDecodePixels = def.MaxDecodePixels
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}
