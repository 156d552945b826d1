/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = "medchat"
	ConfigFileName = "config.yaml"
	LogFileName    = "medchat.log"

	DefaultBaseURL   = "http://localhost:8000/api/v1"
	DefaultDevAddr   = "127.0.0.1:8000"
	DefaultJWTSecret = "medchat-dev-secret"
)

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token,omitempty"`
}

type LogConfig struct {
	Path    string `yaml:"path,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

type UIConfig struct {
	// Style is a glamour style name; "auto" picks by terminal background.
	Style string `yaml:"style"`
	Width int    `yaml:"width,omitempty"`
}

type DevServerConfig struct {
	Addr       string        `yaml:"addr"`
	JWTSecret  string        `yaml:"jwt_secret"`
	RedisURL   string        `yaml:"redis_url,omitempty"`
	TokenDelay time.Duration `yaml:"token_delay"`
	Retention  time.Duration `yaml:"retention"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	UI        UIConfig        `yaml:"ui"`
	DevServer DevServerConfig `yaml:"devserver"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{BaseURL: DefaultBaseURL},
		UI:     UIConfig{Style: "auto"},
		DevServer: DevServerConfig{
			Addr:       DefaultDevAddr,
			JWTSecret:  DefaultJWTSecret,
			TokenDelay: 20 * time.Millisecond,
			Retention:  5 * time.Minute,
		},
	}
}

func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("Could not find user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", ConfigDirName), nil
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load reads the YAML file at path (a missing file is not an error), then
// applies a .env file from the working directory and the MEDCHAT_*
// environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("Failed to parse config %v: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("Failed to read config %v: %w", path, err)
		}
	}

	// .env is optional and never overrides variables already set
	_ = godotenv.Load()
	cfg.applyEnv()

	if cfg.Log.Path == "" {
		if dir, err := Dir(); err == nil {
			cfg.Log.Path = filepath.Join(dir, LogFileName)
		} else {
			cfg.Log.Path = filepath.Join(os.TempDir(), LogFileName)
		}
	}

	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.Server.BaseURL = getEnv("MEDCHAT_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.Token = getEnv("MEDCHAT_TOKEN", cfg.Server.Token)
	cfg.Log.Path = getEnv("MEDCHAT_LOG_FILE", cfg.Log.Path)
	cfg.Log.Verbose = getEnvAsBool("MEDCHAT_VERBOSE", cfg.Log.Verbose)
	cfg.DevServer.Addr = getEnv("MEDCHAT_DEV_ADDR", cfg.DevServer.Addr)
	cfg.DevServer.JWTSecret = getEnv("MEDCHAT_JWT_SECRET", cfg.DevServer.JWTSecret)
	cfg.DevServer.RedisURL = getEnv("MEDCHAT_REDIS_URL", cfg.DevServer.RedisURL)
}

// Save writes cfg to path, creating the parent directory.
func (cfg *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Could not create config directory %v: %w",
			filepath.Dir(path), err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("Failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("Failed to save config %v: %w", path, err)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
