package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server" toml:"server"`
	Log       Log       `yaml:"log" toml:"log"`
	Store     Store     `yaml:"store" toml:"store"`
	Redis     Redis     `yaml:"redis" toml:"redis"`
	Postgres  Postgres  `yaml:"postgres" toml:"postgres"`
	SQLite    SQLite    `yaml:"sqlite" toml:"sqlite"`
	Generator Generator `yaml:"generator" toml:"generator"`
	Quiz      Quiz      `yaml:"quiz" toml:"quiz"`
}

type Server struct {
	Port string `yaml:"port" toml:"port"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=json text"`
}

type Store struct {
	Driver string `yaml:"driver" toml:"driver" validate:"omitempty,oneof=memory redis postgres sqlite"`
}

type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db" validate:"gte=0"`
	TTL      string `yaml:"ttl" toml:"ttl"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

type Postgres struct {
	URL string `yaml:"url" toml:"url"`
}

type SQLite struct {
	Path string `yaml:"path" toml:"path"`
}

type Generator struct {
	BaseURL string `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model" toml:"model"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Timeout string `yaml:"timeout" toml:"timeout"`
}

type Quiz struct {
	QuestionLimit    int      `yaml:"question_limit" toml:"question_limit" validate:"gte=0"`
	QuestionDuration string   `yaml:"question_duration" toml:"question_duration"`
	Persist          *bool    `yaml:"persist" toml:"persist"`
	AcquireTimeout   string   `yaml:"acquire_timeout" toml:"acquire_timeout"`
	Tick             string   `yaml:"tick" toml:"tick"`
	SampleSize       int      `yaml:"sample_size" toml:"sample_size" validate:"gte=0"`
	CountTTL         string   `yaml:"count_ttl" toml:"count_ttl"`
	SessionIdle      string   `yaml:"session_idle" toml:"session_idle"`
	Topics           []string `yaml:"topics" toml:"topics"`
}

// PersistEnabled defaults to true when unset.
func (q Quiz) PersistEnabled() bool {
	return q.Persist == nil || *q.Persist
}

// Load reads a YAML or TOML config from path, chosen by extension, then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// LoadOptional behaves like Load but returns defaults when path does not exist.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Config{}
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Generator.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Generator.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("QUIZWHIZ_STORE"); v != "" {
		c.Store.Driver = v
	}
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, raw := range []string{c.Redis.TTL, c.Generator.Timeout, c.Quiz.QuestionDuration, c.Quiz.AcquireTimeout, c.Quiz.Tick, c.Quiz.CountTTL, c.Quiz.SessionIdle} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: duration %q: %w", raw, err)
		}
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
