// Package config loads dumbo settings from defaults, dumbo.toml, a .env file
// and DUMBO_* environment variables, later sources winning.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

const DefaultFile = "dumbo.toml"

type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Data is a data file loaded before every render, Vars a YAML file
	// seeded into the global scope.
	Data string `toml:"data"`
	Vars string `toml:"vars"`

	Server ServerConfig `toml:"server"`
	SMTP   SMTPConfig   `toml:"smtp"`
}

type ServerConfig struct {
	Addr         string `toml:"addr"`
	JWTSecret    string `toml:"jwt_secret"`
	PasswordHash string `toml:"password_hash"`
	TokenTTL     string `toml:"token_ttl"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Server: ServerConfig{
			Addr:     ":8080",
			TokenTTL: "1h",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// Load reads path (DefaultFile when empty) and the .env file next to it.
// Missing files are skipped. Variables already set in the process
// environment take precedence over the .env file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	cfg := Default()

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dotenv := map[string]string{}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if dotenv, err = godotenv.Read(envPath); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	fields := map[string]*string{
		"DUMBO_LOG_LEVEL":     &c.LogLevel,
		"DUMBO_LOG_FORMAT":    &c.LogFormat,
		"DUMBO_DATA":          &c.Data,
		"DUMBO_VARS":          &c.Vars,
		"DUMBO_ADDR":          &c.Server.Addr,
		"DUMBO_JWT_SECRET":    &c.Server.JWTSecret,
		"DUMBO_PASSWORD_HASH": &c.Server.PasswordHash,
		"DUMBO_TOKEN_TTL":     &c.Server.TokenTTL,
		"DUMBO_SMTP_HOST":     &c.SMTP.Host,
		"DUMBO_SMTP_USER":     &c.SMTP.User,
		"DUMBO_SMTP_PASSWORD": &c.SMTP.Password,
		"DUMBO_SMTP_FROM":     &c.SMTP.From,
	}
	for key, field := range fields {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	if v, ok := lookup("DUMBO_SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DUMBO_SMTP_PORT must be an integer: %w", err)
		}
		c.SMTP.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.SMTP.Port)
	}
	ttl, err := c.TokenTTL()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return nil
}

func (c *Config) TokenTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Server.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token ttl: %w", err)
	}
	return ttl, nil
}

// Logger builds the logger described by the config, writing to w.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
