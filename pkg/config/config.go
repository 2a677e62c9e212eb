// Package config loads runtime settings from defaults, an optional YAML file, .env and the
// environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// App
	Env      string `yaml:"env"`
	DBPath   string `yaml:"db_path"`
	HTTPAddr string `yaml:"http_addr"`

	// Generation
	ReplyLength     int    `yaml:"reply_length"`
	TweetLength     int    `yaml:"tweet_length"`
	BranchLimit     int    `yaml:"branch_limit"`
	ExcludeDistance int    `yaml:"exclude_distance"`
	Fallback        string `yaml:"fallback"`
	SleepEvery      int    `yaml:"sleep_every"` // turns between topic score rebuilds

	// Corpus
	CorpusDir      string `yaml:"corpus_dir"`
	VocabularyDir  string `yaml:"vocabulary_dir"`
	CorpusEncoding string `yaml:"corpus_encoding"`
	Workers        int    `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Env:             "development",
		DBPath:          "db/chain.db",
		HTTPAddr:        ":8080",
		ReplyLength:     45,
		TweetLength:     100,
		BranchLimit:     2,
		ExcludeDistance: 2,
		Fallback:        "...",
		SleepEvery:      10,
		CorpusEncoding:  "utf-8",
		Workers:         4,
	}
}

// DefaultPath is read when Load is given no path. It may be absent.
const DefaultPath = "chain.yaml"

// Load builds the configuration. path names a YAML file that must exist; an empty path
// falls back to DefaultPath, which is skipped when missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.loadFile(path); err != nil && (explicit || !os.IsNotExist(err)) {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg.loadEnvironmentVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func (c *Config) loadEnvironmentVariables() {
	c.Env = getEnv("CHAIN_ENV", c.Env)
	c.DBPath = getEnv("CHAIN_DB", c.DBPath)
	c.HTTPAddr = getEnv("CHAIN_HTTP_ADDR", c.HTTPAddr)
	c.ReplyLength = getEnvInt("CHAIN_REPLY_LENGTH", c.ReplyLength)
	c.TweetLength = getEnvInt("CHAIN_TWEET_LENGTH", c.TweetLength)
	c.BranchLimit = getEnvInt("CHAIN_BRANCH_LIMIT", c.BranchLimit)
	c.ExcludeDistance = getEnvInt("CHAIN_EXCLUDE_DISTANCE", c.ExcludeDistance)
	c.Fallback = getEnv("CHAIN_FALLBACK", c.Fallback)
	c.SleepEvery = getEnvInt("CHAIN_SLEEP_EVERY", c.SleepEvery)
	c.CorpusDir = getEnv("CHAIN_CORPUS_DIR", c.CorpusDir)
	c.VocabularyDir = getEnv("CHAIN_VOCABULARY_DIR", c.VocabularyDir)
	c.CorpusEncoding = getEnv("CHAIN_CORPUS_ENCODING", c.CorpusEncoding)
	c.Workers = getEnvInt("CHAIN_WORKERS", c.Workers)
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("CHAIN_DB is required")
	}
	if c.ReplyLength <= 0 {
		return fmt.Errorf("reply length must be positive, got %d", c.ReplyLength)
	}
	if c.TweetLength <= 0 {
		return fmt.Errorf("tweet length must be positive, got %d", c.TweetLength)
	}
	if c.BranchLimit <= 0 {
		return fmt.Errorf("branch limit must be positive, got %d", c.BranchLimit)
	}
	if c.ExcludeDistance < 0 {
		return fmt.Errorf("exclude distance must not be negative, got %d", c.ExcludeDistance)
	}
	if c.SleepEvery <= 0 {
		return fmt.Errorf("sleep interval must be positive, got %d", c.SleepEvery)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}
