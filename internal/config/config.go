// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Classifier backends.
const (
	BackendArtifact = "artifact"
	BackendGemini   = "gemini"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	Port              int
	DBPath            string
	ModelURI          string
	ClassifierBackend string
	GeminiModel       string
	RulesPath         string

	BQProject string
	BQDataset string
	BQTable   string

	NotionToken string
	NotionDBID  string

	LogLevel       string
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:              8080,
		DBPath:            "app.db",
		ModelURI:          "model.json",
		ClassifierBackend: BackendArtifact,
		GeminiModel:       "gemini-2.5-flash",
		BQDataset:         "finance",
		BQTable:           "categorized_transactions",
		LogLevel:          "info",
		RequestTimeout:    10 * time.Second,
		CORSOrigins:       []string{"*"},
	}
}

// Load reads the given .env files (".env" when none are given) into the
// process environment, then builds a Config from it. Missing .env files are
// not an error and variables already set in the environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("Load: reading %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, falling back to Defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("DB_PATH", &cfg.DBPath)
	str("MODEL_URI", &cfg.ModelURI)
	str("CLASSIFIER_BACKEND", &cfg.ClassifierBackend)
	str("GEMINI_MODEL", &cfg.GeminiModel)
	str("RULES_PATH", &cfg.RulesPath)
	str("BQ_PROJECT", &cfg.BQProject)
	str("BQ_DATASET", &cfg.BQDataset)
	str("BQ_TABLE", &cfg.BQTable)
	str("NOTION_TOKEN", &cfg.NotionToken)
	str("NOTION_DB_ID", &cfg.NotionDBID)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("FromEnv: invalid PORT %q", v)
		}
		cfg.Port = port
	}

	if v := strings.TrimSpace(getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("FromEnv: invalid REQUEST_TIMEOUT %q", v)
		}
		cfg.RequestTimeout = d
	}

	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}

	cfg.ClassifierBackend = strings.ToLower(cfg.ClassifierBackend)
	switch cfg.ClassifierBackend {
	case BackendArtifact, BackendGemini:
	default:
		return Config{}, fmt.Errorf("FromEnv: unknown CLASSIFIER_BACKEND %q", cfg.ClassifierBackend)
	}

	return cfg, nil
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MirrorEnabled reports whether the BigQuery mirror is configured.
func (c Config) MirrorEnabled() bool {
	return c.BQProject != ""
}
