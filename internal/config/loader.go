package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment conventions.
const (
	EnvPrefix     = "LEADERBOARD_"
	EnvConfigFile = "LEADERBOARD_CONFIG"
)

// Load builds a Config by layering defaults, .env files, an optional YAML file
// and env vars. Order of precedence (low -> high):
//  1. defaults (New())
//  2. dotenv files, which only fill variables not already set in the process
//  3. file (YAML) if LEADERBOARD_CONFIG is set
//  4. env (prefix LEADERBOARD_)
func Load(_ context.Context, dotenvFiles ...string) (*Config, error) {
	if err := loadDotenv(dotenvFiles); err != nil {
		return nil, err
	}

	cfg := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LEADERBOARD_QUERY_TIMEOUT_MS -> query_timeout_ms; underscores are kept
	// because keys are flat.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The config file variable is a loader input, not a setting.
	k.Delete("config")

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv reads ".env" when no files are given. Missing files are skipped.
func loadDotenv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, f, err)
		}
	}
	return nil
}
