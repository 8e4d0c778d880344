package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if ELOCHECK_CONFIG is set
//  3. env (prefix ELOCHECK_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("ELOCHECK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables: ELOCHECK_ADDR, ELOCHECK_QUEUE_SIZE, ...
	// Map env keys like ELOCHECK_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ELOCHECK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "elocheck_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return ErrEmptyAddr
	}
	switch c.RecomputePolicy {
	case "immediate", "debounced", "scheduled":
	default:
		return fmt.Errorf("%w: %q", ErrBadPolicy, c.RecomputePolicy)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate %.4f", ErrBadBounds, c.LearningRate)
	}
	if c.MinScore <= 0 || c.MaxScore <= c.MinScore {
		return fmt.Errorf("%w: min_score %.4f, max_score %.4f", ErrBadBounds, c.MinScore, c.MaxScore)
	}
	return nil
}
