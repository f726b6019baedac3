// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads evaluator configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/commitlens/services/evaluator/agent"
)

// MaxConfigFileSize caps config files at 1MB.
const MaxConfigFileSize = 1024 * 1024

// ErrInvalidConfig indicates a config value outside its allowed range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration wraps time.Duration so YAML may spell durations as "45s"
// or "2m" as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("%w: duration %q", ErrInvalidConfig, value.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LLMConfig configures the reasoning service client.
type LLMConfig struct {
	// Model is the model identifier. The OPENAI_MODEL environment
	// variable overrides it.
	Model string `yaml:"model"`

	// Temperature is the sampling temperature.
	Temperature float32 `yaml:"temperature"`

	// RequestsPerSecond throttles outbound reasoning calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SessionConfig configures per-session budgets.
type SessionConfig struct {
	MaxToolCalls     int      `yaml:"max_tool_calls"`
	MaxWallClock     Duration `yaml:"max_wall_clock"`
	MaxIterations    int      `yaml:"max_iterations"`
	PerCallTimeout   Duration `yaml:"per_call_timeout"`
	MaxResponseBytes int      `yaml:"max_response_bytes"`
}

// StoreConfig configures evaluation persistence.
type StoreConfig struct {
	// Path is the BadgerDB directory.
	Path string `yaml:"path"`

	// SyncWrites enables synchronous writes.
	SyncWrites bool `yaml:"sync_writes"`
}

// Config is the root evaluator configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`

	// Concurrency is the number of commits evaluated in parallel for
	// range evaluations.
	Concurrency int `yaml:"concurrency"`
}

// Default returns the standard configuration.
func Default() Config {
	budget := agent.DefaultBudget()
	return Config{
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			Temperature:       0.3,
			RequestsPerSecond: 2,
		},
		Session: SessionConfig{
			MaxToolCalls:     budget.MaxTotalCalls,
			MaxWallClock:     Duration(budget.MaxWallClock),
			MaxIterations:    budget.MaxIterations,
			PerCallTimeout:   Duration(budget.PerCallTimeout),
			MaxResponseBytes: budget.MaxResponseBytes,
		},
		Store: StoreConfig{
			Path:       ".commitlens/evaluations",
			SyncWrites: true,
		},
		Concurrency: 4,
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path returns the defaults with overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
		if info.Size() > MaxConfigFileSize {
			return Config{}, fmt.Errorf("%w: config file %s exceeds %d bytes", ErrInvalidConfig, path, MaxConfigFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("COMMITLENS_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
}

// Validate checks every value's range.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm model is required", ErrInvalidConfig)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidConfig, c.LLM.Temperature)
	}
	if c.LLM.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests per second must be positive", ErrInvalidConfig)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	return c.Budget().Validate()
}

// Budget converts the session section to an agent budget.
func (c *Config) Budget() agent.Budget {
	return agent.Budget{
		MaxTotalCalls:    c.Session.MaxToolCalls,
		MaxWallClock:     c.Session.MaxWallClock.Std(),
		MaxIterations:    c.Session.MaxIterations,
		PerCallTimeout:   c.Session.PerCallTimeout.Std(),
		MaxResponseBytes: c.Session.MaxResponseBytes,
	}
}
