// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rao

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

var configValidate = validator.New(validator.WithRequiredStructEnabled())

// Config aggregates everything the service needs.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Search is the default search configuration, used when a run
	// request carries none.
	Search searchtree.Config `json:"search" yaml:"search"`

	Sensitivity SensitivityConfig `json:"sensitivity" yaml:"sensitivity"`
	Admission   AdmissionConfig   `json:"admission" yaml:"admission"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Storage     storage.Config    `json:"storage" yaml:"storage"`
	Telemetry   telemetry.Config  `json:"telemetry" yaml:"telemetry"`
}

// SensitivityConfig configures the oracle chain of every run.
type SensitivityConfig struct {
	// FallbackRegularization is the diagonal shift of the fallback DC
	// computation, used when the strict one fails.
	FallbackRegularization float64 `json:"fallback_regularization" yaml:"fallback_regularization" validate:"gt=0"`

	// CacheEntries bounds the per-run result cache. Zero uses the
	// sensitivity package default.
	CacheEntries int64 `json:"cache_entries" yaml:"cache_entries" validate:"gte=0"`
}

// AdmissionConfig throttles run requests.
type AdmissionConfig struct {
	// RatePerSecond is the sustained rate of accepted runs.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" validate:"gt=0"`

	// Burst is the number of runs accepted at once after an idle period.
	Burst int `json:"burst" yaml:"burst" validate:"min=1"`

	// MaxConcurrent bounds the runs in progress.
	MaxConcurrent int64 `json:"max_concurrent" yaml:"max_concurrent" validate:"min=1"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr              string        `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`

	// MaxBodyBytes bounds the size of a run request.
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" validate:"min=1"`
}

// DefaultConfig returns the configuration used by `rao serve` without a
// config file. Reports are stored under storePath.
func DefaultConfig(storePath string) Config {
	return Config{
		Search: searchtree.DefaultConfig(),
		Sensitivity: SensitivityConfig{
			FallbackRegularization: 1e-6,
			CacheEntries:           0,
		},
		Admission: AdmissionConfig{
			RatePerSecond: 2,
			Burst:         4,
			MaxConcurrent: 2,
		},
		HTTP: HTTPConfig{
			Addr:              ":12230",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodyBytes:      16 << 20,
		},
		Storage:   storage.DefaultConfig(storePath),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	path - YAML or JSON file. Empty keeps the defaults.
//	storePath - Default report store directory.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Read or decode failure, or ErrInvalidServiceConfig.
//
// Environment:
//
//	RAO_HTTP_ADDR, RAO_STORE_PATH, RAO_RATE_PER_SECOND, RAO_MAX_CONCURRENT_RUNS
func LoadConfig(path, storePath string) (Config, error) {
	cfg := DefaultConfig(storePath)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	loadConfigFromEnv(&cfg)
	return cfg, cfg.Validate()
}

func loadConfigFromEnv(cfg *Config) {
	if v := os.Getenv("RAO_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RAO_STORE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("RAO_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Admission.RatePerSecond = f
		}
	}
	if v := os.Getenv("RAO_MAX_CONCURRENT_RUNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Admission.MaxConcurrent = n
		}
	}
}

// Validate checks struct tags, then the search configuration.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidServiceConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	return c.Search.Validate()
}
