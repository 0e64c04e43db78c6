// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration from defaults, the file at path, and the
// environment, then validates it.
//
// # Inputs
//
//   - path: YAML file. Empty skips the file layer. A named file that does
//     not exist is an error.
//
// # Outputs
//
//   - Config: The effective configuration.
//   - error: Read, parse, or ErrInvalid errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Marshal renders c as YAML.
func Marshal(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the built-in configuration to path, creating parent
// directories. An existing file is left untouched and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("PHARMACY_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PHARMACY_PORT=%q", ErrInvalid, v)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("PHARMACY_SEED_DEMO"); ok && v != "" {
		seed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: PHARMACY_SEED_DEMO=%q", ErrInvalid, v)
		}
		cfg.SeedDemo = seed
	}
	setString(lookup, "PHARMACY_ICON_BACKEND", &cfg.Icons.Backend)
	setString(lookup, "PHARMACY_ICON_DIR", &cfg.Icons.Dir)
	setString(lookup, "PHARMACY_LOG_LEVEL", &cfg.Logging.Level)
	setString(lookup, "OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter)
	setString(lookup, "OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricExporter)
	setString(lookup, "OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	return nil
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}
