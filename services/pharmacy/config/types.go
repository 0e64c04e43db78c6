// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the pharmacy service configuration.
//
// Values come from three layers, later layers winning: built-in defaults,
// a YAML file, then environment variables. The CLI applies its flags on top
// and calls Validate.
//
// # Example File
//
//	server:
//	  port: 8000
//	  shutdown_timeout: 10s
//	logging:
//	  level: info
//	icons:
//	  backend: fs
//	  dir: /tmp/images
//	seed_demo: true
package config

import "time"

// Config is the root of the service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Icons     IconsConfig     `yaml:"icons"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// SeedDemo loads three demo medications at startup.
	SeedDemo bool `yaml:"seed_demo"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// RateLimitRPS is the sustained request rate across all clients.
	// Zero disables rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" validate:"gte=0"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`

	// Dir enables a daily JSON log file in this directory.
	Dir string `yaml:"dir,omitempty"`
}

// Icon backends.
const (
	BackendFS     = "fs"
	BackendBadger = "badger"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// IconsConfig selects and configures the icon blob backend.
type IconsConfig struct {
	Backend            string `yaml:"backend" validate:"oneof=fs badger gcs memory"`
	Dir                string `yaml:"dir" validate:"required_if=Backend fs"`
	BadgerPath         string `yaml:"badger_path" validate:"required_if=Backend badger"`
	GCSBucket          string `yaml:"gcs_bucket" validate:"required_if=Backend gcs"`
	GCSPrefix          string `yaml:"gcs_prefix,omitempty"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file,omitempty"`

	// MaxUploadBytes caps the size of one uploaded icon.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" validate:"gt=0"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" validate:"required"`
	TraceExporter  string  `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string  `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	SampleRatio    float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Icons: IconsConfig{
			Backend:        BackendFS,
			Dir:            "/tmp/images",
			BadgerPath:     "/tmp/pharmacy-icons",
			MaxUploadBytes: 5 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "pharmacy",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			SampleRatio:    1,
		},
	}
}
