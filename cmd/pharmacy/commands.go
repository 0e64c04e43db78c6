// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/config"
)

// serveFlags are the overrides serve accepts on top of the config file.
type serveFlags struct {
	port          int
	seedDemo      bool
	iconBackend   string
	iconDir       string
	logLevel      string
	logJSON       bool
	traceExporter string
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pharmacy",
		Short:         "Medication catalog and inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newConfigCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := logging.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{
				Level:   level,
				Service: cfg.Telemetry.ServiceName,
				JSON:    cfg.Logging.JSON,
				LogDir:  cfg.Logging.Dir,
				Writer:  cmd.ErrOrStderr(),
			})
			defer logger.Close()

			if level != logging.LevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}

			svc, err := pharmacy.New(cmd.Context(), cfg, pharmacy.Options{
				Logger:     logger,
				ConfigPath: *configPath,
				Version:    version,
			})
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			return svc.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.port, "port", "p", 0, "listen port")
	f.BoolVar(&flags.seedDemo, "seed-demo", false, "load demo medications at startup")
	f.StringVar(&flags.iconBackend, "icon-backend", "", "icon storage: fs, badger, gcs or memory")
	f.StringVar(&flags.iconDir, "icon-dir", "", "icon directory for the fs backend")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&flags.logJSON, "log-json", false, "force JSON logs on stderr")
	f.StringVar(&flags.traceExporter, "trace-exporter", "", "otlp, stdout or none")
	return cmd
}

// applyServeFlags copies explicitly set flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = flags.port
	}
	if changed("seed-demo") {
		cfg.SeedDemo = flags.seedDemo
	}
	if changed("icon-backend") {
		cfg.Icons.Backend = flags.iconBackend
	}
	if changed("icon-dir") {
		cfg.Icons.Dir = flags.iconDir
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("log-json") {
		cfg.Logging.JSON = flags.logJSON
	}
	if changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = flags.traceExporter
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "print",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "init <path>",
			Short: "Write the default configuration to path",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.WriteDefault(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
