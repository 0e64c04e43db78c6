// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pharmacy assembles and runs the pharmacy HTTP service.
//
// # Components
//
//	┌──────────────────────────────────────────────────────────┐
//	│                        Service                           │
//	│  routes ─► handlers ─► catalog ─┬─► store (records)      │
//	│     │                           └─► icons (fs/badger/gcs)│
//	│     └─► middleware ─► observability (prometheus)         │
//	│  telemetry (otel traces + metrics)   config watcher      │
//	└──────────────────────────────────────────────────────────┘
//
// New wires everything from a config.Config. Run serves until its context
// is cancelled and then shuts down gracefully. When a config path is given,
// edits to the log level are applied without a restart.
package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	kv "github.com/AleutianAI/AleutianPharmacy/pkg/storage/badger"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/config"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/icons"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/observability"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/routes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/store"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/telemetry"
)

// Options carries process-level inputs that are not part of config.Config.
type Options struct {
	// Logger is owned by the caller. Default: logging.Nop().
	Logger *logging.Logger

	// ConfigPath enables hot reload of the log level. Empty disables it.
	ConfigPath string

	// Version is reported in telemetry resources.
	Version string
}

// Service is a wired pharmacy server.
//
// # Thread Safety
//
// Run must be called at most once. Router may be used concurrently.
type Service struct {
	config  config.Config
	opts    Options
	logger  *logging.Logger
	metrics *observability.Metrics
	catalog *catalog.Catalog
	icons   *icons.Store
	router  *gin.Engine
	server  *http.Server

	telemetryShutdown func(context.Context) error
}

// New validates cfg and wires the service.
//
// # Description
//
// Builds, in order: the prometheus registry and metrics, the OpenTelemetry
// providers, the icon backend, the catalog (seeded when cfg.SeedDemo), and
// the router. Resources opened before a failure are released.
//
// # Inputs
//
//   - ctx: Used for exporter and backend setup.
//   - cfg: Service configuration. Must pass cfg.Validate().
//   - opts: Process options.
//
// # Outputs
//
//   - *Service: Ready to Run. Close releases it if Run is never called.
//   - error: Validation or setup failure.
func New(ctx context.Context, cfg config.Config, opts Options) (_ *Service, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	s := &Service{
		config: cfg,
		opts:   opts,
		logger: opts.Logger,
	}
	defer func() {
		if err != nil {
			s.Close(context.Background())
		}
	}()

	reg := observability.NewRegistry()
	s.metrics = observability.NewMetrics(reg)

	s.telemetryShutdown, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: opts.Version,
		Environment:    telemetry.DefaultConfig().Environment,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, reg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	backend, err := OpenIconBackend(ctx, cfg.Icons, s.logger)
	if err != nil {
		return nil, err
	}
	s.icons = icons.NewStore(backend, s.logger)

	s.catalog, err = catalog.New(catalog.Options{
		Store:        store.NewMemoryStore(),
		Icons:        s.icons,
		Recorder:     s.metrics,
		Logger:       s.logger,
		MaxIconBytes: cfg.Icons.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}
	if cfg.SeedDemo {
		if err := s.catalog.SeedDemo(ctx); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	tracingName := ""
	if cfg.Telemetry.TraceExporter != telemetry.ExporterNone {
		tracingName = cfg.Telemetry.ServiceName
	}
	s.router = routes.NewRouter(routes.Options{
		ServiceName:    tracingName,
		Logger:         s.logger,
		Metrics:        s.metrics,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})
	routes.SetupRoutes(s.router, s.catalog, s.logger, s.metrics.Handler())

	s.server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return s, nil
}

// OpenIconBackend returns the blob backend named by cfg.Backend.
func OpenIconBackend(ctx context.Context, cfg config.IconsConfig, logger *logging.Logger) (icons.Backend, error) {
	switch cfg.Backend {
	case config.BackendFS:
		backend, err := icons.NewFSBackend(afero.NewOsFs(), cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open icon directory: %w", err)
		}
		logger.Info("icon backend ready", "backend", cfg.Backend, "dir", cfg.Dir)
		return backend, nil

	case config.BackendMemory:
		logger.Info("icon backend ready", "backend", cfg.Backend)
		return icons.NewMemoryBackend(), nil

	case config.BackendBadger:
		kvCfg := kv.DefaultConfig(cfg.BadgerPath)
		kvCfg.Logger = logger.With("component", "badger").Slog()
		backend, err := icons.OpenBadgerBackend(kvCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("icon backend ready", "backend", cfg.Backend, "path", cfg.BadgerPath)
		return backend, nil

	case config.BackendGCS:
		backend, err := icons.NewGCSBackend(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		logger.Info("icon backend ready", "backend", cfg.Backend, "bucket", cfg.GCSBucket)
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown icon backend %q", cfg.Backend)
	}
}

// Router returns the configured engine. Tests drive it with httptest.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Catalog returns the domain service.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Run listens on the configured port and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.Close(context.Background())
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down within the
// configured timeout and releases every resource. It returns nil after a
// clean shutdown.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close(context.Background())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("pharmacy service listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down", "timeout", s.config.Server.ShutdownTimeout.String())
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if s.opts.ConfigPath != "" {
		g.Go(func() error {
			if err := config.Watch(gctx, s.opts.ConfigPath, s.reload); err != nil {
				s.logger.Warn("config watcher stopped", "path", s.opts.ConfigPath, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// reload applies the reloadable subset of a changed config file.
func (s *Service) reload(cfg config.Config, err error) {
	if err != nil {
		s.logger.Warn("config reload rejected", "path", s.opts.ConfigPath, "error", err)
		return
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		s.logger.Warn("config reload rejected", "path", s.opts.ConfigPath, "error", err)
		return
	}
	if level != s.logger.Level() {
		s.logger.SetLevel(level)
		s.logger.Info("log level changed", "level", level.String())
	}
}

// Close releases the icon backend and flushes telemetry. Safe to call
// more than once.
func (s *Service) Close(ctx context.Context) {
	if s.icons != nil {
		if err := s.icons.Close(); err != nil {
			s.logger.Warn("icon backend close failed", "error", err)
		}
		s.icons = nil
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", "error", err)
		}
		s.telemetryShutdown = nil
	}
}
