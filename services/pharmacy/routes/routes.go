// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes builds the pharmacy HTTP router.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/catalog"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/handlers"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/middleware"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/observability"
)

// inventoryAllow is the Allow header for /inventory/:id.
const inventoryAllow = "GET, PUT"

// Options configures NewRouter.
type Options struct {
	// ServiceName labels otelgin spans. Empty disables request tracing.
	ServiceName string

	Logger  *logging.Logger
	Metrics *observability.Metrics

	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter returns a gin engine with the middleware chain installed and
// unmatched routes and methods answered in the {"detail"} shape.
//
// Middleware order: recovery, request id, tracing, access log, metrics,
// rate limit.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.RedirectTrailingSlash = true

	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			"path", c.Request.URL.Path,
			"request_id", middleware.GetRequestID(c),
			"panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.ErrorResponse{Detail: catalog.MsgInternal})
	}))
	router.Use(middleware.RequestID())
	if opts.ServiceName != "" {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(middleware.AccessLog(logger))
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
	}
	router.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))

	router.NoRoute(handlers.NotFound)
	router.NoMethod(handlers.MethodNotAllowed(""))
	return router
}

// SetupRoutes registers the pharmacy API on router. A nil metricsHandler
// leaves /metrics unregistered.
func SetupRoutes(router *gin.Engine, cat handlers.Catalog, logger *logging.Logger, metricsHandler http.Handler) {
	if logger == nil {
		logger = logging.Nop()
	}

	router.GET("/health", handlers.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	meds := router.Group("/medications")
	{
		meds.GET("/", handlers.ListMedications(cat, logger))
		meds.POST("/", handlers.CreateMedication(cat, logger))
		meds.GET("/:id", handlers.GetMedication(cat, logger))
		meds.PUT("/:id", handlers.UpdateMedication(cat, logger))
		meds.DELETE("/:id", handlers.DeleteMedication(cat, logger))

		meds.POST("/:id/icon", handlers.UploadIcon(cat, logger))
		meds.GET("/:id/icon", handlers.GetIcon(cat, logger))
		meds.DELETE("/:id/icon", handlers.DeleteIcon(cat, logger))
	}

	inventory := router.Group("/inventory")
	{
		inventory.GET("/", handlers.ListInventory(cat, logger))
		inventory.GET("/:id", handlers.GetInventory(cat, logger))
		inventory.PUT("/:id", handlers.UpdateInventory(cat, logger))
		inventory.DELETE("/:id", handlers.MethodNotAllowed(inventoryAllow))
	}
}
