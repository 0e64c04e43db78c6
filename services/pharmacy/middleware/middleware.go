// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gin middleware chain for the pharmacy
// service: request ids, access logging, rate limiting and request metrics.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianPharmacy/pkg/logging"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/datatypes"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/observability"
	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/telemetry"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "pharmacy_request_id"

// maxRequestIDLen bounds client-supplied ids echoed into logs and headers.
const maxRequestIDLen = 128

// RequestID reuses the client's X-Request-ID or generates one, stores it on
// the context and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog logs one record per request after the handler ran.
//
// 5xx responses log at error level, 4xx at warn, everything else at info.
func AccessLog(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", GetRequestID(c),
		}
		if traceID := telemetry.TraceID(c.Request.Context()); traceID != "" {
			args = append(args, "trace_id", traceID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", args...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", args...)
		default:
			logger.Info("request", args...)
		}
	}
}

// RateLimit rejects requests beyond rps (with the given burst) with 429.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{Detail: "Too Many Requests"})
			return
		}
		c.Next()
	}
}

// UnmatchedEndpoint labels requests that matched no route.
const UnmatchedEndpoint = "unmatched"

// OtherMethod labels requests with a method outside the standard set.
const OtherMethod = "OTHER"

// Metrics counts every request by method and route template. Requests that
// match no route share UnmatchedEndpoint so clients cannot mint series.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = UnmatchedEndpoint
		}
		m.ObserveRequest(methodLabel(c.Request.Method), endpoint, time.Since(start))
	}
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	default:
		return OtherMethod
	}
}
