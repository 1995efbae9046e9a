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
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

// RegisterRoutes registers the /v1/rao/* endpoints on rg.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/rao/runs - Run an optimisation and store its report
//	GET  /v1/rao/runs - List stored runs, newest first
//	GET  /v1/rao/runs/:id - Get a stored run
//	GET  /v1/rao/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rao := rg.Group("/rao")
	{
		rao.POST("/runs", handlers.HandleCreateRun)
		rao.GET("/runs", handlers.HandleListRuns)
		rao.GET("/runs/:id", handlers.HandleGetRun)

		rao.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter returns an engine with recovery, OTel tracing, /metrics and
// the /v1/rao routes.
//
// Example:
//
//	router := rao.NewRouter(rao.NewHandlers(svc), "rao")
//	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
func NewRouter(handlers *Handlers, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}
