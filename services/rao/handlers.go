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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
	"github.com/AleutianAI/AleutianRAO/services/rao/telemetry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Handlers contains the HTTP handlers of the optimisation service.
type Handlers struct {
	svc          *Service
	maxBodyBytes int64
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, maxBodyBytes: svc.cfg.HTTP.MaxBodyBytes}
}

// HandleCreateRun handles POST /v1/rao/runs.
//
// Description:
//
//	Runs the optimisation synchronously and returns the stored report.
//
// Request Body:
//
//	RunRequest
//
// Response:
//
//	201 Created: RunResponse
//	400 Bad Request: Malformed body or invalid search configuration
//	422 Unprocessable Entity: Invalid case, or the initial state cannot be evaluated
//	429 Too Many Requests: Admission control refused the run
//	500 Internal Server Error: Search or storage failure
func (h *Handlers) HandleCreateRun(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateRun")

	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Run(c.Request.Context(), req)
	if err != nil {
		status, code := runErrorStatus(err)
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", "1")
		}
		if status >= http.StatusInternalServerError {
			logger.Error("Run failed", "error", err)
		} else {
			logger.Warn("Run rejected", "error", err, "code", code)
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.Header("Location", c.FullPath()+"/"+resp.RunID)
	c.JSON(http.StatusCreated, resp)
}

func runErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBusy):
		return http.StatusTooManyRequests, "BUSY"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, searchtree.ErrInvalidConfig):
		return http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, ErrInvalidCase):
		return http.StatusUnprocessableEntity, "INVALID_CASE"
	case errors.Is(err, searchtree.ErrRootEvaluation):
		return http.StatusUnprocessableEntity, "ROOT_EVALUATION_FAILED"
	default:
		return http.StatusInternalServerError, "RUN_FAILED"
	}
}

// HandleListRuns handles GET /v1/rao/runs.
//
// Query Parameters:
//
//	limit: Maximum number of runs (optional, default 20, max 200)
//
// Response:
//
//	200 OK: ListResponse, newest first
//	400 Bad Request: Invalid limit
func (h *Handlers) HandleListRuns(c *gin.Context) {
	logger := h.requestLogger(c, "HandleListRuns")
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		logger.Error("List runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LIST_FAILED"})
		return
	}
	c.JSON(http.StatusOK, ListResponse{Runs: runs, Count: len(runs)})
}

// HandleGetRun handles GET /v1/rao/runs/:id.
//
// Response:
//
//	200 OK: RunResponse
//	400 Bad Request: Invalid run id
//	404 Not Found: No such run, or it expired
func (h *Handlers) HandleGetRun(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGetRun")
	resp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, storage.ErrInvalidRunID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RUN_ID"})
	case err != nil:
		logger.Error("Get run failed", "run_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "GET_FAILED"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// HandleHealth handles GET /v1/rao/health. Always 200 while running.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// requestLogger is the service logger tagged with the request id, the
// handler name and the trace of the request.
func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(),
		h.svc.logger.With("request_id", getOrCreateRequestID(c), "handler", handler))
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
