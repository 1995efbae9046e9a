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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func runBody(t *testing.T, req RunRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	w := do(t, router, http.MethodGet, "/v1/rao/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandlers_RunLifecycle(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	w := do(t, router, http.MethodPost, "/v1/rao/runs", runBody(t, RunRequest{Case: loadTriangle(t)}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var created RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, searchtree.Secure, created.Report.Status)
	assert.Equal(t, "/v1/rao/runs/"+created.RunID, w.Header().Get("Location"))

	w = do(t, router, http.MethodGet, "/v1/rao/runs/"+created.RunID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.RunID, fetched.RunID)
	assert.Equal(t, created.Report.NetworkActions, fetched.Report.NetworkActions)

	w = do(t, router, http.MethodGet, "/v1/rao/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.RunID, list.Runs[0].RunID)
}

func TestHandlers_HandleCreateRun_Errors(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	dangling := loadTriangle(t)
	dangling.Network.Branches[0].From = "XX1"

	tests := []struct {
		name       string
		body       []byte
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       []byte(`{"case":`),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing case",
			body:       []byte(`{}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "invalid search config",
			body:       runBody(t, RunRequest{Case: loadTriangle(t), Config: json.RawMessage(`{"search": {"leaves_in_parallel": 0}}`)}),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_CONFIG",
		},
		{
			name:       "dangling bus",
			body:       runBody(t, RunRequest{Case: dangling}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVALID_CASE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/rao/runs", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandlers_HandleCreateRun_Busy(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.Admission.MaxConcurrent = 1 })
	require.True(t, svc.slots.TryAcquire(1))
	defer svc.slots.Release(1)
	router := setupTestRouter(svc)

	w := do(t, router, http.MethodPost, "/v1/rao/runs", runBody(t, RunRequest{Case: loadTriangle(t)}))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHandlers_HandleCreateRun_BodyTooLarge(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.HTTP.MaxBodyBytes = 64 })
	router := setupTestRouter(svc)

	w := do(t, router, http.MethodPost, "/v1/rao/runs", runBody(t, RunRequest{Case: loadTriangle(t)}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_HandleGetRun_Errors(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	w := do(t, router, http.MethodGet, "/v1/rao/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_HandleListRuns_InvalidLimit(t *testing.T) {
	router := setupTestRouter(newTestService(t, nil))

	for _, limit := range []string{"0", "-3", "many"} {
		w := do(t, router, http.MethodGet, "/v1/rao/runs?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}

	w := do(t, router, http.MethodGet, "/v1/rao/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"runs":[]`), w.Body.String())
}

func TestRunErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("wrap: %w", ErrBusy), http.StatusTooManyRequests, "BUSY"},
		{ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{searchtree.ErrInvalidConfig, http.StatusBadRequest, "INVALID_CONFIG"},
		{ErrInvalidCase, http.StatusUnprocessableEntity, "INVALID_CASE"},
		{fmt.Errorf("%w: singular", searchtree.ErrRootEvaluation), http.StatusUnprocessableEntity, "ROOT_EVALUATION_FAILED"},
		{errors.New("disk full"), http.StatusInternalServerError, "RUN_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := runErrorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	router := NewRouter(NewHandlers(newTestService(t, nil)), "rao-test")

	w := do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/v1/rao/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlers_StoreFailuresUseServiceLogger(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		code    string
		handler string
		message string
	}{
		{name: "list", path: "/v1/rao/runs", code: "LIST_FAILED", handler: "HandleListRuns", message: "List runs failed"},
		{name: "get", path: "/v1/rao/runs/some-run", code: "GET_FAILED", handler: "HandleGetRun", message: "Get run failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			svc := newTestService(t, nil)
			svc.logger = slog.New(slog.NewJSONHandler(&buf, nil))
			router := setupTestRouter(svc)

			// A cancelled request makes the store refuse the read.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil).WithContext(ctx)
			req.Header.Set("X-Request-ID", "req-42")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusInternalServerError, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)

			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
			assert.Equal(t, tt.message, record["msg"])
			assert.Equal(t, "req-42", record["request_id"])
			assert.Equal(t, tt.handler, record["handler"])
		})
	}
}
