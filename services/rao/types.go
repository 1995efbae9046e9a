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
	"encoding/json"
	"time"

	"github.com/AleutianAI/AleutianRAO/services/rao/caseio"
	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
)

// RunRequest is the body of POST /v1/rao/runs.
type RunRequest struct {
	// Case is the network and CRAC to optimise.
	Case *caseio.Document `json:"case" binding:"required"`

	// Config optionally overrides the service's search configuration.
	// Fields left out keep their default values. YAML is accepted too.
	Config json.RawMessage `json:"config,omitempty"`
}

// RunResponse is the outcome of one run.
type RunResponse struct {
	RunID     string             `json:"run_id"`
	CaseID    string             `json:"case_id"`
	CreatedAt time.Time          `json:"created_at"`
	Report    *searchtree.Report `json:"report"`
}

// ListResponse is the response for GET /v1/rao/runs.
type ListResponse struct {
	Runs  []storage.Summary `json:"runs"`
	Count int               `json:"count"`
}

// HealthResponse is the response for GET /v1/rao/health.
type HealthResponse struct {
	// Status is "healthy".
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
