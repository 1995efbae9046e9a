// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensitivity

// Status is the computation status of a result.
type Status int

const (
	// StatusSuccess is a nominal computation.
	StatusSuccess Status = iota
	// StatusFallback is a degraded computation made with fallback parameters.
	StatusFallback
	// StatusFailure marks a result that must not be used.
	StatusFailure
)

// String returns "SUCCESS", "FALLBACK" or "FAILURE".
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFallback:
		return "FALLBACK"
	default:
		return "FAILURE"
	}
}

// Result holds flows in MW and sensitivities for one variant.
//
// Sensitivities are in MW per degree for PST range actions and MW per MW
// for HVDC range actions.
//
// Thread Safety: Setters are for the producing oracle only. Once returned by
// an oracle a Result is read-only and safe for concurrent reads.
type Result struct {
	status        Status
	flows         map[string]float64
	sensitivities map[string]map[string]float64
	commercial    map[string]float64
	ptdfSums      map[string]float64
}

// NewResult creates an empty result with the given status.
func NewResult(status Status) *Result {
	return &Result{
		status:        status,
		flows:         make(map[string]float64),
		sensitivities: make(map[string]map[string]float64),
		commercial:    make(map[string]float64),
		ptdfSums:      make(map[string]float64),
	}
}

// Status returns the computation status.
func (r *Result) Status() Status { return r.status }

// WithStatus returns a shallow copy carrying another status.
func (r *Result) WithStatus(status Status) *Result {
	c := *r
	c.status = status
	return &c
}

// SetFlow records the flow of a CNEC.
func (r *Result) SetFlow(cnecID string, mw float64) { r.flows[cnecID] = mw }

// Flow returns the flow of a CNEC in MW.
func (r *Result) Flow(cnecID string) (float64, bool) {
	f, ok := r.flows[cnecID]
	return f, ok
}

// SetSensitivity records dFlow(cnec)/dSetpoint(rangeAction).
func (r *Result) SetSensitivity(cnecID, rangeActionID string, value float64) {
	m, ok := r.sensitivities[cnecID]
	if !ok {
		m = make(map[string]float64)
		r.sensitivities[cnecID] = m
	}
	m[rangeActionID] = value
}

// Sensitivity returns dFlow(cnec)/dSetpoint(rangeAction), zero when unknown.
func (r *Result) Sensitivity(cnecID, rangeActionID string) float64 {
	return r.sensitivities[cnecID][rangeActionID]
}

// SetCommercialFlow records the commercial flow of a CNEC.
func (r *Result) SetCommercialFlow(cnecID string, mw float64) { r.commercial[cnecID] = mw }

// CommercialFlow returns the commercial flow of a CNEC in MW.
func (r *Result) CommercialFlow(cnecID string) (float64, bool) {
	f, ok := r.commercial[cnecID]
	return f, ok
}

// LoopFlow returns flow minus commercial flow.
func (r *Result) LoopFlow(cnecID string) (float64, bool) {
	f, ok := r.flows[cnecID]
	if !ok {
		return 0, false
	}
	cf, ok := r.commercial[cnecID]
	if !ok {
		return 0, false
	}
	return f - cf, true
}

// SetPtdfZonalSum records the zonal PTDF sum of a CNEC.
func (r *Result) SetPtdfZonalSum(cnecID string, sum float64) { r.ptdfSums[cnecID] = sum }

// PtdfZonalSum returns the zonal PTDF sum of a CNEC.
func (r *Result) PtdfZonalSum(cnecID string) (float64, bool) {
	s, ok := r.ptdfSums[cnecID]
	return s, ok
}
