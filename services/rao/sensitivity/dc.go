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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/AleutianRAO/services/rao/crac"
	"github.com/AleutianAI/AleutianRAO/services/rao/grid"
)

const tracerName = "rao.sensitivity"

// DCOracle computes flows and sensitivities with a DC load flow.
//
// Description:
//
//	For each contingency of the requested CNECs, the susceptance matrix of
//	the remaining closed branches is inverted once. Flows follow from the
//	nodal injections (injections, HVDC transfers and PST phase shifts),
//	sensitivities from the inverse itself. Zonal PTDFs use a
//	generator-proportional shift key per country.
//
// Thread Safety: Safe for concurrent use.
type DCOracle struct {
	contingencies  map[string][]string
	regularization float64
	logger         *slog.Logger
}

// DCOption configures a DCOracle.
type DCOption func(*DCOracle)

// WithRegularization adds eps (MW/rad) to the matrix diagonal so that
// islanded networks can still be solved. Results are then approximate and
// the oracle should sit behind a fallback.
func WithRegularization(eps float64) DCOption {
	return func(o *DCOracle) { o.regularization = eps }
}

// WithDCLogger sets the logger.
func WithDCLogger(logger *slog.Logger) DCOption {
	return func(o *DCOracle) { o.logger = logger }
}

// NewDCOracle creates an oracle knowing the catalog contingencies.
func NewDCOracle(contingencies []crac.Contingency, opts ...DCOption) *DCOracle {
	o := &DCOracle{
		contingencies: make(map[string][]string, len(contingencies)),
		logger:        slog.Default(),
	}
	for _, co := range contingencies {
		o.contingencies[co.ID] = append([]string(nil), co.BranchIDs...)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Compute runs one DC load flow per contingency.
//
// Outputs:
//
//	*Result - Status SUCCESS.
//	error - Variant contract errors as returned by the variant, otherwise
//	        wrapping ErrComputationFailed.
func (o *DCOracle) Compute(ctx context.Context, v *grid.Variant, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rao.sensitivity.compute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("cnecs", len(req.Cnecs)),
		attribute.Int("range_actions", len(req.RangeActions)),
		attribute.Bool("regularized", o.regularization > 0),
	)

	state, err := v.Snapshot()
	if err != nil {
		return nil, err
	}
	net := v.Network()

	byContingency := make(map[string][]*crac.FlowCnec)
	for _, c := range req.Cnecs {
		byContingency[c.ContingencyID] = append(byContingency[c.ContingencyID], c)
	}
	ids := make([]string, 0, len(byContingency))
	for id := range byContingency {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := NewResult(StatusSuccess)
	for _, coID := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outaged, ok := o.contingencies[coID]
		if coID != "" && !ok {
			return nil, fmt.Errorf("%w: unknown contingency %q", ErrComputationFailed, coID)
		}
		model, err := o.buildModel(net, state, outaged)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: contingency %q: %w", ErrComputationFailed, coID, err)
		}
		for _, c := range byContingency[coID] {
			res.SetFlow(c.ID, model.flow(c.BranchID))
			for _, ra := range req.RangeActions {
				res.SetSensitivity(c.ID, ra.ID(), model.rangeActionSensitivity(c.BranchID, ra))
			}
			if req.CommercialFlows {
				res.SetCommercialFlow(c.ID, model.commercialFlow(c.BranchID))
			}
			if req.PtdfSums {
				res.SetPtdfZonalSum(c.ID, model.ptdfZonalSum(c.BranchID))
			}
		}
	}
	o.logger.Debug("dc sensitivity computed",
		slog.Int("contingencies", len(ids)),
		slog.Int("cnecs", len(req.Cnecs)))
	return res, nil
}

// dcModel is one solved DC load flow.
type dcModel struct {
	net     *grid.Network
	state   grid.State
	closed  map[string]bool
	slack   int
	reduced []int
	inverse *mat.Dense
	theta   []float64
}

func (o *DCOracle) buildModel(net *grid.Network, state grid.State, outaged []string) (*dcModel, error) {
	buses := net.Buses()
	n := len(buses)
	slack, _ := net.BusIndex(net.SlackBus())

	m := &dcModel{
		net:     net,
		state:   state,
		closed:  make(map[string]bool, len(state.BranchClosed)),
		slack:   slack,
		reduced: make([]int, n),
		theta:   make([]float64, n),
	}
	for id, closed := range state.BranchClosed {
		m.closed[id] = closed
	}
	for _, id := range outaged {
		m.closed[id] = false
	}
	r := 0
	for i := range buses {
		if i == slack {
			m.reduced[i] = -1
			continue
		}
		m.reduced[i] = r
		r++
	}
	if r == 0 {
		return m, nil
	}

	b := mat.NewDense(r, r, nil)
	for _, br := range net.Branches() {
		if !m.closed[br.ID] {
			continue
		}
		y := net.BaseMVA() / br.Reactance
		f, _ := net.BusIndex(br.From)
		t, _ := net.BusIndex(br.To)
		rf, rt := m.reduced[f], m.reduced[t]
		if rf >= 0 {
			b.Set(rf, rf, b.At(rf, rf)+y)
		}
		if rt >= 0 {
			b.Set(rt, rt, b.At(rt, rt)+y)
		}
		if rf >= 0 && rt >= 0 {
			b.Set(rf, rt, b.At(rf, rt)-y)
			b.Set(rt, rf, b.At(rt, rf)-y)
		}
	}
	if o.regularization > 0 {
		for i := 0; i < r; i++ {
			b.Set(i, i, b.At(i, i)+o.regularization)
		}
	}

	m.inverse = mat.NewDense(r, r, nil)
	if err := m.inverse.Inverse(b); err != nil {
		var cond mat.Condition
		if o.regularization <= 0 || !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: %v", ErrSingularNetwork, err)
		}
		o.logger.Warn("ill-conditioned dc matrix accepted", slog.Float64("condition", float64(cond)))
	}

	injections := m.nodalInjections()
	for i := range buses {
		ri := m.reduced[i]
		if ri < 0 {
			continue
		}
		var th float64
		for j := range buses {
			if rj := m.reduced[j]; rj >= 0 {
				th += m.inverse.At(ri, rj) * injections[j]
			}
		}
		m.theta[i] = th
	}
	return m, nil
}

// nodalInjections returns the effective MW injection per bus, PST shifts included.
func (m *dcModel) nodalInjections() []float64 {
	p := make([]float64, len(m.theta))
	for _, inj := range m.net.Injections() {
		i, _ := m.net.BusIndex(inj.Bus)
		p[i] += m.state.Injections[inj.ID]
	}
	for _, h := range m.net.Hvdcs() {
		f, _ := m.net.BusIndex(h.From)
		t, _ := m.net.BusIndex(h.To)
		sp := m.state.HvdcSetpoints[h.ID]
		p[f] -= sp
		p[t] += sp
	}
	for _, br := range m.net.Branches() {
		if !m.closed[br.ID] {
			continue
		}
		alpha := m.shiftRadians(br.ID)
		if alpha == 0 {
			continue
		}
		y := m.net.BaseMVA() / br.Reactance
		f, _ := m.net.BusIndex(br.From)
		t, _ := m.net.BusIndex(br.To)
		p[f] -= y * alpha
		p[t] += y * alpha
	}
	return p
}

// shiftRadians returns the PST angle on a branch, zero without PST.
func (m *dcModel) shiftRadians(branchID string) float64 {
	pstID, ok := m.net.PstOnBranch(branchID)
	if !ok {
		return 0
	}
	pst, _ := m.net.Pst(pstID)
	angle, err := pst.Taps.Angle(m.state.PstTaps[pstID])
	if err != nil {
		return 0
	}
	return angle * math.Pi / 180
}

// x returns the inverse entry for two buses, zero on the slack.
func (m *dcModel) x(i, j int) float64 {
	ri, rj := m.reduced[i], m.reduced[j]
	if ri < 0 || rj < 0 || m.inverse == nil {
		return 0
	}
	return m.inverse.At(ri, rj)
}

func (m *dcModel) branchEnds(branchID string) (grid.Branch, int, int) {
	br, _ := m.net.Branch(branchID)
	f, _ := m.net.BusIndex(br.From)
	t, _ := m.net.BusIndex(br.To)
	return br, f, t
}

// flow returns the MW flow from the From bus to the To bus of a branch.
func (m *dcModel) flow(branchID string) float64 {
	if !m.closed[branchID] {
		return 0
	}
	br, f, t := m.branchEnds(branchID)
	return m.net.BaseMVA() / br.Reactance * (m.theta[f] - m.theta[t] + m.shiftRadians(branchID))
}

// transfer returns the flow change on a branch for 1 MW withdrawn at bus a
// and injected at bus b.
func (m *dcModel) transfer(branchID string, a, b int) float64 {
	if !m.closed[branchID] {
		return 0
	}
	br, f, t := m.branchEnds(branchID)
	y := m.net.BaseMVA() / br.Reactance
	return y * ((m.x(f, b) - m.x(f, a)) - (m.x(t, b) - m.x(t, a)))
}

// rangeActionSensitivity returns MW/degree for PSTs and MW/MW for HVDC lines.
func (m *dcModel) rangeActionSensitivity(branchID string, ra crac.RangeAction) float64 {
	switch ra.Kind() {
	case crac.KindPst:
		pst, ok := m.net.Pst(ra.NetworkElementID())
		if !ok || !m.closed[pst.BranchID] {
			return 0
		}
		br, f, t := m.branchEnds(pst.BranchID)
		y := m.net.BaseMVA() / br.Reactance
		s := y * m.transfer(branchID, f, t)
		if branchID == pst.BranchID {
			s += y
		}
		return s * math.Pi / 180
	case crac.KindHvdc:
		line, ok := m.net.Hvdc(ra.NetworkElementID())
		if !ok {
			return 0
		}
		f, _ := m.net.BusIndex(line.From)
		t, _ := m.net.BusIndex(line.To)
		return m.transfer(branchID, f, t)
	}
	return 0
}

// zonalPtdf returns the flow on a branch per MW injected in a country
// following its shift key and withdrawn at the slack.
func (m *dcModel) zonalPtdf(branchID, country string) float64 {
	weights := m.shiftKey(country)
	var ptdf float64
	for i, w := range weights {
		ptdf += w * m.transfer(branchID, m.slack, i)
	}
	return ptdf
}

// shiftKey weights country buses by their positive injections, or evenly
// when the country has no generation.
func (m *dcModel) shiftKey(country string) map[int]float64 {
	weights := make(map[int]float64)
	var total float64
	for _, inj := range m.net.Injections() {
		bus, _ := m.net.Bus(inj.Bus)
		if bus.Country != country {
			continue
		}
		if p := m.state.Injections[inj.ID]; p > 0 {
			i, _ := m.net.BusIndex(inj.Bus)
			weights[i] += p
			total += p
		}
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
		return weights
	}
	var members []int
	for i, bus := range m.net.Buses() {
		if bus.Country == country {
			members = append(members, i)
		}
	}
	for _, i := range members {
		weights[i] = 1 / float64(len(members))
	}
	return weights
}

// commercialFlow is the flow explained by the country net positions.
func (m *dcModel) commercialFlow(branchID string) float64 {
	netPositions := make(map[string]float64)
	for _, inj := range m.net.Injections() {
		bus, _ := m.net.Bus(inj.Bus)
		if bus.Country == "" {
			continue
		}
		netPositions[bus.Country] += m.state.Injections[inj.ID]
	}
	countries := make([]string, 0, len(netPositions))
	for c := range netPositions {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	var cf float64
	for _, c := range countries {
		cf += m.zonalPtdf(branchID, c) * netPositions[c]
	}
	return cf
}

// ptdfZonalSum sums |PTDF(a) - PTDF(b)| over the network boundaries.
func (m *dcModel) ptdfZonalSum(branchID string) float64 {
	var sum float64
	for _, b := range m.net.Boundaries() {
		sum += math.Abs(m.zonalPtdf(branchID, b.CountryA) - m.zonalPtdf(branchID, b.CountryB))
	}
	return sum
}
