// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// InitialVariantID names the variant holding the network's initial operating point.
const InitialVariantID = "initial"

// State is the mutable part of the network owned by one variant.
//
// Values returned by Snapshot are copies; mutating them has no effect on
// the variant.
type State struct {
	BranchClosed  map[string]bool
	PstTaps       map[string]int
	HvdcSetpoints map[string]float64
	Injections    map[string]float64
}

func newState() State {
	return State{
		BranchClosed:  make(map[string]bool),
		PstTaps:       make(map[string]int),
		HvdcSetpoints: make(map[string]float64),
		Injections:    make(map[string]float64),
	}
}

func (s State) clone() State {
	c := State{
		BranchClosed:  make(map[string]bool, len(s.BranchClosed)),
		PstTaps:       make(map[string]int, len(s.PstTaps)),
		HvdcSetpoints: make(map[string]float64, len(s.HvdcSetpoints)),
		Injections:    make(map[string]float64, len(s.Injections)),
	}
	for k, v := range s.BranchClosed {
		c.BranchClosed[k] = v
	}
	for k, v := range s.PstTaps {
		c.PstTaps[k] = v
	}
	for k, v := range s.HvdcSetpoints {
		c.HvdcSetpoints[k] = v
	}
	for k, v := range s.Injections {
		c.Injections[k] = v
	}
	return c
}

// fingerprint hashes the state with keys in sorted order.
func (s State) fingerprint() string {
	h := sha256.New()
	write := func(kind, key, value string) {
		h.Write([]byte(kind))
		h.Write([]byte{0})
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write([]byte(value))
		h.Write([]byte{'\n'})
	}
	for _, k := range sortedKeys(s.BranchClosed) {
		write("b", k, strconv.FormatBool(s.BranchClosed[k]))
	}
	for _, k := range sortedKeys(s.PstTaps) {
		write("p", k, strconv.Itoa(s.PstTaps[k]))
	}
	for _, k := range sortedKeys(s.HvdcSetpoints) {
		write("h", k, strconv.FormatFloat(s.HvdcSetpoints[k], 'g', -1, 64))
	}
	for _, k := range sortedKeys(s.Injections) {
		write("i", k, strconv.FormatFloat(s.Injections[k], 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type variantSlot struct {
	state    State
	acquired bool
}

// VariantManager is the arena of network variants.
//
// Description:
//
//	Variants are addressed by id. Creation (Clone) and removal are
//	serialized by the manager. Reading or mutating a variant requires an
//	exclusive Variant token from Acquire; there is no ambient working
//	variant.
//
// Thread Safety: Safe for concurrent use.
type VariantManager struct {
	mu       sync.Mutex
	network  *Network
	variants map[string]*variantSlot
}

// NewVariantManager creates an arena holding only the initial variant.
func NewVariantManager(network *Network) *VariantManager {
	return &VariantManager{
		network: network,
		variants: map[string]*variantSlot{
			InitialVariantID: {state: network.initialState()},
		},
	}
}

// Network returns the shared topology.
func (m *VariantManager) Network() *Network { return m.network }

// Clone copies a variant into a new one and returns its id.
//
// Inputs:
//
//	sourceID - Variant to copy. It may be acquired by another token.
//
// Outputs:
//
//	string - The new variant id.
//	error - ErrUnknownVariant if sourceID does not exist.
func (m *VariantManager) Clone(sourceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.variants[sourceID]
	if !ok {
		return "", fmt.Errorf("%w %s", ErrUnknownVariant, sourceID)
	}
	id := uuid.NewString()
	m.variants[id] = &variantSlot{state: src.state.clone()}
	return id, nil
}

// Acquire returns the exclusive token for a variant.
//
// Outputs:
//
//	*Variant - Token; call Release when done.
//	error - ErrUnknownVariant or ErrVariantInUse.
func (m *VariantManager) Acquire(id string) (*Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.variants[id]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownVariant, id)
	}
	if slot.acquired {
		return nil, fmt.Errorf("%w %s", ErrVariantInUse, id)
	}
	slot.acquired = true
	return &Variant{manager: m, id: id}, nil
}

// Remove deletes a variant that is not currently acquired.
func (m *VariantManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.variants[id]
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownVariant, id)
	}
	if slot.acquired {
		return fmt.Errorf("%w %s", ErrVariantInUse, id)
	}
	delete(m.variants, id)
	return nil
}

// Exists reports whether the id is in the arena.
func (m *VariantManager) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.variants[id]
	return ok
}

// Len returns the number of live variants.
func (m *VariantManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.variants)
}

// Variant is an exclusive token on one variant of the arena.
//
// Thread Safety: A token belongs to the goroutine that acquired it. Its
// methods are still serialized through the manager so that Clone can copy
// an acquired variant safely.
type Variant struct {
	manager  *VariantManager
	id       string
	released bool
}

// ID returns the variant id.
func (v *Variant) ID() string { return v.id }

// Network returns the shared topology.
func (v *Variant) Network() *Network { return v.manager.network }

// Release gives the variant back to the arena. Calling it twice is a no-op.
func (v *Variant) Release() {
	m := v.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.released {
		return
	}
	v.released = true
	if slot, ok := m.variants[v.id]; ok {
		slot.acquired = false
	}
}

// slot must be called with the manager lock held.
func (v *Variant) slot() (*variantSlot, error) {
	if v.released {
		return nil, fmt.Errorf("%w (variant %s)", ErrVariantReleased, v.id)
	}
	s, ok := v.manager.variants[v.id]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownVariant, v.id)
	}
	return s, nil
}

// Snapshot returns a copy of the variant state.
func (v *Variant) Snapshot() (State, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return State{}, err
	}
	return s.state.clone(), nil
}

// Fingerprint returns a stable hash of the variant state.
//
// Two variants with equal states share a fingerprint regardless of their ids.
func (v *Variant) Fingerprint() (string, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return "", err
	}
	return s.state.fingerprint(), nil
}

// BranchClosed reports the status of a branch.
func (v *Variant) BranchClosed(branchID string) (bool, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return false, err
	}
	closed, ok := s.state.BranchClosed[branchID]
	if !ok {
		return false, fmt.Errorf("%w: branch %s", ErrUnknownElement, branchID)
	}
	return closed, nil
}

// SetBranchClosed opens or closes a branch.
func (v *Variant) SetBranchClosed(branchID string, closed bool) error {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return err
	}
	if _, ok := s.state.BranchClosed[branchID]; !ok {
		return fmt.Errorf("%w: branch %s", ErrUnknownElement, branchID)
	}
	s.state.BranchClosed[branchID] = closed
	return nil
}

// PstTap returns the tap of a phase shifter.
func (v *Variant) PstTap(pstID string) (int, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return 0, err
	}
	tap, ok := s.state.PstTaps[pstID]
	if !ok {
		return 0, fmt.Errorf("%w: pst %s", ErrUnknownElement, pstID)
	}
	return tap, nil
}

// SetPstTap moves a phase shifter to a tap of its table.
func (v *Variant) SetPstTap(pstID string, tap int) error {
	pst, ok := v.manager.network.Pst(pstID)
	if !ok {
		return fmt.Errorf("%w: pst %s", ErrUnknownElement, pstID)
	}
	if _, err := pst.Taps.Angle(tap); err != nil {
		return fmt.Errorf("pst %s: %w", pstID, err)
	}
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return err
	}
	s.state.PstTaps[pstID] = tap
	return nil
}

// HvdcSetpoint returns the active power setpoint of an HVDC line.
func (v *Variant) HvdcSetpoint(hvdcID string) (float64, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return 0, err
	}
	p, ok := s.state.HvdcSetpoints[hvdcID]
	if !ok {
		return 0, fmt.Errorf("%w: hvdc %s", ErrUnknownElement, hvdcID)
	}
	return p, nil
}

// SetHvdcSetpoint changes the setpoint of an HVDC line.
//
// A line with MaxP > 0 rejects setpoints beyond +/- MaxP.
func (v *Variant) SetHvdcSetpoint(hvdcID string, setpoint float64) error {
	line, ok := v.manager.network.Hvdc(hvdcID)
	if !ok {
		return fmt.Errorf("%w: hvdc %s", ErrUnknownElement, hvdcID)
	}
	if line.MaxP > 0 && math.Abs(setpoint) > line.MaxP+1e-9 {
		return fmt.Errorf("%w: hvdc %s setpoint %.2f exceeds %.2f", ErrInvalidSetpoint, hvdcID, setpoint, line.MaxP)
	}
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return err
	}
	s.state.HvdcSetpoints[hvdcID] = setpoint
	return nil
}

// InjectionSetpoint returns the setpoint of an injection.
func (v *Variant) InjectionSetpoint(injectionID string) (float64, error) {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return 0, err
	}
	p, ok := s.state.Injections[injectionID]
	if !ok {
		return 0, fmt.Errorf("%w: injection %s", ErrUnknownElement, injectionID)
	}
	return p, nil
}

// SetInjectionSetpoint changes the setpoint of an injection.
func (v *Variant) SetInjectionSetpoint(injectionID string, setpoint float64) error {
	v.manager.mu.Lock()
	defer v.manager.mu.Unlock()
	s, err := v.slot()
	if err != nil {
		return err
	}
	if _, ok := s.state.Injections[injectionID]; !ok {
		return fmt.Errorf("%w: injection %s", ErrUnknownElement, injectionID)
	}
	s.state.Injections[injectionID] = setpoint
	return nil
}
