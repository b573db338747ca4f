// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapify canonicalizes snapshots for corpus generation. A
// canonical ("snapified") snapshot has exactly one end state selected
// for a target platform, the runner's exit sequence injected at the
// end-state instruction address, the full content of every writable
// mapping captured in that end state, and — when direct mmap is in
// effect — every executable mapping's content padded out to whole
// pages with trap instructions. This is the restricted shape the
// relocatable corpus format (lib/snap) accepts.
//
// Canonicalization failures are recoverable: the caller skips or
// regenerates the offending snapshot and continues.
package snapify

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// ErrNoEndState is returned when no end state of the input snapshot
// satisfies the requested platform and undefined end states are not
// allowed.
var ErrNoEndState = errors.New("no end state matches the requested platform")

// Options control canonicalization and downstream corpus packing.
type Options struct {
	// AllowUndefinedEndState permits snapshots whose only matching
	// end state is the explicit undefined marker. Used when making
	// new snapshots that have not been executed yet.
	AllowUndefinedEndState bool

	// Platform selects which end state to keep. PlatformAny accepts
	// the first matching end state regardless of platform tags.
	Platform snapshot.Platform

	// CompressRepeatingBytes enables run-length compression of
	// memory byte data in the built corpus.
	CompressRepeatingBytes bool

	// SupportDirectMmap keeps executable page content uncompressed
	// and page-aligned in the built corpus so the runner can map it
	// in place. Canonicalization pads executable mapping content to
	// whole pages with trap instructions to make that possible. Costs
	// corpus size; the default depends on the architecture.
	SupportDirectMmap bool
}

// RunOptions returns the options for packing snapshots that will be
// replayed: end states must be defined.
func RunOptions(id arch.ID) Options {
	return makeOptions(id, false)
}

// MakeOptions returns the options for packing freshly made snapshots:
// undefined end states are allowed.
func MakeOptions(id arch.ID) Options {
	return makeOptions(id, true)
}

func makeOptions(id arch.ID, allowUndefinedEndState bool) Options {
	return Options{
		AllowUndefinedEndState: allowUndefinedEndState,
		Platform:               snapshot.PlatformAny,
		CompressRepeatingBytes: true,
		SupportDirectMmap:      arch.MustByID(id).SupportDirectMmapDefault,
	}
}

// CanSnapify reports whether the snapshot can be canonicalized with
// the given options. It deliberately runs the full canonicalization
// and discards the output: snapshots are a few pages each, so the
// wasted work is negligible, and a single code path guarantees the
// check can never drift from what Snapify actually accepts.
func CanSnapify(s *snapshot.Snapshot, opts Options) error {
	_, err := Snapify(s, opts)
	return err
}

// Snapify canonicalizes s. The input is not modified.
func Snapify(s *snapshot.Snapshot, opts Options) (snapshot.Snapshot, error) {
	if err := s.Validate(); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("snapify: %w", err)
	}
	descriptor := arch.MustByID(s.Arch)

	endState, err := selectEndState(s, opts)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("snapify %q: %w", s.ID, err)
	}

	out := snapshot.Snapshot{
		ID:        s.ID,
		Arch:      s.Arch,
		Mappings:  append([]snapshot.MemoryMapping(nil), s.Mappings...),
		Registers: s.Registers,
	}

	// Overlay the exit sequence on the initial memory at the
	// end-state instruction address. The sequence must lie within a
	// single executable mapping.
	exitSpan := snapshot.MemoryBytes{
		Start: endState.Endpoint.InstructionAddress,
		Data:  descriptor.ExitSequence,
	}
	mapping := s.MappingContaining(exitSpan.Start, exitSpan.Size())
	if mapping == nil || mapping.Perms&snapshot.PermExec == 0 {
		return snapshot.Snapshot{}, fmt.Errorf(
			"snapify %q: exit sequence at %#x does not fit in an executable mapping",
			s.ID, exitSpan.Start)
	}

	initial := snapshot.NewMemoryView(s.MemoryBytes)
	initial.Overlay([]snapshot.MemoryBytes{exitSpan})
	if opts.SupportDirectMmap {
		padExecutableMappings(initial, out.Mappings, descriptor)
	}
	out.MemoryBytes = initial.Spans()

	captured, err := captureEndState(s, initial, endState)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("snapify %q: %w", s.ID, err)
	}
	out.EndStates = []snapshot.EndState{captured}

	return out, nil
}

// padExecutableMappings extends each executable mapping's content to
// cover the whole mapping, filling gaps with trap instructions.
// Direct-mmap packing (lib/snap) stores executable content as one
// page-aligned literal region per mapping, so the content must cover
// whole pages; mapping bounds are page-aligned already, so covering
// the mapping exactly satisfies that. The trap filler makes a stray
// jump into the padding fault immediately instead of executing
// whatever the page happened to contain.
func padExecutableMappings(initial *snapshot.MemoryView, mappings []snapshot.MemoryMapping, descriptor *arch.Descriptor) {
	for _, mapping := range mappings {
		if mapping.Perms&snapshot.PermExec == 0 {
			continue
		}
		padded := snapshot.NewMemoryView([]snapshot.MemoryBytes{{
			Start: mapping.Start,
			Data:  trapFill(descriptor, mapping.Size),
		}})
		for _, span := range initial.Spans() {
			if mapping.Contains(span.Start, span.Size()) {
				padded.Overlay([]snapshot.MemoryBytes{span})
			}
		}
		initial.Overlay(padded.Spans())
	}
}

// trapFill returns size bytes of repeated trap instructions. size is
// a page multiple, so whole instructions always fit.
func trapFill(descriptor *arch.Descriptor, size uint64) []byte {
	trap := descriptor.TrapInstruction
	data := make([]byte, size)
	for i := range data {
		data[i] = trap[i%len(trap)]
	}
	return data
}

// selectEndState picks the single end state to keep. Defined end
// states matching the platform win over undefined ones.
func selectEndState(s *snapshot.Snapshot, opts Options) (*snapshot.EndState, error) {
	var undefined *snapshot.EndState
	for i := range s.EndStates {
		endState := &s.EndStates[i]
		if !platformMatches(endState, opts.Platform) {
			continue
		}
		if endState.Undefined() {
			if undefined == nil {
				undefined = endState
			}
			continue
		}
		return endState, nil
	}
	if undefined != nil && opts.AllowUndefinedEndState {
		return undefined, nil
	}
	return nil, ErrNoEndState
}

// platformMatches reports whether the end state applies to the
// requested platform. An end state with an empty platform set applies
// everywhere; PlatformAny accepts any end state.
func platformMatches(endState *snapshot.EndState, platform snapshot.Platform) bool {
	if platform == snapshot.PlatformAny || endState.Platforms.Empty() {
		return true
	}
	return endState.Platforms.Has(platform)
}

// captureEndState builds the canonical end state: the selected end
// state's memory deltas applied over the (exit-sequence-adjusted)
// initial memory, with every writable mapping captured in full.
func captureEndState(s *snapshot.Snapshot, initial *snapshot.MemoryView, endState *snapshot.EndState) (snapshot.EndState, error) {
	view := snapshot.NewMemoryView(initial.Spans())
	view.Overlay(endState.MemoryBytes)

	var capturedBytes []snapshot.MemoryBytes
	for _, mapping := range s.Mappings {
		if mapping.Perms&snapshot.PermWrite == 0 {
			continue
		}
		data, ok := view.Read(mapping.Start, mapping.Size)
		if !ok {
			return snapshot.EndState{}, fmt.Errorf(
				"writable mapping [%#x, %#x) has undefined content; cannot capture end state",
				mapping.Start, mapping.Limit())
		}
		capturedBytes = append(capturedBytes, snapshot.MemoryBytes{
			Start: mapping.Start,
			Data:  data,
		})
	}

	return snapshot.EndState{
		Endpoint:    endState.Endpoint,
		Registers:   endState.Registers,
		MemoryBytes: snapshot.NormalizeMemoryBytes(capturedBytes),
		Platforms:   endState.Platforms,
	}, nil
}
