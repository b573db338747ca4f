// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot defines the mutable, general-purpose representation
// of a CPU execution test case: an initial CPU and memory state plus
// one or more expected end states. Snapshots in this form are produced
// by makers and fuzzers, exchanged in CBOR archives, and canonicalized
// by lib/snapify before the corpus builder (lib/snap) packs them into
// the relocatable binary format.
package snapshot

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
)

// Address is a virtual address inside a snapshot's address space.
type Address = uint64

// Perms is a memory mapping permission bit set.
type Perms uint32

const (
	// PermRead marks a readable mapping.
	PermRead Perms = 1 << iota
	// PermWrite marks a writable mapping.
	PermWrite
	// PermExec marks an executable mapping.
	PermExec
)

// String returns the rwx-style representation, e.g. "r-x".
func (p Perms) String() string {
	chars := []byte{'-', '-', '-'}
	if p&PermRead != 0 {
		chars[0] = 'r'
	}
	if p&PermWrite != 0 {
		chars[1] = 'w'
	}
	if p&PermExec != 0 {
		chars[2] = 'x'
	}
	return string(chars)
}

// MemoryMapping describes one page-aligned region of the snapshot's
// address space and its permissions.
type MemoryMapping struct {
	// Start is the first address of the mapping.
	Start Address `cbor:"start"`

	// Size is the mapping length in bytes, a multiple of the page
	// size.
	Size uint64 `cbor:"size"`

	// Perms are the access permissions of the mapping.
	Perms Perms `cbor:"perms"`
}

// Limit returns the first address past the end of the mapping.
func (m MemoryMapping) Limit() Address {
	return m.Start + m.Size
}

// Contains reports whether the byte range [start, start+size) lies
// entirely within the mapping.
func (m MemoryMapping) Contains(start Address, size uint64) bool {
	return start >= m.Start && size <= m.Size && start-m.Start <= m.Size-size
}

// MemoryBytes is a span of concrete byte values at an address. Spans
// carry literal bytes in this representation; run-length
// classification happens later, inside the corpus builder.
type MemoryBytes struct {
	// Start is the address of the first byte.
	Start Address `cbor:"start"`

	// Data holds the byte values.
	Data []byte `cbor:"data"`
}

// Size returns the span length in bytes.
func (b MemoryBytes) Size() uint64 {
	return uint64(len(b.Data))
}

// Limit returns the first address past the end of the span.
func (b MemoryBytes) Limit() Address {
	return b.Start + b.Size()
}

// RegisterState holds the general and floating-point register blocks
// as opaque fixed-size byte blobs. Their layout is
// architecture-specific and owned by the replay runner; this toolkit
// only requires the sizes to match the architecture descriptor.
type RegisterState struct {
	// GRegs is the general-register block.
	GRegs []byte `cbor:"gregs"`

	// FPRegs is the floating-point-register block.
	FPRegs []byte `cbor:"fpregs"`
}

// Equal reports whether two register states hold identical bytes.
func (r *RegisterState) Equal(other *RegisterState) bool {
	if r == nil || other == nil {
		return r == other
	}
	return bytes.Equal(r.GRegs, other.GRegs) && bytes.Equal(r.FPRegs, other.FPRegs)
}

// Endpoint is where execution of a snapshot is expected to stop: the
// address of the first instruction NOT executed. Canonicalization
// injects the exit sequence at this address.
type Endpoint struct {
	// InstructionAddress is the stopping instruction address.
	InstructionAddress Address `cbor:"instruction_address"`
}

// EndState is one expected outcome of executing a snapshot: the
// endpoint, the register state there, and the memory bytes expected
// to differ from (or confirm) the initial state. An end state with
// nil Registers is the explicit "undefined end state" marker used for
// snapshots whose outcome has not been recorded yet.
type EndState struct {
	// Endpoint is where execution stops.
	Endpoint Endpoint `cbor:"endpoint"`

	// Registers is the expected register state at the endpoint, or
	// nil for an undefined end state.
	Registers *RegisterState `cbor:"registers,omitempty"`

	// MemoryBytes are the expected memory contents at the endpoint.
	MemoryBytes []MemoryBytes `cbor:"memory_bytes,omitempty"`

	// Platforms is the set of platforms this end state was observed
	// on. An empty set means the end state applies to any platform.
	Platforms PlatformSet `cbor:"platforms"`
}

// Undefined reports whether this is the explicit undefined-end-state
// marker.
func (e *EndState) Undefined() bool {
	return e.Registers == nil
}

// Snapshot is a complete CPU execution test case.
type Snapshot struct {
	// ID is the stable identifier of the snapshot, unique within a
	// corpus.
	ID string `cbor:"id"`

	// Arch is the snapshot's CPU architecture.
	Arch arch.ID `cbor:"arch"`

	// Mappings is the ordered set of non-overlapping page-aligned
	// memory mappings, sorted by start address.
	Mappings []MemoryMapping `cbor:"mappings"`

	// MemoryBytes are the initial memory contents. Every span lies
	// fully within exactly one mapping and no two spans overlap.
	MemoryBytes []MemoryBytes `cbor:"memory_bytes"`

	// Registers is the initial register state.
	Registers RegisterState `cbor:"registers"`

	// EndStates are the expected outcomes. A canonical ("snapified")
	// snapshot has exactly one.
	EndStates []EndState `cbor:"end_states"`
}

// Validate checks the structural invariants of the snapshot: a known
// architecture, sorted non-overlapping page-aligned mappings, spans
// contained in exactly one mapping with no byte claimed twice, and
// register blocks sized per the architecture descriptor.
func (s *Snapshot) Validate() error {
	descriptor, err := arch.ByID(s.Arch)
	if err != nil {
		return fmt.Errorf("snapshot %q: %w", s.ID, err)
	}

	pageSize := descriptor.PageSize
	for i, mapping := range s.Mappings {
		if mapping.Size == 0 {
			return fmt.Errorf("snapshot %q: mapping %d is empty", s.ID, i)
		}
		if mapping.Start%pageSize != 0 || mapping.Size%pageSize != 0 {
			return fmt.Errorf("snapshot %q: mapping %d [%#x, %#x) is not page-aligned",
				s.ID, i, mapping.Start, mapping.Limit())
		}
		if i > 0 && mapping.Start < s.Mappings[i-1].Limit() {
			return fmt.Errorf("snapshot %q: mapping %d overlaps or is out of order", s.ID, i)
		}
	}

	if err := s.validateMemoryBytes(s.MemoryBytes); err != nil {
		return fmt.Errorf("snapshot %q: %w", s.ID, err)
	}

	if err := validateRegisterSizes(&s.Registers, descriptor); err != nil {
		return fmt.Errorf("snapshot %q: initial registers: %w", s.ID, err)
	}

	for i := range s.EndStates {
		endState := &s.EndStates[i]
		if !endState.Undefined() {
			if err := validateRegisterSizes(endState.Registers, descriptor); err != nil {
				return fmt.Errorf("snapshot %q: end state %d registers: %w", s.ID, i, err)
			}
		}
		if err := s.validateMemoryBytes(endState.MemoryBytes); err != nil {
			return fmt.Errorf("snapshot %q: end state %d: %w", s.ID, i, err)
		}
	}

	return nil
}

// validateMemoryBytes checks that spans are sorted, non-overlapping,
// non-empty, and each contained in exactly one mapping.
func (s *Snapshot) validateMemoryBytes(spans []MemoryBytes) error {
	for i, span := range spans {
		if len(span.Data) == 0 {
			return fmt.Errorf("memory bytes %d at %#x is empty", i, span.Start)
		}
		if i > 0 && span.Start < spans[i-1].Limit() {
			return fmt.Errorf("memory bytes %d at %#x overlaps or is out of order", i, span.Start)
		}
		if s.MappingContaining(span.Start, span.Size()) == nil {
			return fmt.Errorf("memory bytes %d [%#x, %#x) is not contained in any mapping",
				i, span.Start, span.Limit())
		}
	}
	return nil
}

func validateRegisterSizes(registers *RegisterState, descriptor *arch.Descriptor) error {
	if len(registers.GRegs) != descriptor.GRegsSize {
		return fmt.Errorf("general register block is %d bytes, want %d",
			len(registers.GRegs), descriptor.GRegsSize)
	}
	if len(registers.FPRegs) != descriptor.FPRegsSize {
		return fmt.Errorf("floating-point register block is %d bytes, want %d",
			len(registers.FPRegs), descriptor.FPRegsSize)
	}
	return nil
}

// MappingContaining returns the mapping fully containing the byte
// range [start, start+size), or nil when no single mapping does.
func (s *Snapshot) MappingContaining(start Address, size uint64) *MemoryMapping {
	for i := range s.Mappings {
		if s.Mappings[i].Contains(start, size) {
			return &s.Mappings[i]
		}
	}
	return nil
}

// AddMemoryMapping inserts a mapping, keeping Mappings sorted by
// start address.
func (s *Snapshot) AddMemoryMapping(mapping MemoryMapping) {
	s.Mappings = append(s.Mappings, mapping)
	sort.Slice(s.Mappings, func(i, j int) bool {
		return s.Mappings[i].Start < s.Mappings[j].Start
	})
}

// AddMemoryBytes inserts an initial-memory span, keeping MemoryBytes
// sorted by start address.
func (s *Snapshot) AddMemoryBytes(span MemoryBytes) {
	s.MemoryBytes = append(s.MemoryBytes, span)
	sort.Slice(s.MemoryBytes, func(i, j int) bool {
		return s.MemoryBytes[i].Start < s.MemoryBytes[j].Start
	})
}

// Equal reports whether two snapshots are semantically equal:
// identical id, architecture, mappings, register states, end states,
// and memory contents. Memory spans are compared after normalization
// (sorting and merging of adjacent spans), so two snapshots that
// describe the same bytes with different span boundaries compare
// equal.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s.ID != other.ID || s.Arch != other.Arch {
		return false
	}
	if len(s.Mappings) != len(other.Mappings) {
		return false
	}
	for i := range s.Mappings {
		if s.Mappings[i] != other.Mappings[i] {
			return false
		}
	}
	if !s.Registers.Equal(&other.Registers) {
		return false
	}
	if !memoryBytesEqual(s.MemoryBytes, other.MemoryBytes) {
		return false
	}
	if len(s.EndStates) != len(other.EndStates) {
		return false
	}
	for i := range s.EndStates {
		a, b := &s.EndStates[i], &other.EndStates[i]
		if a.Endpoint != b.Endpoint || a.Platforms != b.Platforms {
			return false
		}
		if !a.Registers.Equal(b.Registers) {
			return false
		}
		if !memoryBytesEqual(a.MemoryBytes, b.MemoryBytes) {
			return false
		}
	}
	return true
}

func memoryBytesEqual(a, b []MemoryBytes) bool {
	na, nb := NormalizeMemoryBytes(a), NormalizeMemoryBytes(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i].Start != nb[i].Start || !bytes.Equal(na[i].Data, nb[i].Data) {
			return false
		}
	}
	return true
}
