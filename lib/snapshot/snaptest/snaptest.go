// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snaptest builds small, well-formed snapshots for tests.
// The fixtures mirror the shapes the toolkit must handle: an
// executable code page with non-repeating content, a writable data
// page of mostly repeating bytes, a defined or undefined end state.
package snaptest

import (
	"fmt"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// Fixture addresses. Arbitrary page-aligned addresses well away from
// anything a test process maps.
const (
	CodeStart snapshot.Address = 0x3000_0000
	DataStart snapshot.Address = 0x7000_0000
)

// Registers returns a register state of the correct sizes for the
// architecture, filled with a deterministic pattern derived from
// seed. Different seeds produce different states.
func Registers(descriptor *arch.Descriptor, seed byte) snapshot.RegisterState {
	fill := func(size int) []byte {
		block := make([]byte, size)
		for i := range block {
			block[i] = byte(i)*3 + seed
		}
		return block
	}
	return snapshot.RegisterState{
		GRegs:  fill(descriptor.GRegsSize),
		FPRegs: fill(descriptor.FPRegsSize),
	}
}

// NonRepeatingBytes returns size bytes with no run of identical
// bytes, so run-length compression never applies to any part of it.
func NonRepeatingBytes(size uint64, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)*7 + seed + 1
	}
	// Guarantee adjacent bytes differ even across wraparound.
	for i := 1; i < len(data); i++ {
		if data[i] == data[i-1] {
			data[i]++
		}
	}
	return data
}

// EndsAsExpected returns a snapshot with one executable page of
// non-repeating code, one writable page of zeros, a defined end
// state at an endpoint inside the code page, and deterministic
// register states. The returned snapshot passes Validate.
func EndsAsExpected(id arch.ID) snapshot.Snapshot {
	descriptor := arch.MustByID(id)
	pageSize := descriptor.PageSize

	s := snapshot.Snapshot{
		ID:        fmt.Sprintf("ends-as-expected-%s", id),
		Arch:      id,
		Registers: Registers(descriptor, 0x10),
	}

	s.AddMemoryMapping(snapshot.MemoryMapping{
		Start: CodeStart,
		Size:  pageSize,
		Perms: snapshot.PermRead | snapshot.PermExec,
	})
	s.AddMemoryMapping(snapshot.MemoryMapping{
		Start: DataStart,
		Size:  pageSize,
		Perms: snapshot.PermRead | snapshot.PermWrite,
	})

	s.AddMemoryBytes(snapshot.MemoryBytes{
		Start: CodeStart,
		Data:  NonRepeatingBytes(pageSize, 0x20),
	})
	s.AddMemoryBytes(snapshot.MemoryBytes{
		Start: DataStart,
		Data:  make([]byte, pageSize), // Zero-filled data page.
	})

	endRegisters := Registers(descriptor, 0x30)
	s.EndStates = []snapshot.EndState{{
		Endpoint: snapshot.Endpoint{
			InstructionAddress: CodeStart + 0x40,
		},
		Registers: &endRegisters,
		MemoryBytes: []snapshot.MemoryBytes{{
			Start: DataStart + 8,
			Data:  []byte{0xde, 0xad, 0xbe, 0xef},
		}},
	}}

	return s
}

// PartialCode returns a snapshot like EndsAsExpected whose code
// content covers only the first 0x80 bytes of the executable page,
// leaving the rest of the mapping without recorded bytes. Exercises
// the executable-content padding path of canonicalization.
func PartialCode(id arch.ID) snapshot.Snapshot {
	s := EndsAsExpected(id)
	s.ID = fmt.Sprintf("partial-code-%s", id)
	for i := range s.MemoryBytes {
		if s.MemoryBytes[i].Start == CodeStart {
			s.MemoryBytes[i].Data = s.MemoryBytes[i].Data[:0x80]
		}
	}
	return s
}

// UndefinedEndState returns a snapshot whose only end state is the
// explicit undefined marker: an endpoint with no recorded registers
// or memory. Models a freshly made snapshot that has not been
// executed yet.
func UndefinedEndState(id arch.ID) snapshot.Snapshot {
	s := EndsAsExpected(id)
	s.ID = fmt.Sprintf("undefined-end-state-%s", id)
	s.EndStates = []snapshot.EndState{{
		Endpoint: snapshot.Endpoint{
			InstructionAddress: CodeStart + 0x40,
		},
	}}
	return s
}
