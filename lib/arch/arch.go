// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package arch describes the closed set of CPU architectures that
// snapshot corpora can target. A Descriptor carries everything the
// corpus builder and relocator need to stay architecture-generic:
// page size, register block sizes, the exit sequence injected during
// canonicalization, and the default for direct-mmap support.
//
// Register blocks are treated as opaque fixed-size byte blobs
// throughout the toolkit. Their internal layout is the business of
// the runner that replays the corpus, not of this package.
package arch

import (
	"fmt"
	"runtime"
)

// ID identifies a CPU architecture. The value is stored in corpus
// headers, so existing values must never change.
type ID uint32

const (
	// Unknown is the zero value. It never appears in a valid corpus.
	Unknown ID = 0

	// X86_64 is 64-bit x86.
	X86_64 ID = 1

	// AArch64 is 64-bit ARM.
	AArch64 ID = 2
)

// String returns the canonical lower-case name of the architecture.
func (id ID) String() string {
	switch id {
	case X86_64:
		return "x86_64"
	case AArch64:
		return "aarch64"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(id))
	}
}

// ParseID parses an architecture name as produced by ID.String.
func ParseID(name string) (ID, error) {
	switch name {
	case "x86_64":
		return X86_64, nil
	case "aarch64":
		return AArch64, nil
	default:
		return Unknown, fmt.Errorf("unknown architecture: %q", name)
	}
}

// Descriptor carries the per-architecture parameters of the corpus
// toolkit. The builder and relocator are a single algorithm
// parameterized by a Descriptor; there is no per-architecture code.
type Descriptor struct {
	// ID is the architecture identifier stored in corpus headers.
	ID ID

	// PageSize is the memory page size in bytes. All snapshot
	// mappings are aligned to it, and direct-mmap pool regions are
	// placed and sized in multiples of it.
	PageSize uint64

	// GRegsSize is the size in bytes of the general-register block.
	GRegsSize int

	// FPRegsSize is the size in bytes of the floating-point-register
	// block.
	FPRegsSize int

	// ExitSequence is the control-transfer sequence injected at the
	// end-state instruction address during canonicalization. It
	// redirects execution to the runner's exit trampoline, which
	// lives at a fixed address known to both sides.
	ExitSequence []byte

	// TrapInstruction is the smallest instruction that stops execution
	// with a fault the runner attributes to the snapshot. Executable
	// mapping bytes not covered by snapshot content are padded with it
	// during canonicalization, so a run that strays off the recorded
	// code traps instead of executing leftover page contents.
	TrapInstruction []byte

	// SupportDirectMmapDefault is the default value of the
	// direct-mmap canonicalization option. Direct mmap of executable
	// pages works around a replay performance bottleneck on AArch64
	// at the cost of a larger corpus; on x86_64 it is off by default.
	SupportDirectMmapDefault bool
}

// exitTrampolineAddress is the fixed virtual address of the runner's
// exit trampoline. The exit sequences below transfer control to it
// via an absolute, position-independent encoding.
const exitTrampolineAddress uint64 = 0x0000_ABCD_E000_0000

var x86_64 = Descriptor{
	ID:         X86_64,
	PageSize:   4096,
	GRegsSize:  216, // 27 64-bit slots: GPRs, rip, rflags, segment bases.
	FPRegsSize: 512, // FXSAVE area.
	// jmp qword [rip+0] followed by the 8-byte trampoline address.
	ExitSequence: []byte{
		0xff, 0x25, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0xe0, 0xcd, 0xab, 0x00, 0x00,
	},
	TrapInstruction:          []byte{0xcc}, // int3
	SupportDirectMmapDefault: false,
}

var aarch64 = Descriptor{
	ID:         AArch64,
	PageSize:   4096,
	GRegsSize:  280, // x0-x30, sp, pc, pstate, tpidr, tpidrro.
	FPRegsSize: 528, // v0-v31 plus fpsr and fpcr.
	// ldr x16, #8 / br x16 followed by the 8-byte trampoline address.
	ExitSequence: []byte{
		0x50, 0x00, 0x00, 0x58,
		0x00, 0x02, 0x1f, 0xd6,
		0x00, 0x00, 0x00, 0xe0, 0xcd, 0xab, 0x00, 0x00,
	},
	TrapInstruction:          []byte{0x00, 0x00, 0x20, 0xd4}, // brk #0
	SupportDirectMmapDefault: true,
}

// ByID returns the Descriptor for the given architecture ID.
func ByID(id ID) (*Descriptor, error) {
	switch id {
	case X86_64:
		return &x86_64, nil
	case AArch64:
		return &aarch64, nil
	default:
		return nil, fmt.Errorf("no descriptor for architecture %s", id)
	}
}

// MustByID is ByID for architecture IDs known to be valid. It panics
// on an unknown ID — use it only with the package's own constants.
func MustByID(id ID) *Descriptor {
	descriptor, err := ByID(id)
	if err != nil {
		panic("arch: " + err.Error())
	}
	return descriptor
}

// Host returns the Descriptor matching the running process, or an
// error when the host architecture is not in the supported set.
func Host() (*Descriptor, error) {
	switch runtime.GOARCH {
	case "amd64":
		return &x86_64, nil
	case "arm64":
		return &aarch64, nil
	default:
		return nil, fmt.Errorf("unsupported host architecture: %s", runtime.GOARCH)
	}
}
