// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// Corpus is the relocated, read-only view of a corpus blob. Byte
// content (register blocks, literal memory data) is borrowed directly
// from the blob; only the small offset-typed fields were materialized
// into these view structures during relocation.
//
// A Corpus is created once, at load, and is never mutated or freed
// afterwards: the replay process loads one corpus, executes it, and
// exits, so corpus memory is reclaimed by address-space teardown
// rather than any release API. This is intentional — a long-lived
// host would need explicit corpus lifetime management that this
// toolkit deliberately does not provide.
type Corpus struct {
	arch  arch.ID
	snaps []Snap
	blob  []byte
}

// NewEmptyCorpus returns a corpus with no records, as produced by
// loading with no corpus path.
func NewEmptyCorpus(id arch.ID) *Corpus {
	return &Corpus{arch: id}
}

// Arch returns the corpus architecture.
func (c *Corpus) Arch() arch.ID {
	return c.arch
}

// NumSnaps returns the record count.
func (c *Corpus) NumSnaps() int {
	return len(c.snaps)
}

// Snaps returns the records in corpus order. The returned slice and
// everything reachable from it is read-only.
func (c *Corpus) Snaps() []Snap {
	return c.snaps
}

// Snap is one relocated record.
type Snap struct {
	// ID is the originating snapshot's identifier.
	ID string

	// Mappings are the snapshot's memory mappings with their initial
	// content, in address order.
	Mappings []MemoryMapping

	// GRegs and FPRegs are the initial register blocks, borrowed
	// from the blob.
	GRegs  []byte
	FPRegs []byte

	// EndInstructionAddress is where execution is expected to stop.
	EndInstructionAddress snapshot.Address

	// EndGRegs and EndFPRegs are the expected register blocks at the
	// endpoint, or nil for an undefined end state.
	EndGRegs  []byte
	EndFPRegs []byte

	// EndMemoryBytes is the expected memory content at the endpoint.
	EndMemoryBytes []MemoryBytes
}

// EndStateUndefined reports whether the record carries the explicit
// undefined-end-state marker.
func (s *Snap) EndStateUndefined() bool {
	return s.EndGRegs == nil
}

// MemoryMapping is one relocated mapping with its classified initial
// content spans.
type MemoryMapping struct {
	// Start and Size delimit the mapping; Size is a page multiple.
	Start snapshot.Address
	Size  uint64

	// Perms are the mapping permissions.
	Perms snapshot.Perms

	// MemoryBytes is the mapping's initial content, classified into
	// literal and constant-fill spans.
	MemoryBytes []MemoryBytes
}

// Limit returns the first address past the end of the mapping.
func (m *MemoryMapping) Limit() snapshot.Address {
	return m.Start + m.Size
}

// MemoryBytes is one relocated content span: either a constant fill
// (no backing data) or literal bytes borrowed from the blob.
type MemoryBytes struct {
	start      snapshot.Address
	size       uint64
	repeating  bool
	fillByte   byte
	directMmap bool
	data       []byte
}

// Start returns the span's first target address.
func (b *MemoryBytes) Start() snapshot.Address {
	return b.start
}

// Size returns the span length in bytes.
func (b *MemoryBytes) Size() uint64 {
	return b.size
}

// Repeating reports whether the span is a constant fill.
func (b *MemoryBytes) Repeating() bool {
	return b.repeating
}

// FillByte returns the fill value of a repeating span.
func (b *MemoryBytes) FillByte() byte {
	return b.fillByte
}

// DirectMmap reports whether the span's literal data sits in a
// page-aligned blob region suitable for mapping in place.
func (b *MemoryBytes) DirectMmap() bool {
	return b.directMmap
}

// Data returns the literal content, borrowed from the blob. Nil for
// repeating spans. Callers must not modify it.
func (b *MemoryBytes) Data() []byte {
	return b.data
}

// Bytes materializes the span's content: the literal data for
// literal spans, or size copies of the fill byte for repeating
// spans. Repeating spans allocate; literal spans do not.
func (b *MemoryBytes) Bytes() []byte {
	if !b.repeating {
		return b.data
	}
	data := make([]byte, b.size)
	for i := range data {
		data[i] = b.fillByte
	}
	return data
}
