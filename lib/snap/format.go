// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snap implements the relocatable corpus format: a single
// contiguous, position-independent binary blob holding a list of
// canonical snapshots, built once offline and memory-mapped at load
// time with no parsing pass.
//
// Every cross-object reference inside the blob is an unsigned byte
// offset from the blob base, never an address — the blob can be
// written once and mapped at a different address on every load. The
// builder (builder.go) assigns offsets; the relocator (relocator.go)
// turns a mapped blob into dereferenceable read-only views in a
// single linear pass, borrowing byte content directly from the
// mapping.
//
// The format is deliberately not portable: integers use the native
// little-endian representation of both supported architectures, and
// there is no schema versioning beyond the magic. It is optimized
// for load latency and executable-page residency, not evolution.
package snap

import "encoding/binary"

// blobMagic identifies a raw relocatable corpus blob. The trailing
// digit is bumped on any layout change.
var blobMagic = [8]byte{'S', 'n', 'a', 'p', 'C', 'r', 'p', '1'}

// wireOrder is the byte order of all integer fields in the blob.
// Both supported architectures are little-endian, so native and wire
// order coincide.
var wireOrder = binary.LittleEndian

// Fixed wire sizes. The descriptor layouts below are the format
// contract between builder and relocator; changing any of them breaks
// existing corpora.
const (
	headerSize     = 64
	snapRecordSize = 88
	mappingRecSize = 40
	memoryRecSize  = 32
	poolAlign      = 8 // Default alignment of pool byte data.
)

// Header field offsets (from blob base).
const (
	headerMagicOff      = 0  // [8]byte magic
	headerArchOff       = 8  // uint32 architecture id
	headerSizeOff       = 12 // uint32 header size, for sanity checking
	headerCorpusSizeOff = 16 // uint64 total blob length
	headerNumSnapsOff   = 24 // uint64 record count
	headerSnapTableOff  = 32 // uint64 offset of the snap record table
	// Bytes 40..64 are reserved and zero.
)

// Snap record field offsets (from record start). A record names, via
// blob-relative offsets, its identifier string, its register blocks,
// its mapping array, and its end state.
const (
	snapIDOff          = 0  // uint64 id string offset
	snapIDSizeOff      = 8  // uint64 id string length
	snapNumMappingsOff = 16 // uint64 mapping count
	snapMappingsOff    = 24 // uint64 mapping array offset
	snapGRegsOff       = 32 // uint64 initial general-register block offset
	snapFPRegsOff      = 40 // uint64 initial floating-point block offset
	snapEndInsnAddrOff = 48 // uint64 end-state instruction address
	snapEndGRegsOff    = 56 // uint64 end-state general-register offset, 0 if undefined
	snapEndFPRegsOff   = 64 // uint64 end-state floating-point offset, 0 if undefined
	snapNumEndBytesOff = 72 // uint64 end-state memory-bytes count
	snapEndBytesOff    = 80 // uint64 end-state memory-bytes array offset
)

// Mapping record field offsets.
const (
	mappingStartOff    = 0  // uint64 start address
	mappingSizeOff     = 8  // uint64 mapping length
	mappingPermsOff    = 16 // uint32 permission bits
	mappingPadOff      = 20 // uint32 reserved, zero
	mappingNumBytesOff = 24 // uint64 memory-bytes count
	mappingBytesOff    = 32 // uint64 memory-bytes array offset
)

// Memory-bytes record field offsets and flags. The record states
// explicitly whether it is a constant fill or literal data — readers
// never infer the kind by scanning content.
const (
	memoryStartOff    = 0  // uint64 start address
	memorySizeOff     = 8  // uint64 span length in target memory
	memoryFlagsOff    = 16 // uint32 flag bits
	memoryFillByteOff = 20 // uint8 fill byte for repeating spans
	memoryDataOff     = 24 // uint64 pool data offset, 0 for repeating spans

	memoryFlagRepeating  = 1 << 0 // Span is a constant fill.
	memoryFlagDirectMmap = 1 << 1 // Literal content is page-aligned for in-place mmap.
)
