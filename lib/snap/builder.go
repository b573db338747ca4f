// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"fmt"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// BuildOptions control corpus packing. They mirror the packing half
// of the canonicalization options (lib/snapify); cmd/snap-gen derives
// one from the other.
type BuildOptions struct {
	// CompressRepeatingBytes classifies constant-byte runs as fills,
	// which carry no pool data.
	CompressRepeatingBytes bool

	// SupportDirectMmap keeps executable-mapping content literal and
	// page-aligned in its own pool region, so the loaded blob's pages
	// can be mapped for execution in place. Makes the corpus larger.
	SupportDirectMmap bool
}

// Build packs canonical snapshots into a relocatable corpus blob.
// The output is a pure function of (architecture, snapshot order,
// options): repeated builds produce byte-identical blobs.
//
// Build has no validation step of its own. The inputs must be
// canonical snapshots (lib/snapify output) of the given architecture;
// anything else is a bug in the calling pipeline and panics rather
// than returning an error.
func Build(id arch.ID, snapshots []snapshot.Snapshot, opts BuildOptions) []byte {
	descriptor := arch.MustByID(id)

	l := &layout{}
	l.reserve(headerSize, 1)
	pool := newBytePool(l, descriptor.PageSize)

	// Pool content first: later descriptor tables reference pool
	// regions by offset, so every region must be placed before any
	// table is laid out.
	planned := make([]plannedSnap, len(snapshots))
	for i := range snapshots {
		planned[i] = planSnap(&snapshots[i], descriptor, opts, pool)
	}

	// Descriptor tables, leaves first: memory-bytes arrays, then the
	// mapping arrays that reference them, then end-state arrays, and
	// finally the record table the header points at.
	for i := range planned {
		plan := &planned[i]
		for j := range plan.mappings {
			mapping := &plan.mappings[j]
			mapping.arrayOffset = l.reserve(uint64(len(mapping.pieces))*memoryRecSize, poolAlign)
		}
		plan.mappingsOffset = l.reserve(uint64(len(plan.mappings))*mappingRecSize, poolAlign)
		plan.endBytesOffset = l.reserve(uint64(len(plan.endPieces))*memoryRecSize, poolAlign)
	}
	snapTableOffset := l.reserve(uint64(len(planned))*snapRecordSize, poolAlign)

	blob := make([]byte, l.total())
	copy(blob[headerMagicOff:], blobMagic[:])
	wireOrder.PutUint32(blob[headerArchOff:], uint32(id))
	wireOrder.PutUint32(blob[headerSizeOff:], headerSize)
	wireOrder.PutUint64(blob[headerCorpusSizeOff:], l.total())
	wireOrder.PutUint64(blob[headerNumSnapsOff:], uint64(len(planned)))
	wireOrder.PutUint64(blob[headerSnapTableOff:], snapTableOffset)

	pool.emit(blob)
	for i := range planned {
		emitSnap(blob, snapTableOffset+uint64(i)*snapRecordSize, &planned[i])
	}
	return blob
}

// plannedSnap carries one record's assigned offsets between the
// planning and emit phases.
type plannedSnap struct {
	id              string
	idOffset        uint64
	gRegsOffset     uint64
	fpRegsOffset    uint64
	endInsnAddr     uint64
	endGRegsOffset  uint64 // 0 for an undefined end state.
	endFPRegsOffset uint64
	mappings        []plannedMapping
	mappingsOffset  uint64
	endPieces       []spanPiece
	endBytesOffset  uint64
}

type plannedMapping struct {
	mapping     snapshot.MemoryMapping
	pieces      []spanPiece
	arrayOffset uint64
}

// planSnap classifies and interns one snapshot's byte content. All
// panics here are caller contract violations: the input was not a
// valid canonical snapshot for this corpus.
func planSnap(s *snapshot.Snapshot, descriptor *arch.Descriptor, opts BuildOptions, pool *bytePool) plannedSnap {
	if s.Arch != descriptor.ID {
		panic(fmt.Sprintf("snap: snapshot %q is %s, corpus is %s", s.ID, s.Arch, descriptor.ID))
	}
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("snap: non-canonical input: %v", err))
	}
	if len(s.EndStates) != 1 {
		panic(fmt.Sprintf("snap: snapshot %q has %d end states, canonical form has exactly 1",
			s.ID, len(s.EndStates)))
	}

	plan := plannedSnap{
		id:       s.ID,
		idOffset: pool.internString(s.ID),
	}
	plan.gRegsOffset = pool.intern(s.Registers.GRegs, false)
	plan.fpRegsOffset = pool.intern(s.Registers.FPRegs, false)

	endState := &s.EndStates[0]
	plan.endInsnAddr = endState.Endpoint.InstructionAddress
	if !endState.Undefined() {
		plan.endGRegsOffset = pool.intern(endState.Registers.GRegs, false)
		plan.endFPRegsOffset = pool.intern(endState.Registers.FPRegs, false)
	}

	plan.mappings = make([]plannedMapping, len(s.Mappings))
	for i, mapping := range s.Mappings {
		plan.mappings[i] = plannedMapping{
			mapping: mapping,
			pieces:  planMappingContent(s, mapping, descriptor, opts, pool),
		}
	}

	for _, span := range endState.MemoryBytes {
		pieces := splitRuns(span.Start, span.Data, opts.CompressRepeatingBytes)
		internLiterals(pieces, pool)
		plan.endPieces = append(plan.endPieces, pieces...)
	}

	return plan
}

// planMappingContent classifies the initial memory spans that fall
// inside one mapping. With direct mmap in effect, executable-mapping
// content is kept as uncompressed literal spans in page-aligned pool
// regions; everything else goes through run classification and
// ordinary dedup.
func planMappingContent(s *snapshot.Snapshot, mapping snapshot.MemoryMapping, descriptor *arch.Descriptor, opts BuildOptions, pool *bytePool) []spanPiece {
	directMmap := opts.SupportDirectMmap && mapping.Perms&snapshot.PermExec != 0

	var pieces []spanPiece
	for _, span := range s.MemoryBytes {
		if !mapping.Contains(span.Start, span.Size()) {
			continue
		}
		if directMmap {
			if span.Start%descriptor.PageSize != 0 || span.Size()%descriptor.PageSize != 0 {
				panic(fmt.Sprintf(
					"snap: snapshot %q: direct-mmap content [%#x, %#x) is not page-aligned",
					s.ID, span.Start, span.Limit()))
			}
			piece := spanPiece{
				start:      span.Start,
				size:       span.Size(),
				directMmap: true,
				data:       span.Data,
			}
			piece.dataOffset = pool.intern(span.Data, true)
			pieces = append(pieces, piece)
			continue
		}
		split := splitRuns(span.Start, span.Data, opts.CompressRepeatingBytes)
		internLiterals(split, pool)
		pieces = append(pieces, split...)
	}
	return pieces
}

// internLiterals assigns pool offsets to the literal pieces of a
// split span. Fills carry no pool data.
func internLiterals(pieces []spanPiece, pool *bytePool) {
	for i := range pieces {
		if !pieces[i].repeating {
			pieces[i].dataOffset = pool.intern(pieces[i].data, false)
		}
	}
}

// emitSnap writes one record and its descriptor arrays.
func emitSnap(blob []byte, recordOffset uint64, plan *plannedSnap) {
	record := blob[recordOffset:]
	wireOrder.PutUint64(record[snapIDOff:], plan.idOffset)
	wireOrder.PutUint64(record[snapIDSizeOff:], uint64(len(plan.id)))
	wireOrder.PutUint64(record[snapNumMappingsOff:], uint64(len(plan.mappings)))
	wireOrder.PutUint64(record[snapMappingsOff:], plan.mappingsOffset)
	wireOrder.PutUint64(record[snapGRegsOff:], plan.gRegsOffset)
	wireOrder.PutUint64(record[snapFPRegsOff:], plan.fpRegsOffset)
	wireOrder.PutUint64(record[snapEndInsnAddrOff:], plan.endInsnAddr)
	wireOrder.PutUint64(record[snapEndGRegsOff:], plan.endGRegsOffset)
	wireOrder.PutUint64(record[snapEndFPRegsOff:], plan.endFPRegsOffset)
	wireOrder.PutUint64(record[snapNumEndBytesOff:], uint64(len(plan.endPieces)))
	wireOrder.PutUint64(record[snapEndBytesOff:], plan.endBytesOffset)

	for i := range plan.mappings {
		mapping := &plan.mappings[i]
		emitMemoryBytesArray(blob, mapping.arrayOffset, mapping.pieces)

		mappingRecord := blob[plan.mappingsOffset+uint64(i)*mappingRecSize:]
		wireOrder.PutUint64(mappingRecord[mappingStartOff:], mapping.mapping.Start)
		wireOrder.PutUint64(mappingRecord[mappingSizeOff:], mapping.mapping.Size)
		wireOrder.PutUint32(mappingRecord[mappingPermsOff:], uint32(mapping.mapping.Perms))
		wireOrder.PutUint64(mappingRecord[mappingNumBytesOff:], uint64(len(mapping.pieces)))
		wireOrder.PutUint64(mappingRecord[mappingBytesOff:], mapping.arrayOffset)
	}

	emitMemoryBytesArray(blob, plan.endBytesOffset, plan.endPieces)
}

// emitMemoryBytesArray writes an array of memory-bytes descriptors.
func emitMemoryBytesArray(blob []byte, arrayOffset uint64, pieces []spanPiece) {
	for i, piece := range pieces {
		record := blob[arrayOffset+uint64(i)*memoryRecSize:]
		wireOrder.PutUint64(record[memoryStartOff:], piece.start)
		wireOrder.PutUint64(record[memorySizeOff:], piece.size)

		var flags uint32
		if piece.repeating {
			flags |= memoryFlagRepeating
		}
		if piece.directMmap {
			flags |= memoryFlagDirectMmap
		}
		wireOrder.PutUint32(record[memoryFlagsOff:], flags)
		record[memoryFillByteOff] = piece.fillByte
		wireOrder.PutUint64(record[memoryDataOff:], piece.dataOffset)
	}
}
