// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// Relocation error taxonomy. Every failure wraps exactly one of
// these sentinels; match with errors.Is. All of them are fatal to
// the load — there is no partially relocated corpus.
var (
	// ErrCorruptBlob covers bad magic, truncation, and any offset or
	// size field that points outside the blob or breaks a structural
	// invariant.
	ErrCorruptBlob = errors.New("corrupt corpus blob")

	// ErrArchitectureMismatch means the blob was built for a
	// different architecture than the relocator was asked to load.
	ErrArchitectureMismatch = errors.New("corpus architecture mismatch")

	// ErrAlignmentViolation means a span flagged for direct mmap
	// fails the page-alignment rule.
	ErrAlignmentViolation = errors.New("corpus alignment violation")
)

// Relocate turns a corpus blob, mapped or held anywhere in memory,
// into a dereferenceable read-only Corpus. It makes a single linear
// pass over the record table, validating every offset against the
// blob bounds and materializing offset fields as views that borrow
// byte content directly from blob. No byte content is copied.
//
// The blob must remain alive and unmodified for the lifetime of the
// returned Corpus; the loader (lib/snaploader) guarantees this by
// keeping the file mapping open for the remainder of the process.
func Relocate(id arch.ID, blob []byte) (*Corpus, error) {
	descriptor := arch.MustByID(id)

	if uint64(len(blob)) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header", ErrCorruptBlob, len(blob))
	}
	if [8]byte(blob[headerMagicOff:headerMagicOff+8]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptBlob)
	}
	if got := wireOrder.Uint32(blob[headerSizeOff:]); got != headerSize {
		return nil, fmt.Errorf("%w: header size field is %d, want %d", ErrCorruptBlob, got, headerSize)
	}
	if got := wireOrder.Uint64(blob[headerCorpusSizeOff:]); got != uint64(len(blob)) {
		return nil, fmt.Errorf("%w: corpus size field is %d but blob is %d bytes",
			ErrCorruptBlob, got, len(blob))
	}
	if got := arch.ID(wireOrder.Uint32(blob[headerArchOff:])); got != id {
		return nil, fmt.Errorf("%w: blob is %s, relocating for %s", ErrArchitectureMismatch, got, id)
	}

	numSnaps := wireOrder.Uint64(blob[headerNumSnapsOff:])
	tableOffset := wireOrder.Uint64(blob[headerSnapTableOff:])
	table, err := blobRange(blob, tableOffset, numSnaps, snapRecordSize, "snap record table")
	if err != nil {
		return nil, err
	}

	corpus := &Corpus{
		arch:  id,
		snaps: make([]Snap, numSnaps),
		blob:  blob,
	}
	for i := range corpus.snaps {
		record := table[uint64(i)*snapRecordSize:]
		if err := relocateSnap(blob, record, descriptor, &corpus.snaps[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return corpus, nil
}

// relocateSnap materializes one record's views.
func relocateSnap(blob, record []byte, descriptor *arch.Descriptor, out *Snap) error {
	idOffset := wireOrder.Uint64(record[snapIDOff:])
	idSize := wireOrder.Uint64(record[snapIDSizeOff:])
	idBytes, err := blobRange(blob, idOffset, idSize, 1, "id string")
	if err != nil {
		return err
	}
	out.ID = string(idBytes)

	if out.GRegs, err = registerBlock(blob, wireOrder.Uint64(record[snapGRegsOff:]), descriptor.GRegsSize, "general registers"); err != nil {
		return err
	}
	if out.FPRegs, err = registerBlock(blob, wireOrder.Uint64(record[snapFPRegsOff:]), descriptor.FPRegsSize, "floating-point registers"); err != nil {
		return err
	}

	numMappings := wireOrder.Uint64(record[snapNumMappingsOff:])
	mappingsOffset := wireOrder.Uint64(record[snapMappingsOff:])
	mappingTable, err := blobRange(blob, mappingsOffset, numMappings, mappingRecSize, "mapping array")
	if err != nil {
		return err
	}
	out.Mappings = make([]MemoryMapping, numMappings)
	for i := range out.Mappings {
		if err := relocateMapping(blob, mappingTable[uint64(i)*mappingRecSize:], descriptor, &out.Mappings[i]); err != nil {
			return fmt.Errorf("mapping %d: %w", i, err)
		}
		// Mappings are stored sorted by address and must not overlap.
		if i > 0 {
			previous := &out.Mappings[i-1]
			if out.Mappings[i].Start < previous.Limit() {
				return fmt.Errorf("%w: mapping [%#x, %#x) overlaps or precedes mapping [%#x, %#x)",
					ErrCorruptBlob, out.Mappings[i].Start, out.Mappings[i].Limit(),
					previous.Start, previous.Limit())
			}
		}
	}

	out.EndInstructionAddress = wireOrder.Uint64(record[snapEndInsnAddrOff:])
	endGRegsOffset := wireOrder.Uint64(record[snapEndGRegsOff:])
	endFPRegsOffset := wireOrder.Uint64(record[snapEndFPRegsOff:])
	if (endGRegsOffset == 0) != (endFPRegsOffset == 0) {
		return fmt.Errorf("%w: end-state register offsets disagree about undefined state", ErrCorruptBlob)
	}
	if endGRegsOffset != 0 {
		if out.EndGRegs, err = registerBlock(blob, endGRegsOffset, descriptor.GRegsSize, "end-state general registers"); err != nil {
			return err
		}
		if out.EndFPRegs, err = registerBlock(blob, endFPRegsOffset, descriptor.FPRegsSize, "end-state floating-point registers"); err != nil {
			return err
		}
	}

	numEndBytes := wireOrder.Uint64(record[snapNumEndBytesOff:])
	endBytesOffset := wireOrder.Uint64(record[snapEndBytesOff:])
	out.EndMemoryBytes, err = relocateMemoryBytes(blob, endBytesOffset, numEndBytes, descriptor)
	if err != nil {
		return fmt.Errorf("end-state memory bytes: %w", err)
	}
	for i := range out.EndMemoryBytes {
		span := &out.EndMemoryBytes[i]
		if !spanInsideAnyMapping(out.Mappings, span) {
			return fmt.Errorf("%w: end-state span [%#x, %#x) is outside every mapping",
				ErrCorruptBlob, span.Start(), span.Start()+span.Size())
		}
	}
	return nil
}

// relocateMapping materializes one mapping view and its content
// spans, checking that every span stays inside the mapping.
func relocateMapping(blob, record []byte, descriptor *arch.Descriptor, out *MemoryMapping) error {
	out.Start = wireOrder.Uint64(record[mappingStartOff:])
	out.Size = wireOrder.Uint64(record[mappingSizeOff:])
	out.Perms = snapshot.Perms(wireOrder.Uint32(record[mappingPermsOff:]))
	if out.Size == 0 || out.Start+out.Size < out.Start {
		return fmt.Errorf("%w: mapping [%#x, +%#x) is empty or wraps the address space",
			ErrCorruptBlob, out.Start, out.Size)
	}

	numBytes := wireOrder.Uint64(record[mappingNumBytesOff:])
	bytesOffset := wireOrder.Uint64(record[mappingBytesOff:])
	spans, err := relocateMemoryBytes(blob, bytesOffset, numBytes, descriptor)
	if err != nil {
		return err
	}
	for i := range spans {
		span := &spans[i]
		if span.Start() < out.Start || span.Start()+span.Size() > out.Limit() {
			return fmt.Errorf("%w: span [%#x, %#x) escapes mapping [%#x, %#x)",
				ErrCorruptBlob, span.Start(), span.Start()+span.Size(), out.Start, out.Limit())
		}
	}
	out.MemoryBytes = spans
	return nil
}

// relocateMemoryBytes materializes an array of memory-bytes views.
func relocateMemoryBytes(blob []byte, arrayOffset, count uint64, descriptor *arch.Descriptor) ([]MemoryBytes, error) {
	table, err := blobRange(blob, arrayOffset, count, memoryRecSize, "memory-bytes array")
	if err != nil {
		return nil, err
	}

	spans := make([]MemoryBytes, count)
	for i := range spans {
		record := table[uint64(i)*memoryRecSize:]
		span := &spans[i]
		span.start = wireOrder.Uint64(record[memoryStartOff:])
		span.size = wireOrder.Uint64(record[memorySizeOff:])
		flags := wireOrder.Uint32(record[memoryFlagsOff:])
		span.repeating = flags&memoryFlagRepeating != 0
		span.directMmap = flags&memoryFlagDirectMmap != 0
		span.fillByte = record[memoryFillByteOff]
		dataOffset := wireOrder.Uint64(record[memoryDataOff:])

		if span.size == 0 {
			return nil, fmt.Errorf("%w: empty memory-bytes span", ErrCorruptBlob)
		}
		if span.repeating {
			if span.directMmap {
				return nil, fmt.Errorf("%w: repeating span flagged for direct mmap", ErrCorruptBlob)
			}
			if dataOffset != 0 {
				return nil, fmt.Errorf("%w: repeating span has pool data", ErrCorruptBlob)
			}
			continue
		}

		data, err := blobRange(blob, dataOffset, span.size, 1, "span data")
		if err != nil {
			return nil, err
		}
		if span.directMmap {
			if dataOffset%descriptor.PageSize != 0 || span.size%descriptor.PageSize != 0 {
				return nil, fmt.Errorf(
					"%w: direct-mmap span data at offset %#x with size %#x is not page-aligned",
					ErrAlignmentViolation, dataOffset, span.size)
			}
		}
		span.data = data
	}
	return spans, nil
}

// registerBlock bounds-checks and borrows one register block.
func registerBlock(blob []byte, offset uint64, size int, what string) ([]byte, error) {
	return blobRange(blob, offset, uint64(size), 1, what)
}

// spanInsideAnyMapping reports whether the span lies fully within one
// of the given mappings.
func spanInsideAnyMapping(mappings []MemoryMapping, span *MemoryBytes) bool {
	for i := range mappings {
		m := &mappings[i]
		if span.Start() >= m.Start && span.Size() <= m.Size && span.Start()-m.Start <= m.Size-span.Size() {
			return true
		}
	}
	return false
}

// blobRange bounds-checks [offset, offset+count*elemSize) against the
// blob and returns the subslice. Overflow-safe: count and elemSize
// are multiplied in 64 bits after individually bounding them by the
// blob length.
func blobRange(blob []byte, offset, count, elemSize uint64, what string) ([]byte, error) {
	blobLen := uint64(len(blob))
	if count > blobLen || elemSize > blobLen || (elemSize != 0 && count*elemSize > blobLen) {
		return nil, fmt.Errorf("%w: %s count %d out of range", ErrCorruptBlob, what, count)
	}
	size := count * elemSize
	if offset > blobLen || size > blobLen-offset {
		return nil, fmt.Errorf("%w: %s at offset %#x with size %#x exceeds blob length %#x",
			ErrCorruptBlob, what, offset, size, blobLen)
	}
	return blob[offset : offset+size], nil
}
