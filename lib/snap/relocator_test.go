// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapify"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot/snaptest"
)

// buildTestBlob builds a one-record corpus with a direct-mmap code
// page, so every corruption case below has a target field.
func buildTestBlob(t *testing.T, id arch.ID) []byte {
	t.Helper()
	s := snaptest.EndsAsExpected(id)
	packed, err := snapify.Snapify(&s, snapify.RunOptions(id))
	if err != nil {
		t.Fatalf("snapify: %v", err)
	}
	return Build(id, []snapshot.Snapshot{packed}, BuildOptions{
		CompressRepeatingBytes: true,
		SupportDirectMmap:      true,
	})
}

func TestRelocateBorrowsBlobMemory(t *testing.T) {
	id := arch.X86_64
	blob := buildTestBlob(t, id)
	corpus, err := Relocate(id, blob)
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}

	snap := &corpus.Snaps()[0]
	span := findSpan(t, snap, snaptest.CodeStart)
	offset := bytes.Index(blob, span.Data())
	if offset < 0 {
		t.Fatal("span data not found in blob")
	}
	if &span.Data()[0] != &blob[offset] {
		t.Error("span data was copied instead of borrowed from the blob")
	}
	if regOffset := bytes.Index(blob, snap.GRegs); regOffset < 0 || &snap.GRegs[0] != &blob[regOffset] {
		t.Error("register block was copied instead of borrowed from the blob")
	}
}

func TestRelocateRejectsCorruption(t *testing.T) {
	id := arch.X86_64
	pristine := buildTestBlob(t, id)

	// Navigation helpers into the pristine layout: the first record,
	// its first mapping (the code page), and that mapping's single
	// direct-mmap memory-bytes descriptor.
	recordOffset := wireOrder.Uint64(pristine[headerSnapTableOff:])
	mappingOffset := wireOrder.Uint64(pristine[recordOffset+snapMappingsOff:])
	memoryOffset := wireOrder.Uint64(pristine[mappingOffset+mappingBytesOff:])

	tests := []struct {
		name    string
		corrupt func(blob []byte) []byte
		wantErr error
	}{
		{
			name:    "flipped magic byte",
			corrupt: func(blob []byte) []byte { blob[0] ^= 0xff; return blob },
			wantErr: ErrCorruptBlob,
		},
		{
			name:    "truncated header",
			corrupt: func(blob []byte) []byte { return blob[:headerSize-1] },
			wantErr: ErrCorruptBlob,
		},
		{
			name:    "truncated body",
			corrupt: func(blob []byte) []byte { return blob[:len(blob)-1] },
			wantErr: ErrCorruptBlob,
		},
		{
			name: "wrong header size field",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint32(blob[headerSizeOff:], 128)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "foreign architecture",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint32(blob[headerArchOff:], uint32(arch.AArch64))
				return blob
			},
			wantErr: ErrArchitectureMismatch,
		},
		{
			name: "snap table out of range",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[headerSnapTableOff:], uint64(len(blob)))
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "absurd record count",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[headerNumSnapsOff:], 1<<60)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "id string out of range",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[recordOffset+snapIDOff:], uint64(len(blob)))
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "register block out of range",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[recordOffset+snapGRegsOff:], uint64(len(blob))-8)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "mapping array out of range",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[recordOffset+snapMappingsOff:], uint64(len(blob)))
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "zero-size mapping",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[mappingOffset+mappingSizeOff:], 0)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "mapping wraps the address space",
			corrupt: func(blob []byte) []byte {
				wireOrder.PutUint64(blob[mappingOffset+mappingSizeOff:], ^uint64(0))
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "overlapping mappings",
			corrupt: func(blob []byte) []byte {
				// Grow the code mapping until it swallows the start of
				// the data mapping. Both mappings still contain their
				// own spans, so only the overlap check can reject this.
				next := wireOrder.Uint64(blob[mappingOffset+mappingRecSize+mappingStartOff:])
				start := wireOrder.Uint64(blob[mappingOffset+mappingStartOff:])
				wireOrder.PutUint64(blob[mappingOffset+mappingSizeOff:], next-start+4096)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "span escapes its mapping",
			corrupt: func(blob []byte) []byte {
				start := wireOrder.Uint64(blob[memoryOffset+memoryStartOff:])
				wireOrder.PutUint64(blob[memoryOffset+memoryStartOff:], start+4096)
				return blob
			},
			wantErr: ErrCorruptBlob,
		},
		{
			name: "misaligned direct-mmap data",
			corrupt: func(blob []byte) []byte {
				dataOffset := wireOrder.Uint64(blob[memoryOffset+memoryDataOff:])
				wireOrder.PutUint64(blob[memoryOffset+memoryDataOff:], dataOffset+8)
				return blob
			},
			wantErr: ErrAlignmentViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := tt.corrupt(append([]byte(nil), pristine...))
			if _, err := Relocate(id, blob); !errors.Is(err, tt.wantErr) {
				t.Errorf("Relocate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRelocateArchitectureArgumentMismatch(t *testing.T) {
	blob := buildTestBlob(t, arch.X86_64)
	if _, err := Relocate(arch.AArch64, blob); !errors.Is(err, ErrArchitectureMismatch) {
		t.Errorf("Relocate = %v, want %v", err, ErrArchitectureMismatch)
	}
}

func TestRelocateEmptyBlob(t *testing.T) {
	if _, err := Relocate(arch.X86_64, nil); !errors.Is(err, ErrCorruptBlob) {
		t.Errorf("Relocate(nil) = %v, want %v", err, ErrCorruptBlob)
	}
}
