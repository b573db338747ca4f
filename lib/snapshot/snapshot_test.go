// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot_test

import (
	"bytes"
	"testing"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot/snaptest"
)

func TestValidateAcceptsFixture(t *testing.T) {
	for _, id := range []arch.ID{arch.X86_64, arch.AArch64} {
		t.Run(id.String(), func(t *testing.T) {
			s := snaptest.EndsAsExpected(id)
			if err := s.Validate(); err != nil {
				t.Errorf("fixture should validate: %v", err)
			}
		})
	}
}

func TestValidateRejections(t *testing.T) {
	base := snaptest.EndsAsExpected(arch.X86_64)

	t.Run("unaligned mapping", func(t *testing.T) {
		s := base
		s.Mappings = append([]snapshot.MemoryMapping(nil), base.Mappings...)
		s.Mappings[0].Start += 8
		if err := s.Validate(); err == nil {
			t.Error("unaligned mapping should be rejected")
		}
	})

	t.Run("overlapping mappings", func(t *testing.T) {
		s := base
		s.Mappings = append([]snapshot.MemoryMapping(nil), base.Mappings...)
		s.Mappings[1].Start = s.Mappings[0].Start
		if err := s.Validate(); err == nil {
			t.Error("overlapping mappings should be rejected")
		}
	})

	t.Run("span outside mappings", func(t *testing.T) {
		s := base
		s.MemoryBytes = append([]snapshot.MemoryBytes(nil), base.MemoryBytes...)
		s.MemoryBytes[0].Start = 0x1000
		if err := s.Validate(); err == nil {
			t.Error("span outside any mapping should be rejected")
		}
	})

	t.Run("wrong register size", func(t *testing.T) {
		s := base
		s.Registers = snapshot.RegisterState{
			GRegs:  []byte{1, 2, 3},
			FPRegs: base.Registers.FPRegs,
		}
		if err := s.Validate(); err == nil {
			t.Error("wrong register block size should be rejected")
		}
	})

	t.Run("unknown architecture", func(t *testing.T) {
		s := base
		s.Arch = arch.Unknown
		if err := s.Validate(); err == nil {
			t.Error("unknown architecture should be rejected")
		}
	})
}

func TestNormalizeMemoryBytesMergesAdjacent(t *testing.T) {
	spans := []snapshot.MemoryBytes{
		{Start: 0x2000, Data: []byte{3, 4}},
		{Start: 0x1000, Data: []byte{1, 2}},
		{Start: 0x1002, Data: []byte{5, 6}},
	}

	normalized := snapshot.NormalizeMemoryBytes(spans)
	if len(normalized) != 2 {
		t.Fatalf("got %d spans, want 2", len(normalized))
	}
	if normalized[0].Start != 0x1000 || !bytes.Equal(normalized[0].Data, []byte{1, 2, 5, 6}) {
		t.Errorf("first span = %#x %v", normalized[0].Start, normalized[0].Data)
	}
	if normalized[1].Start != 0x2000 || !bytes.Equal(normalized[1].Data, []byte{3, 4}) {
		t.Errorf("second span = %#x %v", normalized[1].Start, normalized[1].Data)
	}
}

func TestMemoryViewOverlayAndRead(t *testing.T) {
	view := snapshot.NewMemoryView([]snapshot.MemoryBytes{
		{Start: 0x1000, Data: []byte{0, 0, 0, 0, 0, 0, 0, 0}},
	})
	view.Overlay([]snapshot.MemoryBytes{
		{Start: 0x1002, Data: []byte{0xaa, 0xbb}},
	})

	data, ok := view.Read(0x1000, 8)
	if !ok {
		t.Fatal("read of fully covered range should succeed")
	}
	want := []byte{0, 0, 0xaa, 0xbb, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("read = %v, want %v", data, want)
	}

	if _, ok := view.Read(0x1004, 8); ok {
		t.Error("read past recorded content should fail")
	}
	if _, ok := view.Read(0x2000, 1); ok {
		t.Error("read of unrecorded address should fail")
	}
}

func TestEqualIgnoresSpanBoundaries(t *testing.T) {
	a := snaptest.EndsAsExpected(arch.X86_64)
	b := snaptest.EndsAsExpected(arch.X86_64)

	// Split b's first span into two adjacent spans describing the
	// same bytes.
	first := b.MemoryBytes[0]
	b.MemoryBytes = append([]snapshot.MemoryBytes{
		{Start: first.Start, Data: first.Data[:100]},
		{Start: first.Start + 100, Data: first.Data[100:]},
	}, b.MemoryBytes[1:]...)

	if !a.Equal(&b) {
		t.Error("snapshots with identical content but different span boundaries should be equal")
	}

	b.MemoryBytes[0].Data = append([]byte(nil), b.MemoryBytes[0].Data...)
	b.MemoryBytes[0].Data[0] ^= 0xff
	if a.Equal(&b) {
		t.Error("snapshots with different content should not be equal")
	}
}
