// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arch

import "testing"

func TestIDStringRoundTrip(t *testing.T) {
	for _, id := range []ID{X86_64, AArch64} {
		t.Run(id.String(), func(t *testing.T) {
			parsed, err := ParseID(id.String())
			if err != nil {
				t.Fatalf("ParseID(%q) failed: %v", id.String(), err)
			}
			if parsed != id {
				t.Errorf("ParseID(%q) = %v, want %v", id.String(), parsed, id)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseID("mips"); err == nil {
			t.Error("ParseID(\"mips\") should fail")
		}
	})
}

func TestByID(t *testing.T) {
	for _, id := range []ID{X86_64, AArch64} {
		descriptor, err := ByID(id)
		if err != nil {
			t.Fatalf("ByID(%v) failed: %v", id, err)
		}
		if descriptor.ID != id {
			t.Errorf("descriptor ID = %v, want %v", descriptor.ID, id)
		}
		if descriptor.PageSize == 0 || descriptor.PageSize&(descriptor.PageSize-1) != 0 {
			t.Errorf("page size %d is not a power of two", descriptor.PageSize)
		}
		if descriptor.GRegsSize <= 0 || descriptor.FPRegsSize <= 0 {
			t.Errorf("register block sizes must be positive, got %d and %d",
				descriptor.GRegsSize, descriptor.FPRegsSize)
		}
		if len(descriptor.ExitSequence) == 0 {
			t.Error("exit sequence is empty")
		}
	}

	if _, err := ByID(Unknown); err == nil {
		t.Error("ByID(Unknown) should fail")
	}
}

func TestDirectMmapDefaults(t *testing.T) {
	if MustByID(X86_64).SupportDirectMmapDefault {
		t.Error("x86_64 should not default to direct mmap")
	}
	if !MustByID(AArch64).SupportDirectMmapDefault {
		t.Error("aarch64 should default to direct mmap")
	}
}
