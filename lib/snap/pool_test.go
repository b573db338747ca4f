// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"bytes"
	"testing"
)

func TestPoolDedup(t *testing.T) {
	l := &layout{}
	l.reserve(headerSize, 1)
	pool := newBytePool(l, 4096)

	content := []byte("identical content interned twice")
	first := pool.intern(content, false)
	second := pool.intern(append([]byte(nil), content...), false)
	if first != second {
		t.Errorf("identical content got offsets %#x and %#x", first, second)
	}
	if len(pool.entries) != 1 {
		t.Errorf("pool has %d entries, want 1", len(pool.entries))
	}

	other := pool.intern([]byte("different content"), false)
	if other == first {
		t.Error("different content shares an offset")
	}
}

func TestPoolAlignmentClasses(t *testing.T) {
	const pageSize = 4096
	l := &layout{}
	l.reserve(headerSize, 1)
	pool := newBytePool(l, pageSize)

	content := bytes.Repeat([]byte{1, 2, 3, 4}, pageSize/4)

	unaligned := pool.intern(content, false)
	aligned := pool.intern(content, true)
	if unaligned == aligned {
		t.Error("aligned intern reused the unaligned region")
	}
	if aligned%pageSize != 0 {
		t.Errorf("aligned region at offset %#x, not page-aligned", aligned)
	}

	// Within the aligned class the content still dedups.
	if again := pool.intern(content, true); again != aligned {
		t.Errorf("second aligned intern got %#x, want %#x", again, aligned)
	}
}

func TestPoolAlignedReserveRoundsToPage(t *testing.T) {
	const pageSize = 4096
	l := &layout{}
	l.reserve(headerSize, 1)
	pool := newBytePool(l, pageSize)

	offset := pool.intern([]byte{0xaa}, true)
	if offset%pageSize != 0 {
		t.Fatalf("aligned region at offset %#x", offset)
	}
	// The next page-aligned region must not land inside the rounded
	// reservation of the first.
	next := pool.intern([]byte{0xbb}, true)
	if next < offset+pageSize {
		t.Errorf("second aligned region at %#x overlaps the first at %#x", next, offset)
	}
}

func TestPoolEmit(t *testing.T) {
	l := &layout{}
	l.reserve(headerSize, 1)
	pool := newBytePool(l, 4096)

	a := []byte("first region")
	b := []byte("second region")
	offA := pool.intern(a, false)
	offB := pool.intern(b, false)

	blob := make([]byte, l.total())
	pool.emit(blob)

	if !bytes.Equal(blob[offA:offA+uint64(len(a))], a) {
		t.Error("first region content mismatch after emit")
	}
	if !bytes.Equal(blob[offB:offB+uint64(len(b))], b) {
		t.Error("second region content mismatch after emit")
	}
}
