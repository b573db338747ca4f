// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

// layout assigns blob offsets to variable-length objects. It is a
// bump cursor: each reservation rounds the cursor up to the requested
// alignment and claims the next size bytes. Padding introduced by
// alignment is left zero in the emitted blob, keeping builds
// byte-reproducible.
type layout struct {
	size uint64
}

// reserve claims size bytes at the next offset aligned to align and
// returns that offset. align must be a power of two.
func (l *layout) reserve(size, align uint64) uint64 {
	offset := roundUp(l.size, align)
	l.size = offset + size
	return offset
}

// total returns the current blob length implied by all reservations.
func (l *layout) total() uint64 {
	return l.size
}

// roundUp rounds v up to the next multiple of align, which must be a
// power of two.
func roundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
