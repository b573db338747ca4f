// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import "github.com/zeebo/blake3"

// bytePool is the content-addressed deduplicator for literal byte
// data: identifier strings, register blocks, and literal memory
// spans. Two interned spans with bit-identical content share a single
// pool region and therefore a single data pointer after relocation.
// Constant-fill spans never reach the pool — their one fill byte
// lives in the memory-bytes descriptor itself.
//
// Direct-mmap content is interned in a separate alignment class:
// page-aligned regions whose reserved length is rounded up to a page
// multiple. An aligned region is never satisfied by an existing
// unaligned copy of the same content (nor the reverse), but two
// aligned requests for identical content do share.
type bytePool struct {
	layout   *layout
	pageSize uint64
	offsets  map[poolKey]uint64
	entries  []poolEntry
}

// poolKey identifies a unique pool region: the BLAKE3 digest of its
// content plus its alignment class.
type poolKey struct {
	digest      [32]byte
	pageAligned bool
}

// poolEntry records an assigned region for the emit phase.
type poolEntry struct {
	offset uint64
	data   []byte
}

func newBytePool(l *layout, pageSize uint64) *bytePool {
	return &bytePool{
		layout:   l,
		pageSize: pageSize,
		offsets:  make(map[poolKey]uint64),
	}
}

// intern assigns a pool offset for data, reusing an existing region
// when identical content was interned before in the same alignment
// class. Lookup is O(1) amortized in the content size (one hash plus
// one map lookup).
func (p *bytePool) intern(data []byte, pageAligned bool) uint64 {
	key := poolKey{digest: blake3.Sum256(data), pageAligned: pageAligned}
	if offset, ok := p.offsets[key]; ok {
		return offset
	}

	align := uint64(poolAlign)
	reserved := uint64(len(data))
	if pageAligned {
		align = p.pageSize
		reserved = roundUp(reserved, p.pageSize)
	}

	offset := p.layout.reserve(reserved, align)
	p.offsets[key] = offset
	p.entries = append(p.entries, poolEntry{offset: offset, data: data})
	return offset
}

// internString interns an identifier string.
func (p *bytePool) internString(s string) uint64 {
	return p.intern([]byte(s), false)
}

// emit copies all pool content into blob at the assigned offsets.
func (p *bytePool) emit(blob []byte) {
	for _, entry := range p.entries {
		copy(blob[entry.offset:], entry.data)
	}
}
