// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import "sort"

// NormalizeMemoryBytes returns a copy of spans sorted by start
// address with adjacent contiguous spans merged. The input is not
// modified. Overlapping spans are a caller contract violation and are
// left as-is (Validate rejects them).
func NormalizeMemoryBytes(spans []MemoryBytes) []MemoryBytes {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]MemoryBytes, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	normalized := make([]MemoryBytes, 0, len(sorted))
	current := MemoryBytes{
		Start: sorted[0].Start,
		Data:  append([]byte(nil), sorted[0].Data...),
	}
	for _, span := range sorted[1:] {
		if span.Start == current.Limit() {
			current.Data = append(current.Data, span.Data...)
			continue
		}
		normalized = append(normalized, current)
		current = MemoryBytes{
			Start: span.Start,
			Data:  append([]byte(nil), span.Data...),
		}
	}
	return append(normalized, current)
}

// MemoryView is a read-only overlay of memory-byte spans: base spans
// with later layers applied on top. Canonicalization uses it to
// compute the full writable-memory content of an end state (initial
// memory overlaid with the end state's recorded deltas).
type MemoryView struct {
	spans []MemoryBytes
}

// NewMemoryView creates a view from the given base spans.
func NewMemoryView(base []MemoryBytes) *MemoryView {
	return &MemoryView{spans: NormalizeMemoryBytes(base)}
}

// Overlay applies the given spans on top of the view's current
// content, byte by byte.
func (v *MemoryView) Overlay(spans []MemoryBytes) {
	for _, span := range spans {
		v.write(span)
	}
}

// write replaces the view's content in [span.Start, span.Limit()),
// splitting existing spans as needed.
func (v *MemoryView) write(span MemoryBytes) {
	var result []MemoryBytes
	for _, existing := range v.spans {
		// Keep the part of the existing span before the write.
		if existing.Start < span.Start {
			keep := min(existing.Size(), span.Start-existing.Start)
			result = append(result, MemoryBytes{
				Start: existing.Start,
				Data:  existing.Data[:keep],
			})
		}
		// Keep the part after the write.
		if existing.Limit() > span.Limit() {
			skip := uint64(0)
			if span.Limit() > existing.Start {
				skip = span.Limit() - existing.Start
			}
			result = append(result, MemoryBytes{
				Start: existing.Start + skip,
				Data:  existing.Data[skip:],
			})
		}
	}
	result = append(result, MemoryBytes{
		Start: span.Start,
		Data:  append([]byte(nil), span.Data...),
	})
	v.spans = NormalizeMemoryBytes(result)
}

// Read returns the content of [start, start+size), or false when any
// byte in the range has no recorded content.
func (v *MemoryView) Read(start Address, size uint64) ([]byte, bool) {
	data := make([]byte, 0, size)
	next := start
	for _, span := range v.spans {
		if span.Limit() <= next {
			continue
		}
		if span.Start > next {
			return nil, false // Gap.
		}
		from := next - span.Start
		take := min(span.Size()-from, start+size-next)
		data = append(data, span.Data[from:from+take]...)
		next += take
		if next == start+size {
			return data, true
		}
	}
	return nil, false
}

// Spans returns the view's normalized content spans.
func (v *MemoryView) Spans() []MemoryBytes {
	return v.spans
}
