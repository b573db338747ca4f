// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import "github.com/bureau-foundation/snapcorpus/lib/snapshot"

// minRunLength is the shortest constant run worth breaking a literal
// span for. A fill costs one memory-bytes descriptor and no pool
// data, so short runs inside otherwise literal data are not worth the
// extra descriptor.
const minRunLength = 16

// spanPiece is one classified piece of a memory-byte span: either a
// constant fill (repeating) or literal data destined for the byte
// pool. The classification is recorded explicitly in the blob so
// readers never rescan content.
type spanPiece struct {
	start      snapshot.Address
	size       uint64
	repeating  bool
	fillByte   byte
	directMmap bool
	data       []byte // Literal content; nil for repeating pieces.
	dataOffset uint64 // Assigned pool offset; 0 for repeating pieces.
}

// classifyFill reports whether every byte of data equals the first.
// Trivially true for length-1 spans.
func classifyFill(data []byte) (byte, bool) {
	first := data[0]
	for _, b := range data[1:] {
		if b != first {
			return 0, false
		}
	}
	return first, true
}

// splitRuns classifies a literal span, optionally splitting it into
// alternating literal and constant-fill pieces.
//
// With compression disabled every span stays a single literal piece.
// A span whose bytes are all identical becomes a single fill
// regardless of length. Otherwise interior constant runs of at least
// minRunLength bytes are carved out as fills and the remainder stays
// literal. Classification is purely content-driven, so rebuilding the
// same input always yields the same pieces.
func splitRuns(start snapshot.Address, data []byte, compress bool) []spanPiece {
	if !compress {
		return []spanPiece{{start: start, size: uint64(len(data)), data: data}}
	}

	if fillByte, ok := classifyFill(data); ok {
		return []spanPiece{{
			start:     start,
			size:      uint64(len(data)),
			repeating: true,
			fillByte:  fillByte,
		}}
	}

	var pieces []spanPiece
	literalStart := 0
	i := 0
	for i < len(data) {
		runEnd := i + 1
		for runEnd < len(data) && data[runEnd] == data[i] {
			runEnd++
		}
		if runEnd-i >= minRunLength {
			if i > literalStart {
				pieces = append(pieces, spanPiece{
					start: start + uint64(literalStart),
					size:  uint64(i - literalStart),
					data:  data[literalStart:i],
				})
			}
			pieces = append(pieces, spanPiece{
				start:     start + uint64(i),
				size:      uint64(runEnd - i),
				repeating: true,
				fillByte:  data[i],
			})
			literalStart = runEnd
		}
		i = runEnd
	}
	if literalStart < len(data) {
		pieces = append(pieces, spanPiece{
			start: start + uint64(literalStart),
			size:  uint64(len(data) - literalStart),
			data:  data[literalStart:],
		})
	}
	return pieces
}
