// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// SnapToSnapshot reconstructs a mutable canonical snapshot from a
// relocated record. Fill spans are materialized, adjacent spans are
// merged back together, and all byte content is copied out of the
// blob so the result outlives the corpus mapping.
//
// The blob does not record end-state platform tags; platforms
// restores them on the reconstructed end state (pass the zero set
// for an untagged end state).
func SnapToSnapshot(s *Snap, id arch.ID, platforms snapshot.PlatformSet) snapshot.Snapshot {
	out := snapshot.Snapshot{
		ID:   s.ID,
		Arch: id,
		Registers: snapshot.RegisterState{
			GRegs:  append([]byte(nil), s.GRegs...),
			FPRegs: append([]byte(nil), s.FPRegs...),
		},
	}

	var initialSpans []snapshot.MemoryBytes
	for i := range s.Mappings {
		mapping := &s.Mappings[i]
		out.Mappings = append(out.Mappings, snapshot.MemoryMapping{
			Start: mapping.Start,
			Size:  mapping.Size,
			Perms: mapping.Perms,
		})
		initialSpans = append(initialSpans, materializeSpans(mapping.MemoryBytes)...)
	}
	out.MemoryBytes = snapshot.NormalizeMemoryBytes(initialSpans)

	endState := snapshot.EndState{
		Endpoint: snapshot.Endpoint{
			InstructionAddress: s.EndInstructionAddress,
		},
		MemoryBytes: snapshot.NormalizeMemoryBytes(materializeSpans(s.EndMemoryBytes)),
		Platforms:   platforms,
	}
	if !s.EndStateUndefined() {
		endState.Registers = &snapshot.RegisterState{
			GRegs:  append([]byte(nil), s.EndGRegs...),
			FPRegs: append([]byte(nil), s.EndFPRegs...),
		}
	}
	out.EndStates = []snapshot.EndState{endState}

	return out
}

// materializeSpans expands relocated spans into concrete byte spans,
// copying literal content out of the blob.
func materializeSpans(spans []MemoryBytes) []snapshot.MemoryBytes {
	var out []snapshot.MemoryBytes
	for i := range spans {
		span := &spans[i]
		out = append(out, snapshot.MemoryBytes{
			Start: span.Start(),
			Data:  append([]byte(nil), span.Bytes()...),
		})
	}
	return out
}
