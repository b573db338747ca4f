// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/snapcorpus/lib/codec"
)

// ArchiveVersion is the current snapshot archive format version.
const ArchiveVersion = 1

// Archive is the on-disk container for a list of snapshots, encoded
// as deterministic CBOR. Archives are the interchange format between
// snapshot producers and the corpus generator; unlike the relocatable
// corpus format they are portable and versioned.
type Archive struct {
	// Version is the archive format version. Currently 1.
	Version int `cbor:"version"`

	// Snapshots is the ordered snapshot list.
	Snapshots []Snapshot `cbor:"snapshots"`
}

// WriteArchive encodes snapshots as a CBOR archive to w.
func WriteArchive(w io.Writer, snapshots []Snapshot) error {
	archive := Archive{
		Version:   ArchiveVersion,
		Snapshots: snapshots,
	}
	if err := codec.NewEncoder(w).Encode(&archive); err != nil {
		return fmt.Errorf("encoding snapshot archive: %w", err)
	}
	return nil
}

// ReadArchive decodes a CBOR snapshot archive from r and validates
// every snapshot in it.
func ReadArchive(r io.Reader) ([]Snapshot, error) {
	var archive Archive
	if err := codec.NewDecoder(r).Decode(&archive); err != nil {
		return nil, fmt.Errorf("decoding snapshot archive: %w", err)
	}
	if archive.Version < 1 {
		return nil, fmt.Errorf("snapshot archive version %d is invalid (minimum 1)", archive.Version)
	}
	for i := range archive.Snapshots {
		if err := archive.Snapshots[i].Validate(); err != nil {
			return nil, fmt.Errorf("snapshot archive entry %d: %w", i, err)
		}
	}
	return archive.Snapshots, nil
}
