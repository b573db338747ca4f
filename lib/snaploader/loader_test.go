// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snaploader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snap"
	"github.com/bureau-foundation/snapcorpus/lib/snapify"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot/snaptest"
)

// Loading never executes snapshot code, so the tests use a fixed
// architecture instead of the host's.
const testArch = arch.X86_64

func buildBlob(t *testing.T, id arch.ID) ([]byte, []snapshot.Snapshot) {
	t.Helper()
	s := snaptest.EndsAsExpected(id)
	packed, err := snapify.Snapify(&s, snapify.RunOptions(id))
	if err != nil {
		t.Fatalf("snapify: %v", err)
	}
	snapshots := []snapshot.Snapshot{packed}
	blob := snap.Build(id, snapshots, snap.BuildOptions{
		CompressRepeatingBytes: true,
		SupportDirectMmap:      true,
	})
	return blob, snapshots
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	id := testArch
	loaded, err := Load(id, "")
	if err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}
	if loaded.NumSnaps() != 0 {
		t.Errorf("empty corpus has %d records", loaded.NumSnaps())
	}
	if loaded.FD != -1 {
		t.Errorf("empty corpus FD = %d, want -1", loaded.FD)
	}
	if loaded.Arch() != id {
		t.Errorf("empty corpus arch = %s, want %s", loaded.Arch(), id)
	}
}

func TestLoadRawBlob(t *testing.T) {
	id := testArch
	blob, snapshots := buildBlob(t, id)
	path := writeFile(t, "corpus.blob", blob)

	loaded, err := Load(id, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.FD < 0 {
		t.Error("raw blob load should keep the corpus file open")
	}
	if loaded.NumSnaps() != 1 {
		t.Fatalf("loaded %d records, want 1", loaded.NumSnaps())
	}

	record := &loaded.Snaps()[0]
	reconstructed := snap.SnapToSnapshot(record, id, snapshots[0].EndStates[0].Platforms)
	if !reconstructed.Equal(&snapshots[0]) {
		t.Error("loaded record does not match the packed snapshot")
	}
}

func TestLoadDirectMmapPageAlignment(t *testing.T) {
	// The whole point of direct-mmap spans: once the blob itself is
	// mapped, the span content sits on a page boundary in memory.
	id := testArch
	blob, _ := buildBlob(t, id)
	path := writeFile(t, "corpus.blob", blob)

	loaded, err := Load(id, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pageSize := arch.MustByID(id).PageSize
	found := false
	for _, record := range loaded.Snaps() {
		for i := range record.Mappings {
			for j := range record.Mappings[i].MemoryBytes {
				span := &record.Mappings[i].MemoryBytes[j]
				if !span.DirectMmap() {
					continue
				}
				found = true
				address := uintptr(unsafe.Pointer(&span.Data()[0]))
				if uint64(address)%pageSize != 0 {
					t.Errorf("direct-mmap span mapped at %#x, not page-aligned", address)
				}
			}
		}
	}
	if !found {
		t.Fatal("fixture corpus has no direct-mmap span")
	}
}

func TestLoadContainer(t *testing.T) {
	id := testArch
	blob, snapshots := buildBlob(t, id)

	for _, tag := range []snap.CompressionTag{snap.CompressionNone, snap.CompressionLZ4, snap.CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			container, err := snap.WrapCorpus(blob, tag)
			if err != nil {
				t.Fatalf("wrap: %v", err)
			}
			path := writeFile(t, "corpus.container", container)

			loaded, err := Load(id, path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.FD < 0 {
				t.Error("container load should yield a memory file descriptor")
			}
			if loaded.NumSnaps() != 1 {
				t.Fatalf("loaded %d records, want 1", loaded.NumSnaps())
			}
			record := &loaded.Snaps()[0]
			reconstructed := snap.SnapToSnapshot(record, id, snapshots[0].EndStates[0].Platforms)
			if !reconstructed.Equal(&snapshots[0]) {
				t.Error("loaded record does not match the packed snapshot")
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	id := testArch

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(id, filepath.Join(t.TempDir(), "absent")); err == nil {
			t.Error("Load of a missing file succeeded")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty", nil)
		if _, err := Load(id, path); !errors.Is(err, snap.ErrCorruptBlob) {
			t.Errorf("Load = %v, want %v", err, snap.ErrCorruptBlob)
		}
	})

	t.Run("garbage file", func(t *testing.T) {
		path := writeFile(t, "garbage", []byte("this is not a corpus file at all"))
		if _, err := Load(id, path); !errors.Is(err, snap.ErrCorruptBlob) {
			t.Errorf("Load = %v, want %v", err, snap.ErrCorruptBlob)
		}
	})

	t.Run("truncated blob", func(t *testing.T) {
		blob, _ := buildBlob(t, id)
		path := writeFile(t, "truncated", blob[:len(blob)-16])
		if _, err := Load(id, path); !errors.Is(err, snap.ErrCorruptBlob) {
			t.Errorf("Load = %v, want %v", err, snap.ErrCorruptBlob)
		}
	})
}
