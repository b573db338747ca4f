// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snaploader maps corpus files into memory and relocates
// them. A raw blob file is mapped read-only and used in place; a
// container file is decompressed into an anonymous memory file first,
// so the relocated corpus always sits in mappable page-cache-backed
// memory that can be shared with or re-mapped by a runner process.
//
// A loaded corpus lives until process exit. Nothing here unmaps or
// closes it: the replay process loads one corpus, executes it, and
// exits, so teardown is left to the kernel.
package snaploader

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snap"
)

// LoadedCorpus is a relocated corpus together with the file
// descriptor backing its memory.
type LoadedCorpus struct {
	*snap.Corpus

	// FD is the descriptor whose pages back the corpus views: the
	// corpus file itself for a raw blob, an anonymous memory file for
	// a decompressed container, or -1 for the empty corpus. It stays
	// open for the remainder of the process.
	FD int
}

// Load maps and relocates the corpus file at path for the given
// architecture. An empty path yields an empty corpus, which replays
// as a no-op; this keeps "no corpus configured" from being an error
// path in callers.
func Load(id arch.ID, path string) (*LoadedCorpus, error) {
	if path == "" {
		return &LoadedCorpus{Corpus: snap.NewEmptyCorpus(id), FD: -1}, nil
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat corpus %s: %w", path, err)
	}
	if st.Size == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("corpus %s: %w: empty file", path, snap.ErrCorruptBlob)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap corpus %s: %w", path, err)
	}

	if snap.IsContainer(data) {
		loaded, err := loadContainer(id, data)
		// The container mapping and file are no longer needed either
		// way; the blob now lives in the memory file.
		unix.Munmap(data)
		unix.Close(fd)
		if err != nil {
			return nil, fmt.Errorf("corpus %s: %w", path, err)
		}
		return loaded, nil
	}

	corpus, err := snap.Relocate(id, data)
	if err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return &LoadedCorpus{Corpus: corpus, FD: fd}, nil
}

// loadContainer decompresses a container into an anonymous memory
// file, maps that read-only, and relocates the mapped blob.
func loadContainer(id arch.ID, container []byte) (*LoadedCorpus, error) {
	blob, err := snap.UnwrapCorpus(container)
	if err != nil {
		return nil, err
	}

	memfd, err := unix.MemfdCreate("corpus", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := writeAll(memfd, blob); err != nil {
		unix.Close(memfd)
		return nil, fmt.Errorf("write memory file: %w", err)
	}

	mapped, err := unix.Mmap(memfd, 0, len(blob), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(memfd)
		return nil, fmt.Errorf("mmap memory file: %w", err)
	}

	corpus, err := snap.Relocate(id, mapped)
	if err != nil {
		unix.Munmap(mapped)
		unix.Close(memfd)
		return nil, err
	}
	return &LoadedCorpus{Corpus: corpus, FD: memfd}, nil
}

// writeAll writes the whole buffer to fd, retrying on short writes.
func writeAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
