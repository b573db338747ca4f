// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
)

func TestContainerRoundTrip(t *testing.T) {
	blob := buildTestBlob(t, arch.X86_64)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			container, err := WrapCorpus(blob, tag)
			if err != nil {
				t.Fatalf("wrap: %v", err)
			}
			if !IsContainer(container) {
				t.Fatal("wrapped corpus not recognized as a container")
			}
			if IsContainer(blob) {
				t.Fatal("raw blob misidentified as a container")
			}

			unwrapped, err := UnwrapCorpus(container)
			if err != nil {
				t.Fatalf("unwrap: %v", err)
			}
			if !bytes.Equal(unwrapped, blob) {
				t.Error("unwrapped blob differs from the original")
			}
		})
	}
}

func TestContainerCompressesRepetitiveBlob(t *testing.T) {
	// A corpus blob full of fills and dedup'd pages still carries
	// repetitive descriptor tables; both algorithms should beat the
	// raw size on a real blob.
	blob := buildTestBlob(t, arch.AArch64)
	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		container, err := WrapCorpus(blob, tag)
		if err != nil {
			t.Fatalf("wrap %s: %v", tag, err)
		}
		if len(container) >= len(blob)+containerHeaderSize {
			t.Errorf("%s container is %d bytes for a %d-byte blob", tag, len(container), len(blob))
		}
	}
}

func TestContainerIncompressibleFallsBack(t *testing.T) {
	// Pseudorandom payloads do not shrink; the container must store
	// them raw rather than grow.
	incompressible := make([]byte, 64<<10)
	rng := rand.New(rand.NewSource(1))
	rng.Read(incompressible)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		container, err := WrapCorpus(incompressible, tag)
		if err != nil {
			t.Fatalf("wrap %s: %v", tag, err)
		}
		if got := CompressionTag(container[containerTagOff]); got != CompressionNone {
			t.Errorf("%s: incompressible payload stored with tag %s, want none", tag, got)
		}
		unwrapped, err := UnwrapCorpus(container)
		if err != nil {
			t.Fatalf("unwrap: %v", err)
		}
		if !bytes.Equal(unwrapped, incompressible) {
			t.Error("fallback container does not round-trip")
		}
	}
}

func TestUnwrapRejectsCorruption(t *testing.T) {
	blob := buildTestBlob(t, arch.X86_64)
	pristine, err := WrapCorpus(blob, CompressionLZ4)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	tests := []struct {
		name    string
		corrupt func(container []byte) []byte
	}{
		{
			name:    "not a container",
			corrupt: func(container []byte) []byte { container[0] ^= 0xff; return container },
		},
		{
			name:    "unknown tag",
			corrupt: func(container []byte) []byte { container[containerTagOff] = 0x7f; return container },
		},
		{
			name: "wrong raw size",
			corrupt: func(container []byte) []byte {
				wireOrder.PutUint64(container[containerRawSizeOff:], uint64(len(blob))+1)
				return container
			},
		},
		{
			name: "absurd raw size",
			corrupt: func(container []byte) []byte {
				wireOrder.PutUint64(container[containerRawSizeOff:], 1<<50)
				return container
			},
		},
		{
			name:    "truncated payload",
			corrupt: func(container []byte) []byte { return container[:len(container)-1] },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container := tt.corrupt(append([]byte(nil), pristine...))
			if _, err := UnwrapCorpus(container); !errors.Is(err, ErrCorruptBlob) {
				t.Errorf("UnwrapCorpus = %v, want %v", err, ErrCorruptBlob)
			}
		})
	}
}
