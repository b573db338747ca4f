// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snap

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// A corpus file on disk is either a raw relocatable blob (mapped
// directly) or a container: a small header plus the whole blob
// compressed with one algorithm. Containers trade load-time
// decompression for at-rest size; the loader decompresses them into
// an anonymous memory file before relocation, so the rest of the
// pipeline never sees the difference.

// containerMagic identifies a corpus container file.
var containerMagic = [8]byte{'S', 'n', 'a', 'p', 'C', 't', 'n', '1'}

// Container header layout.
const (
	containerHeaderSize = 24
	containerMagicOff   = 0  // [8]byte magic
	containerTagOff     = 8  // uint8 compression tag
	containerRawSizeOff = 16 // uint64 uncompressed blob length
)

// CompressionTag identifies the compression algorithm of a container
// payload. Tags are stored on disk (1 byte) — existing values must
// never change.
type CompressionTag uint8

const (
	// CompressionNone stores the blob uncompressed inside the
	// container. Used as the fallback for incompressible blobs.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: fast decode, moderate
	// ratio. Good default when corpus load latency matters most.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level: better ratio,
	// slower decode. Good for corpora shipped over the network.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression tag name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snap: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snap: zstd decoder initialization failed: " + err.Error())
	}
}

// WrapCorpus wraps a corpus blob in a container compressed with the
// given algorithm. When the compressed payload would not be smaller
// than the blob, the container falls back to CompressionNone rather
// than growing the file.
func WrapCorpus(blob []byte, tag CompressionTag) ([]byte, error) {
	var payload []byte
	switch tag {
	case CompressionNone:
		payload = blob

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(blob))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(blob, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(blob) {
			tag = CompressionNone
			payload = blob
		} else {
			payload = destination[:written]
		}

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(blob, nil)
		if len(compressed) >= len(blob) {
			tag = CompressionNone
			payload = blob
		} else {
			payload = compressed
		}

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}

	container := make([]byte, containerHeaderSize+len(payload))
	copy(container[containerMagicOff:], containerMagic[:])
	container[containerTagOff] = byte(tag)
	wireOrder.PutUint64(container[containerRawSizeOff:], uint64(len(blob)))
	copy(container[containerHeaderSize:], payload)
	return container, nil
}

// IsContainer reports whether data starts with the container magic.
func IsContainer(data []byte) bool {
	return len(data) >= containerHeaderSize &&
		[8]byte(data[containerMagicOff:containerMagicOff+8]) == containerMagic
}

// UnwrapCorpus decompresses a container back into the raw blob. The
// decompressed length must match the header's recorded blob length
// exactly.
func UnwrapCorpus(data []byte) ([]byte, error) {
	if !IsContainer(data) {
		return nil, fmt.Errorf("%w: not a corpus container", ErrCorruptBlob)
	}
	tag := CompressionTag(data[containerTagOff])
	rawSize := wireOrder.Uint64(data[containerRawSizeOff:])
	payload := data[containerHeaderSize:]

	// Guard against absurd size fields before allocating.
	const maxCorpusSize = 1 << 40
	if rawSize > maxCorpusSize {
		return nil, fmt.Errorf("%w: container claims %d uncompressed bytes", ErrCorruptBlob, rawSize)
	}

	switch tag {
	case CompressionNone:
		if uint64(len(payload)) != rawSize {
			return nil, fmt.Errorf("%w: uncompressed container payload is %d bytes, header says %d",
				ErrCorruptBlob, len(payload), rawSize)
		}
		return payload, nil

	case CompressionLZ4:
		blob := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(payload, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 decompress: %v", ErrCorruptBlob, err)
		}
		if uint64(read) != rawSize {
			return nil, fmt.Errorf("%w: lz4 payload decompressed to %d bytes, header says %d",
				ErrCorruptBlob, read, rawSize)
		}
		return blob, nil

	case CompressionZstd:
		blob, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd decompress: %v", ErrCorruptBlob, err)
		}
		if uint64(len(blob)) != rawSize {
			return nil, fmt.Errorf("%w: zstd payload decompressed to %d bytes, header says %d",
				ErrCorruptBlob, len(blob), rawSize)
		}
		return blob, nil

	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptBlob, tag)
	}
}
