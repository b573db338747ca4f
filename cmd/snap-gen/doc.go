// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// snap-gen packs snapshot archives into a relocatable corpus file.
//
// Input is one or more CBOR snapshot archives (the portable
// interchange format written by snapshot producers). Each snapshot is
// canonicalized for replay — one end state selected for the target
// platform, the runner exit sequence injected, writable memory
// captured in full — and the survivors are packed into a single
// position-independent blob that the loader maps without parsing.
// Snapshots that cannot be canonicalized are logged and skipped; the
// run fails only when nothing can be packed from a non-empty input.
//
// The output is deterministic: the same archives, in the same order,
// with the same options, produce a byte-identical corpus file.
//
// Usage:
//
//	snap-gen --arch x86_64 --out corpus.snap archive.cbor [archive.cbor ...]
//
// Defaults come from built-in values, overridden by an optional YAML
// config file (--config or SNAPCORPUS_CONFIG), overridden by flags.
package main
