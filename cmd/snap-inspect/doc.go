// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// snap-inspect loads a corpus file and prints what is in it.
//
// The file goes through the same path a runner uses — container
// detection, decompression into a memory file if needed, mmap,
// relocation — so a corpus that snap-inspect can read is a corpus the
// runner can replay. Output is one line per record by default;
// --verbose adds the mappings and content spans of each record.
//
// Usage:
//
//	snap-inspect --arch x86_64 corpus.snap
package main
