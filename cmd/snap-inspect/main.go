// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snap"
	"github.com/bureau-foundation/snapcorpus/lib/snaploader"
	"github.com/bureau-foundation/snapcorpus/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snap-inspect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("snap-inspect", pflag.ContinueOnError)
	archName := flagSet.String("arch", "", "corpus architecture: x86_64 or aarch64")
	verbose := flagSet.BoolP("verbose", "v", false, "print mappings and content spans per record")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("snap-inspect %s\n", version.Info())
		return nil
	}

	if *archName == "" {
		return fmt.Errorf("--arch is required")
	}
	id, err := arch.ParseID(*archName)
	if err != nil {
		return err
	}
	args := flagSet.Args()
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one corpus file, got %d arguments", len(args))
	}

	loaded, err := snaploader.Load(id, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("corpus: %s, %d snaps\n", loaded.Arch(), loaded.NumSnaps())
	for i := range loaded.Snaps() {
		printSnap(i, &loaded.Snaps()[i], *verbose)
	}
	return nil
}

func printSnap(index int, s *snap.Snap, verbose bool) {
	endState := "undefined end state"
	if !s.EndStateUndefined() {
		endState = fmt.Sprintf("ends at %#x", s.EndInstructionAddress)
	}
	fmt.Printf("[%d] %s: %d mappings, %s\n", index, s.ID, len(s.Mappings), endState)
	if !verbose {
		return
	}

	for i := range s.Mappings {
		mapping := &s.Mappings[i]
		fmt.Printf("    [%#x, %#x) %s\n", mapping.Start, mapping.Limit(), mapping.Perms)
		for j := range mapping.MemoryBytes {
			printSpan(&mapping.MemoryBytes[j])
		}
	}
	if len(s.EndMemoryBytes) > 0 {
		fmt.Printf("    end-state memory:\n")
		for i := range s.EndMemoryBytes {
			printSpan(&s.EndMemoryBytes[i])
		}
	}
}

func printSpan(span *snap.MemoryBytes) {
	switch {
	case span.Repeating():
		fmt.Printf("        %#x: %d x %#02x\n", span.Start(), span.Size(), span.FillByte())
	case span.DirectMmap():
		fmt.Printf("        %#x: %d literal bytes (direct mmap)\n", span.Start(), span.Size())
	default:
		fmt.Printf("        %#x: %d literal bytes\n", span.Start(), span.Size())
	}
}
