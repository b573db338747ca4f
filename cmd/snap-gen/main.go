// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/snapcorpus/lib/config"
	"github.com/bureau-foundation/snapcorpus/lib/snap"
	"github.com/bureau-foundation/snapcorpus/lib/snapify"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
	"github.com/bureau-foundation/snapcorpus/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snap-gen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		outPath    string
	)

	flagSet := pflag.NewFlagSet("snap-gen", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (overrides SNAPCORPUS_CONFIG)")
	flagSet.StringVar(&outPath, "out", "", "output corpus file (required)")
	archFlag := flagSet.String("arch", "", "target architecture: x86_64 or aarch64")
	platformFlag := flagSet.String("platform", "", "platform whose end state to keep (default any)")
	compressionFlag := flagSet.String("compression", "", "at-rest compression: none, lz4, zstd, or raw for a bare blob")
	directMmapFlag := flagSet.String("direct-mmap", "", "page-aligned executable content: auto, on, or off")
	repeatFlag := flagSet.Bool("compress-repeating", true, "store constant-byte runs as fills")
	undefinedFlag := flagSet.Bool("allow-undefined-end-state", false, "accept snapshots that have not been executed yet")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("snap-gen %s\n", version.Info())
		return nil
	}

	logger := newLogger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, flagSet, *archFlag, *platformFlag, *compressionFlag, *directMmapFlag, *repeatFlag, *undefinedFlag)

	generation, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if outPath == "" {
		return fmt.Errorf("--out is required")
	}
	archivePaths := flagSet.Args()
	if len(archivePaths) == 0 {
		return fmt.Errorf("no snapshot archives given")
	}

	snapshots, err := readArchives(archivePaths)
	if err != nil {
		return err
	}
	logger.Info("read snapshot archives",
		"archives", len(archivePaths),
		"snapshots", len(snapshots),
		"arch", generation.Arch.String())

	packed := canonicalize(logger, snapshots, generation)
	if len(packed) == 0 && len(snapshots) > 0 {
		return fmt.Errorf("no snapshot out of %d could be canonicalized", len(snapshots))
	}

	blob := snap.Build(generation.Arch, packed, generation.Build)
	output := blob
	if !generation.RawBlob {
		if output, err = snap.WrapCorpus(blob, generation.Compression); err != nil {
			return fmt.Errorf("wrapping corpus: %w", err)
		}
	}
	if err := writeAtomically(outPath, output); err != nil {
		return err
	}

	logger.Info("wrote corpus",
		"path", outPath,
		"snaps", len(packed),
		"blob_bytes", len(blob),
		"file_bytes", len(output))
	return nil
}

// newLogger builds the standard JSON logger on stderr and installs it
// as the slog default.
func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads the YAML config from the --config flag, falling
// back to SNAPCORPUS_CONFIG, falling back to built-in defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("SNAPCORPUS_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// applyFlags overlays explicitly set flags on the loaded config.
func applyFlags(cfg *config.Config, flagSet *pflag.FlagSet, archName, platform, compression, directMmap string, repeat, undefined bool) {
	if archName != "" {
		cfg.Arch = archName
	}
	if platform != "" {
		cfg.Platform = platform
	}
	if compression != "" {
		cfg.Compression = compression
	}
	if directMmap != "" {
		cfg.DirectMmap = directMmap
	}
	if flagSet.Changed("compress-repeating") {
		cfg.CompressRepeatingBytes = repeat
	}
	if flagSet.Changed("allow-undefined-end-state") {
		cfg.AllowUndefinedEndState = undefined
	}
}

// readArchives reads and concatenates the snapshot archives in
// argument order. Order is preserved end to end: it determines corpus
// record order and therefore the output bytes.
func readArchives(paths []string) ([]snapshot.Snapshot, error) {
	var snapshots []snapshot.Snapshot
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		entries, err := snapshot.ReadArchive(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", path, err)
		}
		snapshots = append(snapshots, entries...)
	}
	return snapshots, nil
}

// canonicalize snapifies every snapshot, logging and skipping the
// ones that cannot be made canonical.
func canonicalize(logger *slog.Logger, snapshots []snapshot.Snapshot, generation *config.Generation) []snapshot.Snapshot {
	packed := make([]snapshot.Snapshot, 0, len(snapshots))
	for i := range snapshots {
		canonical, err := snapify.Snapify(&snapshots[i], generation.Snapify)
		if err != nil {
			logger.Warn("skipping snapshot",
				"id", snapshots[i].ID,
				"error", err.Error())
			continue
		}
		packed = append(packed, canonical)
	}
	if skipped := len(snapshots) - len(packed); skipped > 0 {
		logger.Warn("some snapshots were skipped", "skipped", skipped, "packed", len(packed))
	}
	return packed
}

// writeAtomically writes data to path via a rename from a temp file
// in the same directory, so a crashed run never leaves a truncated
// corpus behind.
func writeAtomically(path string, data []byte) error {
	directory := filepath.Dir(path)
	temp, err := os.CreateTemp(directory, ".snap-gen-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}
