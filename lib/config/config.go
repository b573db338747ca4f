// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for corpus generation.
//
// Configuration is loaded from a single YAML file specified by:
//   - SNAPCORPUS_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Command-line flags
// override config values; the config file overrides built-in defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/snapcorpus/lib/arch"
	"github.com/bureau-foundation/snapcorpus/lib/snap"
	"github.com/bureau-foundation/snapcorpus/lib/snapify"
	"github.com/bureau-foundation/snapcorpus/lib/snapshot"
)

// Config is the corpus generation configuration.
type Config struct {
	// Arch is the target architecture name ("x86_64" or "aarch64").
	Arch string `yaml:"arch"`

	// Platform selects which end state to keep when a snapshot has
	// several. "any" accepts the first match.
	Platform string `yaml:"platform"`

	// Compression is the at-rest container algorithm: "none", "lz4",
	// or "zstd". "raw" writes the bare blob with no container.
	Compression string `yaml:"compression"`

	// CompressRepeatingBytes enables run-length classification of
	// constant-byte memory runs.
	CompressRepeatingBytes bool `yaml:"compress_repeating_bytes"`

	// DirectMmap controls page-aligned literal storage of executable
	// content: "auto" (architecture default), "on", or "off".
	DirectMmap string `yaml:"direct_mmap"`

	// AllowUndefinedEndState accepts snapshots whose only end state
	// is the explicit undefined marker.
	AllowUndefinedEndState bool `yaml:"allow_undefined_end_state"`
}

// Default returns the built-in configuration defaults. The
// architecture has no default: it must come from the config file or a
// flag.
func Default() *Config {
	return &Config{
		Platform:               "any",
		Compression:            "zstd",
		CompressRepeatingBytes: true,
		DirectMmap:             "auto",
	}
}

// Load loads configuration from the SNAPCORPUS_CONFIG environment
// variable. Fails when the variable is not set; use LoadFile with an
// explicit path instead.
func Load() (*Config, error) {
	path := os.Getenv("SNAPCORPUS_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SNAPCORPUS_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging
// over the built-in defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Generation is a fully resolved configuration: enum strings parsed,
// the direct-mmap tri-state collapsed against the architecture
// default.
type Generation struct {
	Arch        arch.ID
	Snapify     snapify.Options
	Build       snap.BuildOptions
	Compression snap.CompressionTag

	// RawBlob writes the bare relocatable blob with no container.
	RawBlob bool
}

// Resolve validates the configuration and resolves it into concrete
// generation options.
func (c *Config) Resolve() (*Generation, error) {
	if c.Arch == "" {
		return nil, fmt.Errorf("no target architecture configured")
	}
	id, err := arch.ParseID(c.Arch)
	if err != nil {
		return nil, err
	}
	descriptor := arch.MustByID(id)

	platform, err := snapshot.ParsePlatform(c.Platform)
	if err != nil {
		return nil, err
	}

	var directMmap bool
	switch c.DirectMmap {
	case "", "auto":
		directMmap = descriptor.SupportDirectMmapDefault
	case "on":
		directMmap = true
	case "off":
		directMmap = false
	default:
		return nil, fmt.Errorf("direct_mmap must be auto, on, or off; got %q", c.DirectMmap)
	}

	generation := &Generation{
		Arch: id,
		Snapify: snapify.Options{
			AllowUndefinedEndState: c.AllowUndefinedEndState,
			Platform:               platform,
			CompressRepeatingBytes: c.CompressRepeatingBytes,
			SupportDirectMmap:      directMmap,
		},
		Build: snap.BuildOptions{
			CompressRepeatingBytes: c.CompressRepeatingBytes,
			SupportDirectMmap:      directMmap,
		},
	}

	if c.Compression == "raw" {
		generation.RawBlob = true
		return generation, nil
	}
	tag, err := snap.ParseCompressionTag(c.Compression)
	if err != nil {
		return nil, err
	}
	generation.Compression = tag
	return generation, nil
}
