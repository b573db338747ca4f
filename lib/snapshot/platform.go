// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import "fmt"

// Platform identifies a concrete microarchitecture a snapshot end
// state was observed on. End-state behavior can differ between
// microarchitectures of the same ISA, so end states are tagged with
// the platforms they are valid for.
type Platform uint32

const (
	// PlatformAny matches every platform. Used as a canonicalization
	// option value, never as an end-state tag.
	PlatformAny Platform = iota
	// PlatformIntelSkylake is Intel Skylake and derivatives.
	PlatformIntelSkylake
	// PlatformIntelHaswell is Intel Haswell and Broadwell.
	PlatformIntelHaswell
	// PlatformIntelIcelake is Intel Ice Lake server parts.
	PlatformIntelIcelake
	// PlatformAmdRome is AMD Zen 2.
	PlatformAmdRome
	// PlatformAmdMilan is AMD Zen 3.
	PlatformAmdMilan
	// PlatformArmNeoverseN1 is Arm Neoverse N1.
	PlatformArmNeoverseN1
	// PlatformAmpereOne is AmpereOne.
	PlatformAmpereOne

	numPlatforms
)

var platformNames = map[Platform]string{
	PlatformAny:           "any",
	PlatformIntelSkylake:  "intel-skylake",
	PlatformIntelHaswell:  "intel-haswell",
	PlatformIntelIcelake:  "intel-icelake",
	PlatformAmdRome:       "amd-rome",
	PlatformAmdMilan:      "amd-milan",
	PlatformArmNeoverseN1: "arm-neoverse-n1",
	PlatformAmpereOne:     "ampere-one",
}

// String returns the canonical lower-case platform name.
func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(p))
}

// ParsePlatform parses a platform name as produced by
// Platform.String.
func ParsePlatform(name string) (Platform, error) {
	for platform, platformName := range platformNames {
		if platformName == name {
			return platform, nil
		}
	}
	return PlatformAny, fmt.Errorf("unknown platform: %q", name)
}

// PlatformSet is a bit set of platforms. The zero value is the empty
// set, which on an end state means "valid on any platform".
type PlatformSet uint64

// Add returns the set with platform p added.
func (s PlatformSet) Add(p Platform) PlatformSet {
	return s | 1<<p
}

// Has reports whether the set contains platform p.
func (s PlatformSet) Has(p Platform) bool {
	return s&(1<<p) != 0
}

// Empty reports whether the set contains no platforms.
func (s PlatformSet) Empty() bool {
	return s == 0
}
