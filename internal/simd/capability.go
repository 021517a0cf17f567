package simd

import (
	"os"
	"runtime"
	"strings"
)

// ISA represents a SIMD instruction set architecture.
type ISA uint8

const (
	// Generic represents the scalar fallback (packed as 128-bit lanes).
	Generic ISA = iota
	// NEON represents ARM64 NEON (128-bit SIMD, ASIMD).
	NEON
	// SVE2 represents ARM64 SVE2 (scalable vectors, 128-2048 bit).
	SVE2
	// AVX2 represents x86-64 AVX2 (256-bit SIMD with FMA).
	AVX2
	// AVX512 represents x86-64 AVX-512 (512-bit SIMD).
	AVX512
)

// EnvOverride names the environment variable that forces an ISA.
const EnvOverride = "SOAMEM_SIMD"

// String returns the string representation of an ISA.
func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case NEON:
		return "neon"
	case SVE2:
		return "sve2"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// Lanes returns the number of float32 values one register of this ISA holds.
func (i ISA) Lanes() int {
	switch i {
	case AVX512:
		return 16
	case AVX2:
		return 8
	default:
		return 4
	}
}

// ParseISA parses a string into an ISA value.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic":
		return Generic, true
	case "neon":
		return NEON, true
	case "sve2":
		return SVE2, true
	case "avx2":
		return AVX2, true
	case "avx512":
		return AVX512, true
	default:
		return Generic, false
	}
}

// Package-level state, initialized once by the platform init functions.
var (
	activeISA   ISA
	hasOverride bool

	hasASIMD   bool // ARM64 NEON
	hasSVE2    bool // ARM64 SVE2
	hasAVX2    bool // x86-64 AVX2 + FMA
	hasAVX512F bool // x86-64 AVX-512 Foundation
)

func initCapabilities() {
	if override := os.Getenv(EnvOverride); override != "" {
		if isa, ok := ParseISA(override); ok {
			hasOverride = true
			if isISAAvailable(isa) {
				activeISA = isa
				return
			}
			// Unsupported override, fall through to auto-detection.
		}
	}

	activeISA = selectBestISA()
}

func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return hasASIMD
	case SVE2:
		return hasSVE2
	case AVX2:
		return hasAVX2
	case AVX512:
		return hasAVX512F
	default:
		return false
	}
}

func selectBestISA() ISA {
	switch runtime.GOARCH {
	case "arm64":
		// Apple emulates SVE2; NEON is the faster path there.
		if hasSVE2 && runtime.GOOS != "darwin" {
			return SVE2
		}
		if hasASIMD {
			return NEON
		}
	case "amd64":
		if hasAVX512F {
			return AVX512
		}
		if hasAVX2 {
			return AVX2
		}
	}
	return Generic
}

// ActiveISA returns the currently active ISA.
func ActiveISA() ISA {
	return activeISA
}

// IsOverridden returns true if SOAMEM_SIMD was set.
func IsOverridden() bool {
	return hasOverride
}

// LaneWidth returns the float32 lane count of the active ISA.
func LaneWidth() int {
	return activeISA.Lanes()
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// RoundUp rounds n up to the next multiple of laneWidth.
// laneWidth must be a power of two.
func RoundUp(n, laneWidth int) int {
	if n <= 0 {
		return 0
	}
	mask := laneWidth - 1
	return (n + mask) &^ mask
}

// LaneGroups returns how many lane groups are needed to hold n slots.
func LaneGroups(n, laneWidth int) int {
	return RoundUp(n, laneWidth) / laneWidth
}
