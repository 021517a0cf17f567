// Package simd detects the vector instruction set of the host and derives the
// SIMD lane width used to pack per-object float32 state.
//
// # Lane Widths
//
//   - AVX-512: 16 float32 lanes (512-bit registers)
//   - AVX2: 8 float32 lanes (256-bit registers)
//   - NEON, SVE2, Generic: 4 float32 lanes (128-bit registers)
//
// SVE2 is reported as 4 lanes because the vector length is only known at
// runtime and 128 bits is the architectural minimum.
//
// Set SOAMEM_SIMD=generic|neon|sve2|avx2|avx512 to force a specific ISA (the
// override is ignored when the CPU does not support it).
package simd
