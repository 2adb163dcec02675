package asm

import (
	"encoding/binary"
	"fmt"
)

// Arch identifies a target instruction-set architecture.
type Arch uint8

const (
	AMD64 Arch = iota
	MIPS32
	MIPS64
	PPC64
	ARM64
)

func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case MIPS32:
		return "mips32"
	case MIPS64:
		return "mips64"
	case PPC64:
		return "ppc64"
	case ARM64:
		return "arm64"
	}
	return fmt.Sprintf("arch(%d)", uint8(a))
}

// Features is the target-capability descriptor consulted at encoder
// construction. It replaces conditional compilation: the same process can
// hold encoders for an r5 and an r6 MIPS at once.
type Features struct {
	Release6  bool // MIPS r6 encodings (three-operand mul/div, no HI/LO)
	AVXLevel  int  // 0 = SSE2 only, 1 = AVX float 256, 2 = AVX2 integer 256
	Pair256   bool // POWER: emulate 256-bit vectors as VMX register pairs
	FastFCTRL bool // x86: rounding control preset once, conversions skip the reload
}

// Target selects one per-architecture encoding table.
type Target struct {
	Arch     Arch
	PtrWidth Width
	Order    binary.ByteOrder
	Features Features
}

func (t Target) String() string { return t.Arch.String() }

// VectorBytes returns the SIMD register width in bytes for the target.
func (t Target) VectorBytes() int {
	switch t.Arch {
	case AMD64:
		if t.Features.AVXLevel > 0 {
			return 32
		}
		return 16
	case PPC64:
		if t.Features.Pair256 {
			return 32
		}
		return 16
	}
	return 16
}
