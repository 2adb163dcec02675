package asm

import "fmt"

// Reg is a portable general-purpose register. Backends map R0..R7 onto
// physical registers that are disjoint from the reserved scratch set
// (see Convention).
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7

	NumReg = 8
)

func (r Reg) String() string {
	if r < NumReg {
		return fmt.Sprintf("r%d", uint8(r))
	}
	return fmt.Sprintf("r?%d", uint8(r))
}

// VReg is a portable SIMD register. On paired-emulation targets V0..V7
// name register pairs.
type VReg uint8

const (
	V0 VReg = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7

	NumVReg = 8
)

func (v VReg) String() string {
	if v < NumVReg {
		return fmt.Sprintf("v%d", uint8(v))
	}
	return fmt.Sprintf("v?%d", uint8(v))
}
