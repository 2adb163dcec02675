package asm

// Convention carries the fixed scratch-register assignments of one backend as
// physical register numbers. Scratch registers stage memory operands and
// oversized immediates through a temporary; their contents are dead across
// encoder-call boundaries. The portable R0..R7 file never overlaps this set.
type Convention struct {
	AddrTemp uint8 // address synthesis for out-of-window displacements
	DataTemp uint8 // immediate materialization, emulation staging
	CmpLeft  uint8 // left operand staging for fused compare-and-jump
	CmpRight uint8 // right operand staging
	StackPtr uint8

	// SaveOrder is the fixed physical-register order of SaveAll; RestoreAll
	// walks it in exact reverse.
	SaveOrder []uint8
}

// IsScratch reports whether phys is one of the reserved scratch registers.
func (c Convention) IsScratch(phys uint8) bool {
	return phys == c.AddrTemp || phys == c.DataTemp ||
		phys == c.CmpLeft || phys == c.CmpRight || phys == c.StackPtr
}
