// Package power encodes the uniasm instruction set for 64-bit POWER.
// Instructions are fixed 32-bit words in either byte order. Integer compare
// results live in CR field 0 and branches test its bits; immediates and
// displacements outside the 16-bit windows are synthesized with addis/ori
// chains. The VMX unit carries the SIMD table, with the Pair256 feature
// doubling every operation across register pairs for a 256-bit view.
package power

import (
	"encoding/binary"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// Portable file on the nonvolatile r14..r21 block. r8/r9 stage compare
// operands, r11 addresses, r12 data. r1 is the ABI stack pointer.
var regMap = [asm.NumReg]uint32{14, 15, 16, 17, 18, 19, 20, 21}

const (
	scratchCmpL = 8
	scratchCmpR = 9
	scratchAddr = 11
	scratchData = 12
	stackPtr    = 1
)

var saveOrder = []uint8{14, 15, 16, 17, 18, 19, 20, 21, 8, 9, 11, 12}

// VMX scratch vectors: v31 stages memory sources, v30/v29 hold synthesized
// constants inside multi-word expansions. Pair256 mirrors v0..v7 on v16..v23.
const (
	vecScratch = 31
	vecConstA  = 30
	vecConstB  = 29
	vecConstC  = 28
	pairStride = 16
)

type divState struct {
	end     int
	w       asm.Width
	signed  bool
	quot    uint32
	divisor uint32
}

// Encoder is the POWER backend.
type Encoder struct {
	target asm.Target
	conv   asm.Convention
	buf    *asm.Buffer

	lastDiv *divState
}

// New builds a POWER encoder for the given byte order.
func New(order binary.ByteOrder, feat asm.Features) *Encoder {
	t := asm.Target{Arch: asm.PPC64, PtrWidth: asm.W64, Order: order, Features: feat}
	return &Encoder{
		target: t,
		conv: asm.Convention{
			AddrTemp:  scratchAddr,
			DataTemp:  scratchData,
			CmpLeft:   scratchCmpL,
			CmpRight:  scratchCmpR,
			StackPtr:  stackPtr,
			SaveOrder: saveOrder,
		},
		buf: asm.NewBuffer(order),
	}
}

func (e *Encoder) Target() asm.Target         { return e.target }
func (e *Encoder) Convention() asm.Convention { return e.conv }
func (e *Encoder) Buffer() *asm.Buffer        { return e.buf }

func physOf(o asm.Operand) uint32 { return regMap[o.First()] }

// dForm packs op, rt, ra and a 16-bit immediate.
func dForm(op, rt, ra uint32, imm uint16) uint32 {
	return op<<26 | rt<<21 | ra<<16 | uint32(imm)
}

// xoForm packs an opcode-31 register-register word with a 10-bit extended
// opcode: rt/rs, ra, rb.
func xoForm(rt, ra, rb, xo uint32) uint32 {
	return 31<<26 | rt<<21 | ra<<16 | rb<<11 | xo<<1
}

func fitsS16(v int64) bool { return v >= -0x8000 && v < 0x8000 }
func fitsU16(v int64) bool { return v >= 0 && v < 0x10000 }
func fitsS32(v int64) bool { return v >= -0x80000000 && v < 0x80000000 }

// sldi32 shifts reg left by 32 bits in place (rldicr r, r, 32, 31).
func sldi32(r uint32) uint32 {
	return 0x78000000 | r<<21 | r<<16 | 0x07C6
}

// immTo materializes v into reg: one word inside the 16-bit window, an
// addis/ori pair for 32-bit values, and a five-word chain for full 64-bit.
func (e *Encoder) immTo(reg uint32, v int64) {
	switch {
	case fitsS16(v):
		e.buf.Word(dForm(14, reg, 0, uint16(v))) // addi reg, 0, v
	case fitsS32(v):
		e.buf.Word(dForm(15, reg, 0, uint16(v>>16))) // addis
		if lo := uint16(v); lo != 0 {
			e.buf.Word(dForm(24, reg, reg, lo)) // ori
		}
	default:
		u := uint64(v)
		e.buf.Word(dForm(15, reg, 0, uint16(u>>48)))
		e.buf.Word(dForm(24, reg, reg, uint16(u>>32)))
		e.buf.Word(sldi32(reg))
		e.buf.Word(dForm(25, reg, reg, uint16(u>>16))) // oris
		e.buf.Word(dForm(24, reg, reg, uint16(u)))
	}
}

// memArgs resolves a memory operand to (base, disp16), synthesizing
// displacements through r11 when they miss the signed 16-bit window or, in
// the DS-form case, the 4-byte alignment its field requires.
func (e *Encoder) memArgs(m asm.Operand, dsForm bool) (uint32, uint16) {
	base := regMap[m.First()]
	disp := m.Third()
	switch m.Mode(fitsS16(disp) && (!dsForm || disp&3 == 0)) {
	case asm.ModeDirect:
		return base, 0
	case asm.ModeDisp:
		return base, uint16(disp)
	}
	e.immTo(scratchAddr, disp)
	e.buf.Word(xoForm(scratchAddr, scratchAddr, base, 266)) // add
	return scratchAddr, 0
}

// load brings a memory operand into reg. 64-bit loads are DS-form.
func (e *Encoder) load(w asm.Width, reg uint32, m asm.Operand) {
	if w == asm.W64 {
		base, disp := e.memArgs(m, true)
		e.buf.Word(dForm(58, reg, base, disp)) // ld
		return
	}
	base, disp := e.memArgs(m, false)
	e.buf.Word(dForm(32, reg, base, disp)) // lwz
}

func (e *Encoder) store(w asm.Width, reg uint32, m asm.Operand) {
	if w == asm.W64 {
		base, disp := e.memArgs(m, true)
		e.buf.Word(dForm(62, reg, base, disp)) // std
		return
	}
	base, disp := e.memArgs(m, false)
	e.buf.Word(dForm(36, reg, base, disp)) // stw
}

// srcReg stages any scalar source operand into a register.
func (e *Encoder) srcReg(w asm.Width, src asm.Operand, scratch uint32) (uint32, error) {
	switch src.Kind() {
	case asm.KindReg:
		if src.IsVector() {
			return 0, asm.ErrUnsupported
		}
		return physOf(src), nil
	case asm.KindImm:
		e.immTo(scratch, src.First())
		return scratch, nil
	case asm.KindMem:
		e.load(w, scratch, src)
		return scratch, nil
	}
	return 0, asm.ErrUnsupported
}

func errCombo(op string, dst, src asm.Operand) error {
	return fmt.Errorf("power %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}
