// Package mips encodes the uniasm instruction set for MIPS32 and MIPS64.
// Every instruction is one 32-bit word; memory and immediate operands outside
// the 16-bit windows are synthesized into scratch registers with lui/ori
// pairs before the consumer word. The Release6 feature flag selects between
// the classic HI/LO multiply-divide unit and the r6 three-operand forms.
package mips

import (
	"encoding/binary"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// Portable register file on $a0-$t3. $t6/$t7 stage addresses and data,
// $t8/$t9 stage compare operands and booleans.
var regMap = [asm.NumReg]uint32{4, 5, 6, 7, 8, 9, 10, 11}

const (
	regZero     = 0
	scratchAddr = 14 // $t6
	scratchData = 15 // $t7
	scratchCmpL = 24 // $t8
	scratchCmpR = 25 // $t9
	stackPtr    = 29
	linkReg     = 31
)

var saveOrder = []uint8{4, 5, 6, 7, 8, 9, 10, 11, 14, 15, 24, 25, 31}

type divState struct {
	end      int
	w        asm.Width
	signed   bool
	dividend uint32 // r6: original dividend preserved in $t8
	divisor  uint32
}

// Encoder is the MIPS backend. Word is the register/pointer width (W32 for
// MIPS32, W64 for MIPS64).
type Encoder struct {
	target asm.Target
	conv   asm.Convention
	buf    *asm.Buffer

	lastDiv *divState
}

// New builds a MIPS encoder. MIPS is bi-endian, so the byte order is part of
// the target selection.
func New(ptr asm.Width, order binary.ByteOrder, feat asm.Features) *Encoder {
	arch := asm.MIPS32
	if ptr == asm.W64 {
		arch = asm.MIPS64
	}
	t := asm.Target{Arch: arch, PtrWidth: ptr, Order: order, Features: feat}
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

func (e *Encoder) r6() bool   { return e.target.Features.Release6 }
func (e *Encoder) wide() bool { return e.target.PtrWidth == asm.W64 }
func (e *Encoder) ptrSz() int64 {
	if e.wide() {
		return 8
	}
	return 4
}

func physOf(o asm.Operand) uint32 { return regMap[o.First()] }

// rType packs a SPECIAL-class word: rs, rt, rd, sa, funct.
func rType(funct, rd, rs, rt, sa uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | sa<<6 | funct
}

// iType packs an immediate word: op, rs, rt, imm16.
func iType(op, rt, rs uint32, imm uint16) uint32 {
	return op<<26 | rs<<21 | rt<<16 | uint32(imm)
}

const nop = uint32(0)

func fitsS16(v int64) bool { return v >= -0x8000 && v < 0x8000 }
func fitsU16(v int64) bool { return v >= 0 && v < 0x10000 }

// addReg returns the pointer-width register add funct.
func (e *Encoder) addFunct() uint32 {
	if e.wide() {
		return 0x2D // daddu
	}
	return 0x21 // addu
}

// immTo materializes v into reg. One word for 16-bit windows, a lui/ori pair
// for 32-bit values, and the classic six-word lui/ori/dsll chain for full
// 64-bit values on MIPS64.
func (e *Encoder) immTo(reg uint32, v int64) error {
	switch {
	case fitsS16(v):
		e.buf.Word(iType(0x09, reg, regZero, uint16(v))) // addiu
	case fitsU16(v):
		e.buf.Word(iType(0x0D, reg, regZero, uint16(v))) // ori
	case v >= -0x80000000 && v < 0x80000000:
		e.buf.Word(iType(0x0F, reg, regZero, uint16(uint32(v)>>16))) // lui
		if lo := uint16(v); lo != 0 {
			e.buf.Word(iType(0x0D, reg, reg, lo)) // ori
		}
	default:
		if !e.wide() {
			return fmt.Errorf("mips32 immediate %#x: %w", v, asm.ErrRange)
		}
		u := uint64(v)
		e.buf.Word(iType(0x0F, reg, regZero, uint16(u>>48)))
		e.buf.Word(iType(0x0D, reg, reg, uint16(u>>32)))
		e.buf.Word(rType(0x38, reg, 0, reg, 16)) // dsll
		e.buf.Word(iType(0x0D, reg, reg, uint16(u>>16)))
		e.buf.Word(rType(0x38, reg, 0, reg, 16))
		e.buf.Word(iType(0x0D, reg, reg, uint16(u)))
	}
	return nil
}

// memArgs resolves a memory operand to (base, disp16). Displacements outside
// the signed 16-bit window are synthesized into $t6 first.
func (e *Encoder) memArgs(m asm.Operand) (uint32, uint16, error) {
	base := regMap[m.First()]
	disp := m.Third()
	switch m.Mode(fitsS16(disp)) {
	case asm.ModeDirect:
		return base, 0, nil
	case asm.ModeDisp:
		return base, uint16(disp), nil
	}
	if err := e.immTo(scratchAddr, disp); err != nil {
		return 0, 0, err
	}
	e.buf.Word(rType(e.addFunct(), scratchAddr, scratchAddr, base, 0))
	return scratchAddr, 0, nil
}

// loadOps / storeOps keyed by width.
func (e *Encoder) loadOp(w asm.Width) uint32 {
	if w == asm.W64 {
		return 0x37 // ld
	}
	return 0x23 // lw
}

func (e *Encoder) storeOp(w asm.Width) uint32 {
	if w == asm.W64 {
		return 0x3F // sd
	}
	return 0x2B // sw
}

// load stages a memory operand into reg.
func (e *Encoder) load(w asm.Width, reg uint32, m asm.Operand) error {
	base, disp, err := e.memArgs(m)
	if err != nil {
		return err
	}
	e.buf.Word(iType(e.loadOp(w), reg, base, disp))
	return nil
}

func (e *Encoder) store(w asm.Width, reg uint32, m asm.Operand) error {
	base, disp, err := e.memArgs(m)
	if err != nil {
		return err
	}
	e.buf.Word(iType(e.storeOp(w), reg, base, disp))
	return nil
}

// srcReg stages any source operand into a register, materializing memory and
// immediate operands through the given scratch.
func (e *Encoder) srcReg(w asm.Width, src asm.Operand, scratch uint32) (uint32, error) {
	switch src.Kind() {
	case asm.KindReg:
		if src.IsVector() {
			return 0, asm.ErrUnsupported
		}
		return physOf(src), nil
	case asm.KindImm:
		if err := e.immTo(scratch, src.First()); err != nil {
			return 0, err
		}
		return scratch, nil
	case asm.KindMem:
		if err := e.load(w, scratch, src); err != nil {
			return 0, err
		}
		return scratch, nil
	}
	return 0, asm.ErrUnsupported
}

func errCombo(op string, dst, src asm.Operand) error {
	return fmt.Errorf("mips %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}
