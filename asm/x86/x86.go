// Package x86 encodes the uniasm instruction set for x86-64: variable-length
// REX-prefixed BASE instructions, SSE2 128-bit SIMD, and VEX-encoded 256-bit
// SIMD when the target features enable AVX.
package x86

import (
	"encoding/binary"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// REX prefix bits.
const (
	rex  = 0x40
	rexW = 0x08 // 64-bit operand size
	rexR = 0x04 // ModRM reg extension
	rexX = 0x02 // SIB index extension
	rexB = 0x01 // ModRM r/m, SIB base or opcode reg extension
)

// physReg is one hardware register: the 3-bit ModRM/SIB code plus the REX
// extension bit.
type physReg struct {
	name string
	bits byte // low 3 bits for ModRM/SIB
	ext  byte // 1 for r8..r15
}

func phys(n uint8) physReg {
	return physReg{name: regNames[n], bits: n & 7, ext: n >> 3}
}

var regNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Portable register file. rax/rcx/rdx stay scratch so that divide, shift
// counts and immediate staging never collide with user registers.
var regMap = [asm.NumReg]uint8{
	3,  // R0 -> rbx
	6,  // R1 -> rsi
	7,  // R2 -> rdi
	8,  // R3 -> r8
	9,  // R4 -> r9
	10, // R5 -> r10
	11, // R6 -> r11
	13, // R7 -> r13
}

const (
	scratchData = 0  // rax: immediate staging, divide dividend
	scratchCmpL = 1  // rcx: shift counts
	scratchCmpR = 2  // rdx: divide upper half / remainder
	stackPtr    = 4  // rsp
	scratchAddr = 14 // r14: address synthesis
	scratchVec  = 15 // xmm15: SIMD staging
)

// saveOrder is the fixed SaveAll spill order: every general-purpose register
// except rsp, scratch included, so a SaveAll/RestoreAll bracket leaves the
// whole file untouched.
var saveOrder = []uint8{0, 1, 2, 3, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

type divState struct {
	end    int // buffer length right after the divide expansion
	w      asm.Width
	signed bool
	src    asm.Operand
}

// Encoder is the x86-64 backend. It implements asm.Encoder and asm.Vector.
type Encoder struct {
	target asm.Target
	conv   asm.Convention
	buf    *asm.Buffer

	lastDiv *divState
}

// New builds an x86-64 encoder emitting into a fresh little-endian buffer.
func New(feat asm.Features) *Encoder {
	t := asm.Target{
		Arch:     asm.AMD64,
		PtrWidth: asm.W64,
		Order:    binary.LittleEndian,
		Features: feat,
	}
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
		buf: asm.NewBuffer(binary.LittleEndian),
	}
}

func (e *Encoder) Target() asm.Target         { return e.target }
func (e *Encoder) Convention() asm.Convention { return e.conv }
func (e *Encoder) Buffer() *asm.Buffer        { return e.buf }

// physOf maps a portable register operand to its hardware register number.
func physOf(o asm.Operand) uint8 { return regMap[o.First()] }

// rexFor assembles the REX prefix for reg/rm and emits it when required.
func (e *Encoder) rexFor(w asm.Width, reg, rm uint8) {
	p := byte(0)
	if w == asm.W64 {
		p |= rexW
	}
	p |= (reg >> 3) << 2 // rexR
	p |= rm >> 3         // rexB
	if p != 0 {
		e.buf.Byte(rex | p)
	}
}

func modRM(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | rm&7 }

// opRR emits op with a register-direct ModRM.
func (e *Encoder) opRR(w asm.Width, op []byte, reg, rm uint8) {
	e.rexFor(w, reg, rm)
	e.buf.Byte(op...)
	e.buf.Byte(modRM(3, reg, rm))
}

// memArgs resolves a memory operand into an encodable (base, disp) pair.
// Displacements beyond the 32-bit window are synthesized into the address
// temporary first: mov r14, disp; add r14, base; access [r14].
func (e *Encoder) memArgs(m asm.Operand) (base uint8, disp int64) {
	base = regMap[m.First()]
	disp = m.Third()
	switch m.Mode(disp >= -0x80000000 && disp < 0x80000000) {
	case asm.ModeDirect:
		return base, 0
	case asm.ModeDisp:
		return base, disp
	}
	e.movImm(asm.W64, scratchAddr, disp)
	e.opRR(asm.W64, []byte{0x01}, base, scratchAddr) // add r14, base
	return scratchAddr, 0
}

// opRM emits op with a [base+disp] ModRM, reg in the register field. The
// caller resolves the memory operand through memArgs first so that any
// synthesis words precede the consumer instruction.
func (e *Encoder) opRM(w asm.Width, op []byte, reg, base uint8, disp int64) {
	e.rexFor(w, reg, base)
	e.buf.Byte(op...)
	e.modRMMem(reg, base, disp)
}

// movImm materializes an immediate into a hardware register.
func (e *Encoder) movImm(w asm.Width, dst uint8, v int64) {
	if w == asm.W64 && (v < -0x80000000 || v >= 0x80000000) {
		// mov r64, imm64
		p := byte(rex | rexW)
		p |= dst >> 3
		e.buf.Byte(p, 0xB8+dst&7)
		e.buf.Word64(uint64(v))
		return
	}
	// mov r/m, imm32 (sign-extended under REX.W)
	e.rexFor(w, 0, dst)
	e.buf.Byte(0xC7, modRM(3, 0, dst))
	e.buf.Word(uint32(v))
}

func errCombo(op string, dst, src asm.Operand) error {
	return fmt.Errorf("x86 %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}
