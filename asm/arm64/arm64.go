// Package arm64 encodes the uniasm instruction set for A64. Immediates
// build with movz/movk chains, memory displacements ride the scaled
// unsigned 12-bit field or synthesize through x16, and the NEON unit
// carries the 128-bit SIMD table for both element widths.
package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// Portable file on the callee-saved x19..x26 block. x16/x17 stage addresses
// and data, x9/x10 compare operands. x30 is the link register.
var regMap = [asm.NumReg]uint32{19, 20, 21, 22, 23, 24, 25, 26}

const (
	scratchCmpL = 9
	scratchCmpR = 10
	scratchAddr = 16
	scratchData = 17
	regLink     = 30
	regZR       = 31
	regSP       = 31 // SP and XZR share the encoding; context disambiguates
)

var saveOrder = []uint8{19, 20, 21, 22, 23, 24, 25, 26, 9, 10, 16, 17, 30}

const vecScratch = 31

type divState struct {
	end      int
	w        asm.Width
	signed   bool
	quot     uint32
	divisor  uint32
	dividend uint32
}

// Encoder is the A64 backend.
type Encoder struct {
	target asm.Target
	conv   asm.Convention
	buf    *asm.Buffer

	lastDiv *divState
}

func New(feat asm.Features) *Encoder {
	t := asm.Target{Arch: asm.ARM64, PtrWidth: asm.W64, Order: binary.LittleEndian, Features: feat}
	return &Encoder{
		target: t,
		conv: asm.Convention{
			AddrTemp:  scratchAddr,
			DataTemp:  scratchData,
			CmpLeft:   scratchCmpL,
			CmpRight:  scratchCmpR,
			StackPtr:  regSP,
			SaveOrder: saveOrder,
		},
		buf: asm.NewBuffer(binary.LittleEndian),
	}
}

func (e *Encoder) Target() asm.Target         { return e.target }
func (e *Encoder) Convention() asm.Convention { return e.conv }
func (e *Encoder) Buffer() *asm.Buffer        { return e.buf }

func physOf(o asm.Operand) uint32 { return regMap[o.First()] }

func sfBit(w asm.Width) uint32 {
	if w == asm.W64 {
		return 1 << 31
	}
	return 0
}

// immTo materializes v into rd with a movz/movk chain, or the movn-seeded
// mirror when the value is mostly ones.
func (e *Encoder) immTo(w asm.Width, rd uint32, v int64) {
	u := uint64(v)
	chunks := 4
	if w == asm.W32 {
		u &= 0xFFFFFFFF
		chunks = 2
	}
	ones, zeros := 0, 0
	for i := 0; i < chunks; i++ {
		switch (u >> (16 * i)) & 0xFFFF {
		case 0:
			zeros++
		case 0xFFFF:
			ones++
		}
	}
	sf := sfBit(w)
	if ones > zeros {
		// Seed with movn on the first non-ones chunk.
		seeded := false
		for i := 0; i < chunks; i++ {
			c := uint32(u>>(16*i)) & 0xFFFF
			if !seeded {
				if c == 0xFFFF && i < chunks-1 {
					continue
				}
				e.buf.Word(sf | 0x12800000 | uint32(i)<<21 | (^c&0xFFFF)<<5 | rd) // movn
				seeded = true
				continue
			}
			if c != 0xFFFF {
				e.buf.Word(sf | 0x72800000 | uint32(i)<<21 | c<<5 | rd) // movk
			}
		}
		return
	}
	seeded := false
	for i := 0; i < chunks; i++ {
		c := uint32(u>>(16*i)) & 0xFFFF
		if !seeded {
			if c == 0 && i < chunks-1 && u != 0 {
				continue
			}
			e.buf.Word(sf | 0x52800000 | uint32(i)<<21 | c<<5 | rd) // movz
			seeded = true
			continue
		}
		if c != 0 {
			e.buf.Word(sf | 0x72800000 | uint32(i)<<21 | c<<5 | rd) // movk
		}
	}
}

// memBase resolves a memory operand to a base register and a scaled
// unsigned offset for the ldr/str immediate forms. Anything outside the
// window lands in x16 first.
func (e *Encoder) memBase(m asm.Operand, scale int64) (uint32, uint32) {
	base := regMap[m.First()]
	disp := m.Third()
	switch m.Mode(disp >= 0 && disp%scale == 0 && disp/scale < 4096) {
	case asm.ModeDirect:
		return base, 0
	case asm.ModeDisp:
		return base, uint32(disp / scale)
	}
	e.immTo(asm.W64, scratchAddr, disp)
	// add x16, x16, base
	e.buf.Word(0x8B000000 | base<<16 | scratchAddr<<5 | scratchAddr)
	return scratchAddr, 0
}

// load brings a memory operand into rt, zero-extending 32-bit loads.
func (e *Encoder) load(w asm.Width, rt uint32, m asm.Operand) {
	if w == asm.W64 {
		base, off := e.memBase(m, 8)
		e.buf.Word(0xF9400000 | off<<10 | base<<5 | rt)
		return
	}
	base, off := e.memBase(m, 4)
	e.buf.Word(0xB9400000 | off<<10 | base<<5 | rt)
}

func (e *Encoder) store(w asm.Width, rt uint32, m asm.Operand) {
	if w == asm.W64 {
		base, off := e.memBase(m, 8)
		e.buf.Word(0xF9000000 | off<<10 | base<<5 | rt)
		return
	}
	base, off := e.memBase(m, 4)
	e.buf.Word(0xB9000000 | off<<10 | base<<5 | rt)
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
		e.immTo(w, scratch, src.First())
		return scratch, nil
	case asm.KindMem:
		e.load(w, scratch, src)
		return scratch, nil
	}
	return 0, asm.ErrUnsupported
}

func errCombo(op string, dst, src asm.Operand) error {
	return fmt.Errorf("arm64 %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}
