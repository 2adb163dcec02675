package power

import (
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// VMX words. The unit is 32-bit-element only: F64 has no encoding here and
// reports ErrUnsupported. Under Pair256 every operation is emitted twice,
// once on v0..v7 and once on the v16..v23 mirror, with memory operands
// offset by 16 bytes for the high half.

// vxForm packs the three-register VX word with an 11-bit extended opcode.
func vxForm(vd, va, vb, xo uint32) uint32 {
	return 4<<26 | vd<<21 | va<<16 | vb<<11 | xo
}

// vaForm packs the four-register VA word: vd = va*vc + vb under vmaddfp.
func vaForm(vd, va, vb, vc, xo uint32) uint32 {
	return 4<<26 | vd<<21 | va<<16 | vb<<11 | vc<<6 | xo
}

const (
	xoVaddfp    = 10
	xoVsubfp    = 74
	xoVmaddfp   = 46
	xoVnmsubfp  = 47
	xoVrefp     = 266
	xoVrsqrtefp = 330
	xoVminfp    = 1098
	xoVmaxfp    = 1034
	xoVminsw    = 898
	xoVmaxsw    = 386
	xoVand      = 1028
	xoVor       = 1156
	xoVxor      = 1220
	xoVadduwm   = 128
	xoVsubuwm   = 1152
	xoVslw      = 388
	xoVsrw      = 708
	xoVspltisw  = 908
	xoVcfsx     = 842
	xoVctsxs    = 970
	xoVcmpeqfp  = 198
	xoVcmpgtfp  = 710
	xoVcmpequw  = 134
	xoVcmpgtsw  = 902
	xoLvx       = 103
	xoStvx      = 231
)

// vecMemStage holds memory sources while v31..v29 carry intermediates.
const vecMemStage = 27

// VectorBytes reports 32 when register pairing doubles the VMX width.
func (e *Encoder) VectorBytes() int {
	if e.target.Features.Pair256 {
		return 32
	}
	return 16
}

func (e *Encoder) lanes() []uint32 {
	if e.target.Features.Pair256 {
		return []uint32{0, pairStride}
	}
	return []uint32{0}
}

func errVec(op string, dst, src asm.Operand) error {
	return fmt.Errorf("vmx %s %s, %s: %w", op, dst, src, asm.ErrUnsupported)
}

// vecLoadStore emits lvx/stvx. The index form has no displacement field, so
// the offset always rides in r11.
func (e *Encoder) vecLoadStore(vr uint32, m asm.Operand, disp int64, store bool) {
	e.immTo(scratchAddr, disp)
	xo := uint32(xoLvx)
	if store {
		xo = xoStvx
	}
	e.buf.Word(xoForm(vr, regMap[m.First()], scratchAddr, xo))
}

// splatFloat builds the small float constant v (an exact power-of-two
// fraction of a 5-bit integer) in vr via vspltisw and vcfsx.
func (e *Encoder) splatFloat(vr, n, scale uint32) {
	e.buf.Word(vxForm(vr, n, 0, xoVspltisw))
	e.buf.Word(vxForm(vr, scale, vr, xoVcfsx))
}

// zero clears vr.
func (e *Encoder) zero(vr uint32) {
	e.buf.Word(vxForm(vr, vr, vr, xoVxor))
}

// vecOperands validates the dst register and resolves src per lane: vector
// registers map directly, memory sources load into the staging vector.
func (e *Encoder) vecOperands(name string, dst, src asm.Operand, lane uint32) (d, s uint32, err error) {
	if dst.Kind() != asm.KindReg || !dst.IsVector() {
		return 0, 0, errVec(name, dst, src)
	}
	d = uint32(dst.First()) + lane
	switch {
	case src.Kind() == asm.KindReg && src.IsVector():
		return d, uint32(src.First()) + lane, nil
	case src.Kind() == asm.KindMem && !src.IsVector():
		e.vecLoadStore(vecMemStage, src, src.Third()+int64(lane), false)
		return d, vecMemStage, nil
	}
	return 0, 0, errVec(name, dst, src)
}

// vecVX is the plain three-register dispatch across lanes, with optional
// operand swap for the greater-than/less-than pairing.
func (e *Encoder) vecVX(name string, xo map[asm.Elem]uint32, el asm.Elem, dst, src asm.Operand, swap bool) error {
	op, ok := xo[el]
	if !ok {
		return errVec(name, dst, src)
	}
	for _, lane := range e.lanes() {
		d, s, err := e.vecOperands(name, dst, src, lane)
		if err != nil {
			return err
		}
		va, vb := d, s
		if swap {
			va, vb = s, d
		}
		e.buf.Word(vxForm(d, va, vb, op))
	}
	return nil
}

var (
	vaddXO = map[asm.Elem]uint32{asm.F32: xoVaddfp, asm.I32: xoVadduwm}
	vsubXO = map[asm.Elem]uint32{asm.F32: xoVsubfp, asm.I32: xoVsubuwm}
	vminXO = map[asm.Elem]uint32{asm.F32: xoVminfp, asm.I32: xoVminsw}
	vmaxXO = map[asm.Elem]uint32{asm.F32: xoVmaxfp, asm.I32: xoVmaxsw}
	vandXO = map[asm.Elem]uint32{asm.F32: xoVand, asm.I32: xoVand, asm.F64: xoVand}
	vorrXO = map[asm.Elem]uint32{asm.F32: xoVor, asm.I32: xoVor, asm.F64: xoVor}
	vxorXO = map[asm.Elem]uint32{asm.F32: xoVxor, asm.I32: xoVxor, asm.F64: xoVxor}
	vceqXO = map[asm.Elem]uint32{asm.F32: xoVcmpeqfp, asm.I32: xoVcmpequw}
	vcgtXO = map[asm.Elem]uint32{asm.F32: xoVcmpgtfp, asm.I32: xoVcmpgtsw}
)

// VMov moves between vector registers and memory; register moves ride on
// vor with both sources equal.
func (e *Encoder) VMov(el asm.Elem, dst, src asm.Operand) error {
	for _, lane := range e.lanes() {
		switch {
		case dst.Kind() == asm.KindReg && dst.IsVector():
			d := uint32(dst.First()) + lane
			if src.Kind() == asm.KindReg && src.IsVector() {
				s := uint32(src.First()) + lane
				e.buf.Word(vxForm(d, s, s, xoVor))
				continue
			}
			if src.Kind() == asm.KindMem && !src.IsVector() {
				e.vecLoadStore(d, src, src.Third()+int64(lane), false)
				continue
			}
			return errVec("vmov", dst, src)
		case dst.Kind() == asm.KindMem && !dst.IsVector() &&
			src.Kind() == asm.KindReg && src.IsVector():
			e.vecLoadStore(uint32(src.First())+lane, dst, dst.Third()+int64(lane), true)
		default:
			return errVec("vmov", dst, src)
		}
	}
	return nil
}

func (e *Encoder) VAdd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vadd", vaddXO, el, dst, src, false)
}

func (e *Encoder) VSub(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vsub", vsubXO, el, dst, src, false)
}

// VMul has no plain VMX multiply: it is vmaddfp against a zeroed addend.
func (e *Encoder) VMul(el asm.Elem, dst, src asm.Operand) error {
	if el != asm.F32 {
		return errVec("vmul", dst, src)
	}
	for _, lane := range e.lanes() {
		d, s, err := e.vecOperands("vmul", dst, src, lane)
		if err != nil {
			return err
		}
		e.zero(vecConstB)
		e.buf.Word(vaForm(d, d, vecConstB, s, xoVmaddfp))
	}
	return nil
}

// VDiv synthesizes division from the reciprocal estimate with one
// Newton-Raphson refinement: y1 = y0 + y0*(1 - s*y0), then dst*y1.
func (e *Encoder) VDiv(el asm.Elem, dst, src asm.Operand) error {
	if el != asm.F32 {
		return errVec("vdiv", dst, src)
	}
	for _, lane := range e.lanes() {
		d, s, err := e.vecOperands("vdiv", dst, src, lane)
		if err != nil {
			return err
		}
		e.buf.Word(vxForm(vecScratch, 0, s, xoVrefp))
		e.splatFloat(vecConstA, 1, 0) // 1.0
		e.buf.Word(vaForm(vecConstB, s, vecConstA, vecScratch, xoVnmsubfp))
		e.buf.Word(vaForm(vecScratch, vecScratch, vecScratch, vecConstB, xoVmaddfp))
		e.zero(vecConstA)
		e.buf.Word(vaForm(d, d, vecConstA, vecScratch, xoVmaddfp))
	}
	return nil
}

func (e *Encoder) VAnd(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vand", vandXO, el, dst, src, false)
}

func (e *Encoder) VOrr(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vorr", vorrXO, el, dst, src, false)
}

func (e *Encoder) VXor(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vxor", vxorXO, el, dst, src, false)
}

func (e *Encoder) VMin(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vmin", vminXO, el, dst, src, false)
}

func (e *Encoder) VMax(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vmax", vmaxXO, el, dst, src, false)
}

func (e *Encoder) VCeq(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vceq", vceqXO, el, dst, src, false)
}

// VClt is greater-than with the operands swapped; the three-operand form
// needs no staging.
func (e *Encoder) VClt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vclt", vcgtXO, el, dst, src, true)
}

func (e *Encoder) VCgt(el asm.Elem, dst, src asm.Operand) error {
	return e.vecVX("vcgt", vcgtXO, el, dst, src, false)
}

// VSqrt refines the reciprocal-root estimate one Newton-Raphson step and
// multiplies back: sqrt(s) = s * y0 * (1 + (1 - s*y0*y0)/2).
func (e *Encoder) VSqrt(el asm.Elem, dst, src asm.Operand) error {
	if el != asm.F32 {
		return errVec("vsqrt", dst, src)
	}
	for _, lane := range e.lanes() {
		d, s, err := e.vecOperands("vsqrt", dst, src, lane)
		if err != nil {
			return err
		}
		e.buf.Word(vxForm(vecScratch, 0, s, xoVrsqrtefp)) // y0
		e.zero(vecConstB)
		e.buf.Word(vaForm(vecConstB, s, vecConstB, vecScratch, xoVmaddfp)) // t = s*y0
		e.splatFloat(vecConstA, 1, 0)                                      // 1.0
		e.buf.Word(vaForm(vecConstB, vecConstB, vecConstA, vecScratch, xoVnmsubfp))
		e.splatFloat(vecConstC, 1, 1) // 0.5
		e.buf.Word(vaForm(vecConstB, vecConstC, vecConstA, vecConstB, xoVmaddfp))
		e.zero(vecConstA)
		e.buf.Word(vaForm(vecScratch, vecScratch, vecConstA, vecConstB, xoVmaddfp))
		e.buf.Word(vaForm(d, s, vecConstA, vecScratch, xoVmaddfp))
	}
	return nil
}

// vecShift splats the masked count and uses the element-shift words. Counts
// 16..31 ride as negative splat values whose low five bits decode the same.
func (e *Encoder) vecShift(name string, xo uint32, el asm.Elem, dst, count asm.Operand) error {
	if el != asm.I32 || dst.Kind() != asm.KindReg || !dst.IsVector() || count.Kind() != asm.KindImm {
		return errVec(name, dst, count)
	}
	n := uint32(count.First()) & 31
	for _, lane := range e.lanes() {
		d := uint32(dst.First()) + lane
		e.buf.Word(vxForm(vecScratch, n, 0, xoVspltisw))
		e.buf.Word(vxForm(d, d, vecScratch, xo))
	}
	return nil
}

func (e *Encoder) VShl(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshl", xoVslw, el, dst, count)
}

func (e *Encoder) VShr(el asm.Elem, dst, count asm.Operand) error {
	return e.vecShift("vshr", xoVsrw, el, dst, count)
}

// VCvtI truncates toward zero and saturates on overflow, which keeps the
// accuracy contract inside the signed 32-bit range.
func (e *Encoder) VCvtI(el asm.Elem, dst, src asm.Operand) error {
	return e.vecCvt("vcvti", xoVctsxs, el, dst, src)
}

func (e *Encoder) VCvtF(el asm.Elem, dst, src asm.Operand) error {
	return e.vecCvt("vcvtf", xoVcfsx, el, dst, src)
}

func (e *Encoder) vecCvt(name string, xo uint32, el asm.Elem, dst, src asm.Operand) error {
	if el != asm.F32 {
		return errVec(name, dst, src)
	}
	for _, lane := range e.lanes() {
		d, s, err := e.vecOperands(name, dst, src, lane)
		if err != nil {
			return err
		}
		e.buf.Word(vxForm(d, 0, s, xo))
	}
	return nil
}
