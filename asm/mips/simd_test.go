package mips

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegenlab/uniasm/asm"
)

func TestVectorWidth(t *testing.T) {
	e := new32(t, asm.Features{})
	require.Equal(t, 16, e.VectorBytes())
}

func TestVectorFloatArithmetic(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VAdd(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x7801001B}, e.Buffer().Words()) // fadd.w w0, w0, w1
}

func TestVectorIntegerArithmetic(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VAdd(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x7841000E}, e.Buffer().Words()) // addv.w w0, w0, w1
}

func TestVectorBitwise(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VAnd(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x7801001E}, e.Buffer().Words()) // and.v w0, w0, w1
}

func TestVectorLoadStore(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VMov(asm.F32, asm.V(asm.V1), asm.M(asm.R0, 16)))
	require.NoError(t, e.VMov(asm.F32, asm.M(asm.R0, 16), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x78042062, // ld.w w1, 16(a0)
		0x78042066, // st.w w1, 16(a0)
	}, e.Buffer().Words())
}

func TestVectorUnalignedDisplacement(t *testing.T) {
	// Displacements the scaled 10-bit field cannot carry go through t6.
	e := new32(t, asm.Features{})
	require.NoError(t, e.VMov(asm.F32, asm.V(asm.V0), asm.M(asm.R0, 6)))
	words := e.Buffer().Words()
	require.Len(t, words, 3)
	require.Equal(t, uint32(0x240E0006), words[0]) // addiu t6, zero, 6
	require.Equal(t, uint32(0x01C47021), words[1]) // addu  t6, t6, a0
	require.Equal(t, uint32(0x78007022), words[2]) // ld.w  w0, 0(t6)
}

func TestVectorMemorySource(t *testing.T) {
	// Memory sources stage through w31.
	e := new32(t, asm.Features{})
	require.NoError(t, e.VAdd(asm.F32, asm.V(asm.V0), asm.M(asm.R0, 0)))
	require.Equal(t, []uint32{
		0x78002FE2, // ld.w   w31, 0(a0)
		0x781F001B, // fadd.w w0, w0, w31
	}, e.Buffer().Words())
}

func TestVectorCompareGreaterSwaps(t *testing.T) {
	// cgt is clt with source and destination swapped in the three-operand
	// form; no scratch staging needed.
	e := new32(t, asm.Features{})
	require.NoError(t, e.VClt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VCgt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x7901001A, // fclt.w w0, w0, w1
		0x7900081A, // fclt.w w0, w1, w0
	}, e.Buffer().Words())
}

func TestVectorShiftMasking(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VShl(asm.I32, asm.V(asm.V0), asm.I(35)))
	require.Equal(t, []uint32{0x78430009}, e.Buffer().Words()) // slli.w w0, w0, 3
}

func TestVectorIntegerMulDivMinMax(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VMul(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VDiv(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VMin(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VMax(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x78410012, // mulv.w  w0, w0, w1
		0x7A410012, // div_s.w w0, w0, w1
		0x7A41000E, // min_s.w w0, w0, w1
		0x7941000E, // max_s.w w0, w0, w1
	}, e.Buffer().Words())
}

func TestVectorSqrt(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VSqrt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VSqrt(asm.F64, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x7B26081E, // fsqrt.w w0, w1
		0x7B27081E, // fsqrt.d w0, w1
	}, e.Buffer().Words())
}

func TestVectorSqrtMemorySource(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VSqrt(asm.F32, asm.V(asm.V0), asm.M(asm.R0, 0)))
	require.Equal(t, []uint32{
		0x78002FE2, // ld.w    w31, 0(a0)
		0x7B26F81E, // fsqrt.w w0, w31
	}, e.Buffer().Words())
}

func TestVectorConversions(t *testing.T) {
	e := new32(t, asm.Features{})
	require.NoError(t, e.VCvtI(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VCvtF(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x7B22081E, // ftrunc_s.w w0, w1
		0x7B38081E, // ffint_s.w  w0, w1
	}, e.Buffer().Words())
}

func TestVectorUnsupported(t *testing.T) {
	e := new32(t, asm.Features{})
	require.ErrorIs(t, e.VSqrt(asm.I32, asm.V(asm.V0), asm.V(asm.V1)), asm.ErrUnsupported)
	require.ErrorIs(t, e.VCvtI(asm.I32, asm.V(asm.V0), asm.V(asm.V1)), asm.ErrUnsupported)
	require.ErrorIs(t, e.VAdd(asm.F32, asm.R(asm.R0), asm.V(asm.V1)), asm.ErrUnsupported)
}
