package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegenlab/uniasm/asm"
)

func TestVectorAddForms(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VAdd(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VAdd(asm.F64, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VAdd(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x4E21D400, // fadd v0.4s, v0.4s, v1.4s
		0x4E61D400, // fadd v0.2d, v0.2d, v1.2d
		0x4EA18400, // add  v0.4s, v0.4s, v1.4s
	}, e.Buffer().Words())
}

func TestVectorMulDiv(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VMul(asm.F32, asm.V(asm.V2), asm.V(asm.V3)))
	require.NoError(t, e.VDiv(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x6E23DC42, // fmul v2.4s, v2.4s, v3.4s
		0x6E21FC00, // fdiv v0.4s, v0.4s, v1.4s
	}, e.Buffer().Words())
	require.ErrorIs(t, e.VDiv(asm.I32, asm.V(asm.V0), asm.V(asm.V1)), asm.ErrUnsupported)
}

func TestVectorLogical(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VAnd(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x4E211C00}, e.Buffer().Words()) // and v0.16b, v0.16b, v1.16b
}

func TestVectorMov(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VMov(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x4EA11C20}, e.Buffer().Words()) // mov v0.16b, v1.16b
}

func TestVectorLoadStore(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VMov(asm.F32, asm.V(asm.V0), asm.M(asm.R1, 32)))
	require.NoError(t, e.VMov(asm.F32, asm.M(asm.R1, 32), asm.V(asm.V0)))
	require.Equal(t, []uint32{
		0x3DC00A80, // ldr q0, [x20, #32]
		0x3D800A80, // str q0, [x20, #32]
	}, e.Buffer().Words())
}

func TestVectorMemoryStaging(t *testing.T) {
	// Quad loads scale by 16: a misaligned displacement synthesizes the
	// address in x16 and the source stages in v31.
	e := newEnc(t)
	require.NoError(t, e.VAdd(asm.F32, asm.V(asm.V0), asm.M(asm.R1, 20)))
	require.Equal(t, []uint32{
		0xD2800290, // movz x16, #0x14
		0x8B140210, // add  x16, x16, x20
		0x3DC0021F, // ldr  q31, [x16]
		0x4E3FD400, // fadd v0.4s, v0.4s, v31.4s
	}, e.Buffer().Words())
}

func TestVectorCompareSwap(t *testing.T) {
	// Less-than reuses the greater-than opcode with the operands swapped.
	e := newEnc(t)
	require.NoError(t, e.VCgt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VClt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x6EA1E400, // fcmgt v0.4s, v0.4s, v1.4s
		0x6EA0E420, // fcmgt v0.4s, v1.4s, v0.4s
	}, e.Buffer().Words())
}

func TestVectorMinMaxInt(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VMin(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VMax(asm.I32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x4EA16C00, // smin v0.4s, v0.4s, v1.4s
		0x4EA16400, // smax v0.4s, v0.4s, v1.4s
	}, e.Buffer().Words())
}

func TestVectorSqrt(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VSqrt(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{0x6EA1F820}, e.Buffer().Words()) // fsqrt v0.4s, v1.4s
	require.ErrorIs(t, e.VSqrt(asm.I32, asm.V(asm.V0), asm.V(asm.V1)), asm.ErrUnsupported)
}

func TestVectorShifts(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VShl(asm.I32, asm.V(asm.V0), asm.I(3)))
	require.NoError(t, e.VShr(asm.I32, asm.V(asm.V1), asm.I(3)))
	require.Equal(t, []uint32{
		0x4F235400, // shl  v0.4s, v0.4s, #3
		0x6F3D0421, // ushr v1.4s, v1.4s, #3
	}, e.Buffer().Words())
}

func TestVectorShiftZeroCount(t *testing.T) {
	// ushr has no zero-shift encoding; a zero count degrades to a move.
	e := newEnc(t)
	require.NoError(t, e.VShr(asm.I32, asm.V(asm.V1), asm.I(0)))
	require.Equal(t, []uint32{0x4EA11C21}, e.Buffer().Words()) // mov v1.16b, v1.16b
}

func TestVectorConversions(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.VCvtI(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.NoError(t, e.VCvtF(asm.F32, asm.V(asm.V0), asm.V(asm.V1)))
	require.Equal(t, []uint32{
		0x4EA1B820, // fcvtzs v0.4s, v1.4s
		0x4E21D820, // scvtf  v0.4s, v1.4s
	}, e.Buffer().Words())
}

func TestVectorUnsupported(t *testing.T) {
	e := newEnc(t)
	require.ErrorIs(t, e.VShl(asm.F32, asm.V(asm.V0), asm.I(1)), asm.ErrUnsupported)
	require.ErrorIs(t, e.VAdd(asm.F32, asm.M(asm.R0, 0), asm.V(asm.V1)), asm.ErrUnsupported)
}
