package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegenlab/uniasm/asm"
)

func newEnc(t *testing.T) *Encoder {
	t.Helper()
	return New(asm.Features{})
}

func TestAddImmediateWindow(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Add(asm.W32, asm.R(asm.R0), asm.I(100)))
	require.Equal(t, []uint32{0x11019273}, e.Buffer().Words()) // add w19, w19, #100
}

func TestAddRegister64(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Add(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{0x8B140273}, e.Buffer().Words()) // add x19, x19, x20
}

func TestLargeImmediateSynthesis(t *testing.T) {
	// 70000 misses the 12-bit field: movz/movk build it in the data
	// temporary and the add becomes a register op.
	e := newEnc(t)
	require.NoError(t, e.Add(asm.W32, asm.R(asm.R1), asm.I(70000)))
	require.Equal(t, []uint32{
		0x52822E11, // movz w17, #0x1170
		0x72A00031, // movk w17, #0x1, lsl #16
		0x0B110294, // add  w20, w20, w17
	}, e.Buffer().Words())
}

func TestMovnSeededImmediate(t *testing.T) {
	// Mostly-ones values seed with movn instead of a full movk chain.
	e := newEnc(t)
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.I(-2)))
	require.Equal(t, []uint32{0x92800033}, e.Buffer().Words()) // movn x19, #0x1
}

func TestMovRegister(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{0xAA1403F3}, e.Buffer().Words()) // mov x19, x20
}

func TestScaledDisplacementWindow(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.M(asm.R1, 16)))
	require.Equal(t, []uint32{0xF9400A93}, e.Buffer().Words()) // ldr x19, [x20, #16]
}

func TestUnscaledDisplacementSynthesis(t *testing.T) {
	// Misaligned displacement: the address builds in x16 first.
	e := newEnc(t)
	require.NoError(t, e.Mov(asm.W32, asm.R(asm.R0), asm.M(asm.R1, 0x12345)))
	require.Equal(t, []uint32{
		0xD28468B0, // movz x16, #0x2345
		0xF2A00030, // movk x16, #0x1, lsl #16
		0x8B140210, // add  x16, x16, x20
		0xB9400213, // ldr  w19, [x16]
	}, e.Buffer().Words())
}

func TestMemoryDestinationExpansion(t *testing.T) {
	// dst in memory: load into x10, operate, store back.
	e := newEnc(t)
	require.NoError(t, e.Add(asm.W32, asm.M(asm.R1, 8), asm.R(asm.R0)))
	require.Equal(t, []uint32{
		0xB9400A8A, // ldr w10, [x20, #8]
		0x0B13014A, // add w10, w10, w19
		0xB9000A8A, // str w10, [x20, #8]
	}, e.Buffer().Words())
}

func TestNotNeg(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Not(asm.W64, asm.R(asm.R0)))
	require.NoError(t, e.Neg(asm.W32, asm.R(asm.R0)))
	require.Equal(t, []uint32{
		0xAA3303F3, // orn x19, xzr, x19
		0x4B1303F3, // sub w19, wzr, w19
	}, e.Buffer().Words())
}

func TestShiftImmediateStaging(t *testing.T) {
	// Immediate counts land in x10 pre-masked; the variable form masks in
	// hardware, so 70 on W64 behaves as 6.
	e := newEnc(t)
	require.NoError(t, e.Shl(asm.W64, asm.R(asm.R0), asm.I(70)))
	require.Equal(t, []uint32{
		0xD28000CA, // movz x10, #0x6
		0x9ACA2273, // lsl  x19, x19, x10
	}, e.Buffer().Words())
}

func TestShiftRegisterForms(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Shr(asm.W32, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Ror(asm.W32, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{
		0x1AD42673, // lsr w19, w19, w20
		0x1AD42E73, // ror w19, w19, w20
	}, e.Buffer().Words())
}

func TestMul(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Mul(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{0x9B147E73}, e.Buffer().Words()) // mul x19, x19, x20
}

func TestMulHi64(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.MulHi(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{0x9B547E73}, e.Buffer().Words()) // smulh x19, x19, x20
}

func TestMulHi32Widens(t *testing.T) {
	// No 32-bit high-multiply: widen with umull and shift the top half down.
	e := newEnc(t)
	require.NoError(t, e.MulHi(asm.W32, false, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{
		0x9BB47E73, // umull x19, w19, w20
		0xD360FE73, // lsr   x19, x19, #32
	}, e.Buffer().Words())
}

func TestDivRem(t *testing.T) {
	// Div parks the dividend in x9 so Rem can recompute with msub.
	e := newEnc(t)
	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Rem(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{
		0xAA1303E9, // mov  x9, x19
		0x9AD40D33, // sdiv x19, x9, x20
		0x9B14A673, // msub x19, x19, x20, x9
	}, e.Buffer().Words())
}

func TestDivUnsigned32(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.Div(asm.W32, false, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []uint32{
		0x2A1303E9, // mov  w9, w19
		0x1AD40933, // udiv w19, w9, w20
	}, e.Buffer().Words())
}

func TestRemOrdering(t *testing.T) {
	e := newEnc(t)
	require.ErrorIs(t, e.Rem(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)), asm.ErrOrder)

	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R2), asm.R(asm.R3)))
	require.ErrorIs(t, e.Rem(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)), asm.ErrOrder)

	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.ErrorIs(t, e.Rem(asm.W32, true, asm.R(asm.R0), asm.R(asm.R1)), asm.ErrOrder)
}

func TestCompareBranch(t *testing.T) {
	e := newEnc(t)
	l := e.Buffer().NewLabel()
	require.NoError(t, e.CmpJump(asm.W64, asm.LT, asm.R(asm.R0), asm.R(asm.R1), l))
	e.Buffer().Bind(l)
	require.Equal(t, []uint32{
		0xEB14027F, // cmp  x19, x20
		0x5400002B, // b.lt +1
	}, e.Buffer().Words())
}

func TestCompareImmediateWindow(t *testing.T) {
	e := newEnc(t)
	l := e.Buffer().NewLabel()
	require.NoError(t, e.CmpJump(asm.W32, asm.EQ, asm.R(asm.R0), asm.I(5), l))
	e.Buffer().Bind(l)
	require.Equal(t, []uint32{
		0x7100167F, // cmp  w19, #5
		0x54000020, // b.eq +1
	}, e.Buffer().Words())
}

func TestCompareUnsigned(t *testing.T) {
	e := newEnc(t)
	l := e.Buffer().NewLabel()
	require.NoError(t, e.CmpJump(asm.W32, asm.GTU, asm.R(asm.R0), asm.R(asm.R1), l))
	e.Buffer().Bind(l)
	require.Equal(t, []uint32{
		0x6B14027F, // cmp  w19, w20
		0x54000028, // b.hi +1
	}, e.Buffer().Words())
}

func TestBackwardBranch(t *testing.T) {
	e := newEnc(t)
	l := e.Buffer().NewLabel()
	e.Buffer().Bind(l)
	require.NoError(t, e.Ret())
	require.NoError(t, e.Jump(l))
	require.Equal(t, []uint32{
		0xD65F03C0, // ret
		0x17FFFFFF, // b -1
	}, e.Buffer().Words())
}

func TestPushPop(t *testing.T) {
	// 16-byte slots keep SP aligned.
	e := newEnc(t)
	require.NoError(t, e.Push(asm.R(asm.R0)))
	require.NoError(t, e.Pop(asm.R(asm.R0)))
	require.Equal(t, []uint32{
		0xF81F0FF3, // str x19, [sp, #-16]!
		0xF84107F3, // ldr x19, [sp], #16
	}, e.Buffer().Words())
}

func TestSaveRestoreMirror(t *testing.T) {
	e := newEnc(t)
	require.NoError(t, e.SaveAll())
	require.Equal(t, []uint32{
		0xD101C3FF, // sub sp, sp, #112
		0xA90053F3, // stp x19, x20, [sp]
		0xA9015BF5, // stp x21, x22, [sp, #16]
		0xA90263F7, // stp x23, x24, [sp, #32]
		0xA9036BF9, // stp x25, x26, [sp, #48]
		0xA9042BE9, // stp x9, x10, [sp, #64]
		0xA90547F0, // stp x16, x17, [sp, #80]
		0xF90033FE, // str x30, [sp, #96]
	}, e.Buffer().Words())

	r := newEnc(t)
	require.NoError(t, r.RestoreAll())
	require.Equal(t, []uint32{
		0xF94033FE, // ldr x30, [sp, #96]
		0xA94547F0, // ldp x16, x17, [sp, #80]
		0xA9442BE9, // ldp x9, x10, [sp, #64]
		0xA9436BF9, // ldp x25, x26, [sp, #48]
		0xA94263F7, // ldp x23, x24, [sp, #32]
		0xA9415BF5, // ldp x21, x22, [sp, #16]
		0xA94053F3, // ldp x19, x20, [sp]
		0x9101C3FF, // add sp, sp, #112
	}, r.Buffer().Words())
}

func TestUnsupportedCombos(t *testing.T) {
	e := newEnc(t)
	require.ErrorIs(t, e.Mov(asm.W32, asm.M(asm.R0, 0), asm.M(asm.R1, 0)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Add(asm.W32, asm.I(1), asm.R(asm.R0)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Mul(asm.W32, asm.M(asm.R0, 0), asm.R(asm.R1)), asm.ErrUnsupported)
}
