package x86

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/codegenlab/uniasm/asm"
)

// decodeAll disassembles the whole buffer, failing on any undecodable byte.
// Structural check: every emitted instruction must be well-formed x86-64.
func decodeAll(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var out []x86asm.Inst
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 64)
		require.NoError(t, err, "undecodable bytes % x", code)
		out = append(out, inst)
		code = code[inst.Len:]
	}
	return out
}

func ops(insts []x86asm.Inst) []x86asm.Op {
	out := make([]x86asm.Op, len(insts))
	for i, in := range insts {
		out[i] = in.Op
	}
	return out
}

func TestMovForms(t *testing.T) {
	e := New(asm.Features{})

	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []byte{0x48, 0x8B, 0xDE}, e.Buffer().Code()) // mov rbx, rsi

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, x86asm.MOV, insts[0].Op)
	require.Equal(t, x86asm.RBX, insts[0].Args[0])
	require.Equal(t, x86asm.RSI, insts[0].Args[1])
}

func TestMovImmediateWindows(t *testing.T) {
	e := New(asm.Features{})

	// imm32: C7 form
	require.NoError(t, e.Mov(asm.W32, asm.R(asm.R3), asm.I(1)))
	require.Equal(t, []byte{0x41, 0xC7, 0xC0, 0x01, 0x00, 0x00, 0x00}, e.Buffer().Code())

	// imm64: B8+r form
	e = New(asm.Features{})
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.I(0x123456789)))
	require.Equal(t, []byte{0x48, 0xBB, 0x89, 0x67, 0x45, 0x23, 0x01, 0x00, 0x00, 0x00},
		e.Buffer().Code())
}

func TestMemoryForms(t *testing.T) {
	e := New(asm.Features{})

	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.M(asm.R1, 8)))
	require.Equal(t, []byte{0x48, 0x8B, 0x5E, 0x08}, e.Buffer().Code()) // mov rbx, [rsi+8]

	e = New(asm.Features{})
	require.NoError(t, e.Mov(asm.W32, asm.M(asm.R3, 0), asm.R(asm.R0)))
	require.Equal(t, []byte{0x41, 0x89, 0x18}, e.Buffer().Code()) // mov [r8], ebx

	// disp32 window
	e = New(asm.Features{})
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.M(asm.R1, 200000)))
	insts := decodeAll(t, e.Buffer().Code())
	require.Len(t, insts, 1, "disp32 stays a single instruction")
}

// Displacements beyond the 32-bit window synthesize the address into r14
// before the access: the consumer word comes last.
func TestLargeDisplacementSynthesis(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.M(asm.R1, 1<<33)))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.ADD, x86asm.MOV}, ops(insts))
	require.Equal(t, x86asm.R14, insts[0].Args[0], "disp lands in the address temp")
	require.Equal(t, x86asm.R14, insts[1].Args[0])
	require.Equal(t, x86asm.RBX, insts[2].Args[0])
}

func TestAluFamilies(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Add(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Sub(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.And(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Orr(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Xor(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.ADD, x86asm.SUB, x86asm.AND, x86asm.OR, x86asm.XOR},
		ops(insts))
	for _, in := range insts {
		require.Equal(t, x86asm.RBX, in.Args[0])
		require.Equal(t, x86asm.RSI, in.Args[1])
	}
}

func TestAddImm32Direct(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Add(asm.W32, asm.R(asm.R1), asm.I(70000)))
	require.Equal(t, []byte{0x81, 0xC6, 0x70, 0x11, 0x01, 0x00}, e.Buffer().Code())
}

// 64-bit-only immediates go through the data temporary first.
func TestAddImm64Synthesis(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Add(asm.W64, asm.R(asm.R0), asm.I(1<<32)))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.ADD}, ops(insts))
	require.Equal(t, x86asm.RAX, insts[0].Args[0])
	require.Equal(t, x86asm.RBX, insts[1].Args[0])
	require.Equal(t, x86asm.RAX, insts[1].Args[1])
}

func TestShiftCountMasking(t *testing.T) {
	a := New(asm.Features{})
	require.NoError(t, a.Shl(asm.W32, asm.R(asm.R0), asm.I(37)))
	b := New(asm.Features{})
	require.NoError(t, b.Shl(asm.W32, asm.R(asm.R0), asm.I(5)))
	require.Equal(t, b.Buffer().Code(), a.Buffer().Code(), "37 mod 32 == 5")

	c := New(asm.Features{})
	require.NoError(t, c.Shl(asm.W64, asm.R(asm.R0), asm.I(64)))
	d := New(asm.Features{})
	require.NoError(t, d.Shl(asm.W64, asm.R(asm.R0), asm.I(0)))
	require.Equal(t, d.Buffer().Code(), c.Buffer().Code())
}

func TestShiftByRegisterRunsThroughCL(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Shr(asm.W64, asm.R(asm.R0), asm.R(asm.R2)))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.SHR}, ops(insts))
	require.Equal(t, x86asm.RCX, insts[0].Args[0])
	require.Equal(t, x86asm.CL, insts[1].Args[1])
}

func TestMulImmediate(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Mul(asm.W32, asm.R(asm.R0), asm.I(3)))
	require.Equal(t, []byte{0x69, 0xDB, 0x03, 0x00, 0x00, 0x00}, e.Buffer().Code())
}

func TestMulHiUsesRDX(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.MulHi(asm.W64, false, asm.R(asm.R0), asm.R(asm.R1)))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.MUL, x86asm.MOV}, ops(insts))
	require.Equal(t, x86asm.RDX, insts[2].Args[1], "high half comes from rdx")
}

func TestDivExpansion(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.Equal(t, []byte{
		0x48, 0x8B, 0xC3, // mov rax, rbx (prime the dividend)
		0x48, 0x99, // cqo
		0x48, 0xF7, 0xFE, // idiv rsi
		0x48, 0x8B, 0xD8, // mov rbx, rax
	}, e.Buffer().Code())
}

func TestDivUnsignedZeroesRDX(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Div(asm.W32, false, asm.R(asm.R0), asm.R(asm.R1)))
	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.XOR, x86asm.DIV, x86asm.MOV}, ops(insts))
}

func TestRemOrderingContract(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Rem(asm.W64, true, asm.R(asm.R2), asm.R(asm.R1)))

	// remainder extraction is exactly one mov from rdx
	insts := decodeAll(t, e.Buffer().Code())
	last := insts[len(insts)-1]
	require.Equal(t, x86asm.MOV, last.Op)
	require.Equal(t, x86asm.RDI, last.Args[0])
	require.Equal(t, x86asm.RDX, last.Args[1])

	// a second Rem has nothing to extract
	err := e.Rem(asm.W64, true, asm.R(asm.R2), asm.R(asm.R1))
	require.ErrorIs(t, err, asm.ErrOrder)

	// any intervening emission breaks the contract
	e = New(asm.Features{})
	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R4), asm.R(asm.R5)))
	require.ErrorIs(t, e.Rem(asm.W64, true, asm.R(asm.R2), asm.R(asm.R1)), asm.ErrOrder)

	// width or signedness mismatch is also a contract violation
	e = New(asm.Features{})
	require.NoError(t, e.Div(asm.W64, true, asm.R(asm.R0), asm.R(asm.R1)))
	require.ErrorIs(t, e.Rem(asm.W32, true, asm.R(asm.R2), asm.R(asm.R1)), asm.ErrOrder)
}

func TestCmpJumpForwardPatch(t *testing.T) {
	e := New(asm.Features{})
	l := e.Buffer().NewLabel()
	require.NoError(t, e.CmpJump(asm.W32, asm.LT, asm.R(asm.R0), asm.I(10), l))
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	e.Buffer().Bind(l)

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.CMP, x86asm.JL, x86asm.MOV}, ops(insts))
	rel, ok := insts[1].Args[0].(x86asm.Rel)
	require.True(t, ok)
	require.Equal(t, int32(3), int32(rel), "skips the 3-byte mov")
}

func TestJumpBackward(t *testing.T) {
	e := New(asm.Features{})
	top := e.Buffer().NewLabel()
	e.Buffer().Bind(top)
	require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
	require.NoError(t, e.Jump(top))

	insts := decodeAll(t, e.Buffer().Code())
	rel := insts[1].Args[0].(x86asm.Rel)
	require.Equal(t, int32(-8), int32(rel), "3-byte mov + 5-byte jmp")
}

func TestUnsignedConditionBytes(t *testing.T) {
	e := New(asm.Features{})
	l := e.Buffer().NewLabel()
	e.Buffer().Bind(l)
	require.NoError(t, e.CmpJump(asm.W64, asm.LTU, asm.R(asm.R0), asm.R(asm.R1), l))
	require.NoError(t, e.CmpJump(asm.W64, asm.GEU, asm.R(asm.R0), asm.R(asm.R1), l))

	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.CMP, x86asm.JB, x86asm.CMP, x86asm.JAE}, ops(insts))
}

func TestSaveRestoreMirror(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.SaveAll())
	saveLen := e.Buffer().Len()
	require.NoError(t, e.RestoreAll())

	insts := decodeAll(t, e.Buffer().Code())
	require.Len(t, insts, 30, "15 pushes + 15 pops")

	var pushes, pops []x86asm.Arg
	for _, in := range insts {
		switch in.Op {
		case x86asm.PUSH:
			pushes = append(pushes, in.Args[0])
		case x86asm.POP:
			pops = append(pops, in.Args[0])
		default:
			t.Fatalf("unexpected op %v", in.Op)
		}
	}
	require.Len(t, pushes, 15)
	require.Len(t, pops, 15)
	for i := range pushes {
		require.Equal(t, pushes[i], pops[len(pops)-1-i], "restore mirrors save")
	}
	require.Equal(t, saveLen, e.Buffer().Len()-saveLen, "byte-symmetric sequences")
}

func TestNotNeg(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Not(asm.W64, asm.R(asm.R0)))
	require.NoError(t, e.Neg(asm.W64, asm.R(asm.R0)))
	insts := decodeAll(t, e.Buffer().Code())
	require.Equal(t, []x86asm.Op{x86asm.NOT, x86asm.NEG}, ops(insts))
}

func TestUnsupportedCombos(t *testing.T) {
	e := New(asm.Features{})
	require.ErrorIs(t, e.Mov(asm.W64, asm.I(1), asm.R(asm.R0)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Add(asm.W64, asm.I(1), asm.I(2)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Shl(asm.W64, asm.I(1), asm.I(2)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Div(asm.W64, true, asm.M(asm.R0, 0), asm.R(asm.R1)), asm.ErrUnsupported)
	require.ErrorIs(t, e.Push(asm.I(1<<40)), asm.ErrRange)
}

// Field non-overlap: rebuild each decoded instruction's fields and confirm
// opcode, reg and r/m land where the layout says. The decoder consuming the
// exact byte count already proves no field spills into a neighbour.
func TestFieldPlacement(t *testing.T) {
	e := New(asm.Features{})
	require.NoError(t, e.Add(asm.W64, asm.R(asm.R3), asm.R(asm.R7))) // add r8, r13

	code := e.Buffer().Code()
	require.Equal(t, []byte{0x4D, 0x01, 0xE8}, code) // REX.WRB, 01, modrm(3, 5, 0)
	rexByte := code[0]
	require.Equal(t, byte(0x08), rexByte&0x08, "REX.W")
	require.Equal(t, byte(0x04), rexByte&0x04, "REX.R extends r13's field")
	require.Equal(t, byte(0x01), rexByte&0x01, "REX.B extends r8's field")
	modrm := code[2]
	require.Equal(t, byte(3), modrm>>6)
	require.Equal(t, byte(5), modrm>>3&7, "r13 low bits in reg")
	require.Equal(t, byte(0), modrm&7, "r8 low bits in r/m")
}

func TestScratchDisjointFromPortable(t *testing.T) {
	e := New(asm.Features{})
	conv := e.Convention()
	for _, p := range regMap {
		require.False(t, conv.IsScratch(p), "portable register maps onto scratch %d", p)
	}
}
