//go:build unicorn

package sandbox

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegenlab/uniasm/asm"
	"github.com/codegenlab/uniasm/asm/program"
)

// runOn assembles build on the named target, seeds the portable file and
// returns the register end-state.
func runOn(t *testing.T, target string, seed map[asm.Reg]uint64, build func(e asm.FullEncoder)) [asm.NumReg]uint64 {
	t.Helper()
	enc, err := program.NewEncoder(target, asm.Features{})
	require.NoError(t, err)
	build(enc)
	require.NoError(t, enc.Ret())

	m, err := New(enc.Target())
	require.NoError(t, err)
	defer m.Close()
	for r, v := range seed {
		require.NoError(t, m.SetReg(r, v))
	}
	require.NoError(t, m.Run(enc.Buffer().Code()))
	regs, err := m.Registers()
	require.NoError(t, err)
	return regs
}

var roundTripTargets = []string{"amd64", "arm64"}

func TestArithmeticRoundTrip(t *testing.T) {
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			regs := runOn(t, target, map[asm.Reg]uint64{asm.R0: 40, asm.R1: 7}, func(e asm.FullEncoder) {
				require.NoError(t, e.Add(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
				require.NoError(t, e.Mul(asm.W64, asm.R(asm.R0), asm.R(asm.R1)))
				require.NoError(t, e.Sub(asm.W64, asm.R(asm.R0), asm.I(9)))
			})
			require.Equal(t, uint64((40+7)*7-9), regs[0])
		})
	}
}

func TestBoundaryImmediates(t *testing.T) {
	values := []uint64{0, 1, 0x7FFF, 0x8000, 0xFFFF, 0x10000,
		0x7FFFFFFF, 0x80000000, 0xFFFFFFFF, 0x100000000,
		0x7FFFFFFFFFFFFFFF, 0x8000000000000000, 0xFFFFFFFFFFFFFFFF}
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			for _, v := range values {
				regs := runOn(t, target, nil, func(e asm.FullEncoder) {
					require.NoError(t, e.Mov(asm.W64, asm.R(asm.R0), asm.I(int64(v))))
				})
				require.Equal(t, v, regs[0], "immediate %#x", v)
			}
		})
	}
}

func TestDivisionRoundTrip(t *testing.T) {
	cases := []struct {
		a, b   int64
		signed bool
	}{
		{100, 7, true},
		{-100, 7, true},
		{100, -7, true},
		{-100, -7, true},
		{100, 8, true},
		{100, 7, false},
		{1 << 40, 3, false},
	}
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			for _, tc := range cases {
				regs := runOn(t, target, map[asm.Reg]uint64{
					asm.R0: uint64(tc.a), asm.R1: uint64(tc.b),
				}, func(e asm.FullEncoder) {
					require.NoError(t, e.Div(asm.W64, tc.signed, asm.R(asm.R0), asm.R(asm.R1)))
					require.NoError(t, e.Rem(asm.W64, tc.signed, asm.R(asm.R2), asm.R(asm.R1)))
				})
				if tc.signed {
					require.Equal(t, tc.a/tc.b, int64(regs[0]), "%d / %d", tc.a, tc.b)
					require.Equal(t, tc.a%tc.b, int64(regs[2]), "%d %% %d", tc.a, tc.b)
				} else {
					require.Equal(t, uint64(tc.a)/uint64(tc.b), regs[0])
					require.Equal(t, uint64(tc.a)%uint64(tc.b), regs[2])
				}
			}
		})
	}
}

func TestShiftMaskingRoundTrip(t *testing.T) {
	// Count 37 behaves as 5 for 32-bit elements.
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			regs := runOn(t, target, map[asm.Reg]uint64{asm.R0: 1}, func(e asm.FullEncoder) {
				require.NoError(t, e.Shl(asm.W32, asm.R(asm.R0), asm.I(37)))
			})
			require.Equal(t, uint64(1<<5), regs[0])
		})
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			enc, err := program.NewEncoder(target, asm.Features{})
			require.NoError(t, err)
			m, err := New(enc.Target())
			require.NoError(t, err)
			defer m.Close()

			require.NoError(t, m.SetReg(asm.R1, m.DataBase()))
			require.NoError(t, enc.Mov(asm.W64, asm.R(asm.R0), asm.I(0x1234567890)))
			require.NoError(t, enc.Mov(asm.W64, asm.M(asm.R1, 16), asm.R(asm.R0)))
			require.NoError(t, enc.Add(asm.W64, asm.M(asm.R1, 16), asm.I(6)))
			require.NoError(t, enc.Ret())

			require.NoError(t, m.Run(enc.Buffer().Code()))
			raw, err := m.ReadMem(16, 8)
			require.NoError(t, err)
			require.Equal(t, uint64(0x1234567890+6), binary.LittleEndian.Uint64(raw))
		})
	}
}

func TestBranchRoundTrip(t *testing.T) {
	// Loop: r0 counts down to zero, r2 accumulates.
	for _, target := range roundTripTargets {
		t.Run(target, func(t *testing.T) {
			regs := runOn(t, target, map[asm.Reg]uint64{asm.R0: 5, asm.R2: 0}, func(e asm.FullEncoder) {
				top := e.Buffer().NewLabel()
				e.Buffer().Bind(top)
				require.NoError(t, e.Add(asm.W64, asm.R(asm.R2), asm.R(asm.R0)))
				require.NoError(t, e.Sub(asm.W64, asm.R(asm.R0), asm.I(1)))
				require.NoError(t, e.CmpJump(asm.W64, asm.NE, asm.R(asm.R0), asm.I(0), top))
			})
			require.Equal(t, uint64(5+4+3+2+1), regs[2])
		})
	}
}

func TestUnsupportedTarget(t *testing.T) {
	_, err := New(asm.Target{Arch: asm.PPC64})
	require.Error(t, err)
}
