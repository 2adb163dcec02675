//go:build unicorn

// Package sandbox executes emitted machine code under unicorn and exposes
// the portable register file for round-trip checks. Only the targets the
// emulator supports natively are wired; everything else reports an error.
package sandbox

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/codegenlab/uniasm/asm"
	"github.com/codegenlab/uniasm/log"
)

const (
	pageSize  = uint64(0x1000)
	codeBase  = uint64(0x100000)
	codeSpace = uint64(0x10000)
	dataBase  = uint64(0x200000)
	dataSize  = uint64(0x100000)
	stackBase = uint64(0x400000)
	stackSize = uint64(0x10000)
	haltAddr  = codeBase + codeSpace // Ret lands here and stops the run
)

// amd64 portable file: rbx, rsi, rdi, r8..r11, r13.
var amd64Regs = []int{
	uc.X86_REG_RBX, uc.X86_REG_RSI, uc.X86_REG_RDI, uc.X86_REG_R8,
	uc.X86_REG_R9, uc.X86_REG_R10, uc.X86_REG_R11, uc.X86_REG_R13,
}

// arm64 portable file: x19..x26.
var arm64Regs = []int{
	uc.ARM64_REG_X19, uc.ARM64_REG_X20, uc.ARM64_REG_X21, uc.ARM64_REG_X22,
	uc.ARM64_REG_X23, uc.ARM64_REG_X24, uc.ARM64_REG_X25, uc.ARM64_REG_X26,
}

// Machine is one emulator instance with code, data and stack regions
// mapped and the portable register file addressable by asm.Reg.
type Machine struct {
	mu   uc.Unicorn
	arch asm.Arch
	regs []int
}

// New builds a machine for the target architecture.
func New(t asm.Target) (*Machine, error) {
	var (
		mu   uc.Unicorn
		regs []int
		err  error
	)
	switch t.Arch {
	case asm.AMD64:
		mu, err = uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
		regs = amd64Regs
	case asm.ARM64:
		mu, err = uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
		regs = arm64Regs
	default:
		return nil, fmt.Errorf("sandbox: no emulation for %s", t.Arch)
	}
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	m := &Machine{mu: mu, arch: t.Arch, regs: regs}
	for _, r := range []struct {
		base, size uint64
	}{
		{codeBase, codeSpace + pageSize}, // extra page so haltAddr is fetchable
		{dataBase, dataSize},
		{stackBase, stackSize},
	} {
		if err := mu.MemMap(r.base, r.size); err != nil {
			mu.Close()
			return nil, fmt.Errorf("map region at %#x: %w", r.base, err)
		}
	}
	return m, nil
}

// DataBase returns the guest address of the mapped scratch RAM. Programs
// address it through a portable register seeded with this value.
func (m *Machine) DataBase() uint64 { return dataBase }

// SetReg seeds one portable register.
func (m *Machine) SetReg(r asm.Reg, v uint64) error {
	if int(r) >= len(m.regs) {
		return fmt.Errorf("sandbox: register %s out of range", r)
	}
	return m.mu.RegWrite(m.regs[r], v)
}

// Reg reads one portable register back.
func (m *Machine) Reg(r asm.Reg) (uint64, error) {
	if int(r) >= len(m.regs) {
		return 0, fmt.Errorf("sandbox: register %s out of range", r)
	}
	return m.mu.RegRead(m.regs[r])
}

// Registers reads the whole portable file.
func (m *Machine) Registers() ([asm.NumReg]uint64, error) {
	var out [asm.NumReg]uint64
	for i := range out {
		v, err := m.mu.RegRead(m.regs[i])
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteMem stores data into scratch RAM at dataBase+off.
func (m *Machine) WriteMem(off uint64, data []byte) error {
	return m.mu.MemWrite(dataBase+off, data)
}

// ReadMem loads length bytes from scratch RAM at dataBase+off.
func (m *Machine) ReadMem(off, length uint64) ([]byte, error) {
	return m.mu.MemRead(dataBase+off, length)
}

// Run executes code mapped at the code base. Programs must end with Ret:
// the return slot (amd64) or link register (arm64) is seeded with the halt
// address and emulation stops when the final Ret reaches it.
func (m *Machine) Run(code []byte) error {
	if uint64(len(code)) > codeSpace {
		return fmt.Errorf("sandbox: code %d bytes exceeds %d", len(code), codeSpace)
	}
	if err := m.mu.MemWrite(codeBase, code); err != nil {
		return fmt.Errorf("write code: %w", err)
	}

	stackTop := stackBase + stackSize - 64
	switch m.arch {
	case asm.AMD64:
		// Return address on the stack sends a final ret to haltAddr.
		var ret [8]byte
		for i := range ret {
			ret[i] = byte(haltAddr >> (8 * i))
		}
		if err := m.mu.MemWrite(stackTop, ret[:]); err != nil {
			return fmt.Errorf("seed return slot: %w", err)
		}
		if err := m.mu.RegWrite(uc.X86_REG_RSP, stackTop); err != nil {
			return fmt.Errorf("set rsp: %w", err)
		}
	case asm.ARM64:
		if err := m.mu.RegWrite(uc.ARM64_REG_SP, stackTop); err != nil {
			return fmt.Errorf("set sp: %w", err)
		}
		if err := m.mu.RegWrite(uc.ARM64_REG_X30, haltAddr); err != nil {
			return fmt.Errorf("set link register: %w", err)
		}
	}

	log.Trace(log.SandboxMonitoring, "starting emulation",
		"arch", m.arch.String(), "bytes", len(code))
	if err := m.mu.Start(codeBase, haltAddr); err != nil {
		return fmt.Errorf("emulation failed: %w", err)
	}
	return nil
}

// Close releases the emulator.
func (m *Machine) Close() error {
	if m.mu == nil {
		return nil
	}
	err := m.mu.Close()
	m.mu = nil
	return err
}
