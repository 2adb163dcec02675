package program

import (
	"encoding/binary"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
	"github.com/codegenlab/uniasm/asm/arm64"
	"github.com/codegenlab/uniasm/asm/mips"
	"github.com/codegenlab/uniasm/asm/power"
	"github.com/codegenlab/uniasm/asm/x86"
	"github.com/codegenlab/uniasm/log"
)

// Targets lists the encoder names NewEncoder accepts. The mips names carry
// an endianness suffix; everything else is fixed by the architecture.
func Targets() []string {
	return []string{"amd64", "arm64", "mips32", "mips32be", "mips64", "mips64be", "ppc64"}
}

// NewEncoder constructs the encoder for a named target.
func NewEncoder(name string, feat asm.Features) (asm.FullEncoder, error) {
	switch name {
	case "amd64":
		return x86.New(feat), nil
	case "arm64":
		return arm64.New(feat), nil
	case "mips32":
		return mips.New(asm.W32, binary.LittleEndian, feat), nil
	case "mips32be":
		return mips.New(asm.W32, binary.BigEndian, feat), nil
	case "mips64":
		return mips.New(asm.W64, binary.LittleEndian, feat), nil
	case "mips64be":
		return mips.New(asm.W64, binary.BigEndian, feat), nil
	case "ppc64":
		return power.New(binary.BigEndian, feat), nil
	}
	return nil, fmt.Errorf("unknown target %q", name)
}

// Assemble drives enc with every instruction of p. The emitted code
// accumulates in the encoder's buffer.
func Assemble(enc asm.FullEncoder, p *Program) error {
	labels := map[string]*asm.Label{}
	get := func(name string) *asm.Label {
		l, ok := labels[name]
		if !ok {
			l = enc.Buffer().NewLabel()
			labels[name] = l
		}
		return l
	}

	for i, ins := range p.Ins {
		if err := emit(enc, ins, get); err != nil {
			return fmt.Errorf("%s: instruction %d (%s): %w", p.Name, i, ins.Op, err)
		}
	}
	log.Debug(log.ProgramMonitoring, "assembled program",
		"name", p.Name, "target", enc.Target().String(), "bytes", enc.Buffer().Len())
	return nil
}

func emit(enc asm.FullEncoder, ins Instruction, get func(string) *asm.Label) error {
	w, err := parseWidth(ins.Width)
	if err != nil {
		return err
	}
	var dst, src asm.Operand
	if ins.Dst != nil {
		if dst, err = ins.Dst.resolve(); err != nil {
			return err
		}
	}
	if ins.Src != nil {
		if src, err = ins.Src.resolve(); err != nil {
			return err
		}
	}

	switch ins.Op {
	case "mov":
		return enc.Mov(w, dst, src)
	case "add":
		return enc.Add(w, dst, src)
	case "sub":
		return enc.Sub(w, dst, src)
	case "and":
		return enc.And(w, dst, src)
	case "orr":
		return enc.Orr(w, dst, src)
	case "xor":
		return enc.Xor(w, dst, src)
	case "not":
		return enc.Not(w, dst)
	case "neg":
		return enc.Neg(w, dst)
	case "shl":
		return enc.Shl(w, dst, src)
	case "shr":
		return enc.Shr(w, dst, src)
	case "sar":
		return enc.Sar(w, dst, src)
	case "ror":
		return enc.Ror(w, dst, src)
	case "mul":
		return enc.Mul(w, dst, src)
	case "mulhi":
		return enc.MulHi(w, ins.signed(), dst, src)
	case "div":
		return enc.Div(w, ins.signed(), dst, src)
	case "rem":
		return enc.Rem(w, ins.signed(), dst, src)
	case "cmpjump":
		c, err := parseCond(ins.Cond)
		if err != nil {
			return err
		}
		return enc.CmpJump(w, c, dst, src, get(ins.Label))
	case "jump":
		return enc.Jump(get(ins.Label))
	case "push":
		return enc.Push(src)
	case "pop":
		return enc.Pop(dst)
	case "saveall":
		return enc.SaveAll()
	case "restoreall":
		return enc.RestoreAll()
	case "ret":
		return enc.Ret()
	case "label":
		enc.Buffer().Bind(get(ins.Label))
		return nil
	}

	el, err := parseElem(ins.Elem)
	if err != nil {
		return err
	}
	switch ins.Op {
	case "vmov":
		return enc.VMov(el, dst, src)
	case "vadd":
		return enc.VAdd(el, dst, src)
	case "vsub":
		return enc.VSub(el, dst, src)
	case "vmul":
		return enc.VMul(el, dst, src)
	case "vdiv":
		return enc.VDiv(el, dst, src)
	case "vand":
		return enc.VAnd(el, dst, src)
	case "vorr":
		return enc.VOrr(el, dst, src)
	case "vxor":
		return enc.VXor(el, dst, src)
	case "vmin":
		return enc.VMin(el, dst, src)
	case "vmax":
		return enc.VMax(el, dst, src)
	case "vceq":
		return enc.VCeq(el, dst, src)
	case "vclt":
		return enc.VClt(el, dst, src)
	case "vcgt":
		return enc.VCgt(el, dst, src)
	case "vsqrt":
		return enc.VSqrt(el, dst, src)
	case "vshl":
		return enc.VShl(el, dst, src)
	case "vshr":
		return enc.VShr(el, dst, src)
	case "vcvti":
		return enc.VCvtI(el, dst, src)
	case "vcvtf":
		return enc.VCvtF(el, dst, src)
	}
	return fmt.Errorf("unknown op %q", ins.Op)
}
