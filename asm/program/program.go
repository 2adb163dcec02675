// Package program reads symbolic instruction programs from JSON and drives
// any encoder with them. The format mirrors one instruction per object:
//
//	{"op":"add","width":"w32","dst":{"reg":1},"src":{"imm":70000}}
//	{"op":"label","label":"loop"}
//	{"op":"cmpjump","width":"w64","cond":"lt","dst":{"reg":0},"src":{"reg":1},"label":"loop"}
package program

import (
	"encoding/json"
	"fmt"

	"github.com/codegenlab/uniasm/asm"
)

// Mem is the JSON form of a base+displacement memory operand.
type Mem struct {
	Base int   `json:"base"`
	Disp int64 `json:"disp"`
}

// Operand carries exactly one of the four operand kinds.
type Operand struct {
	Reg  *int   `json:"reg,omitempty"`
	VReg *int   `json:"vreg,omitempty"`
	Imm  *int64 `json:"imm,omitempty"`
	Mem  *Mem   `json:"mem,omitempty"`
}

func (o *Operand) resolve() (asm.Operand, error) {
	set := 0
	for _, present := range []bool{o.Reg != nil, o.VReg != nil, o.Imm != nil, o.Mem != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return asm.Operand{}, fmt.Errorf("operand needs exactly one of reg/vreg/imm/mem")
	}
	switch {
	case o.Reg != nil:
		if *o.Reg < 0 || *o.Reg >= asm.NumReg {
			return asm.Operand{}, fmt.Errorf("register %d out of r0..r%d", *o.Reg, asm.NumReg-1)
		}
		return asm.R(asm.Reg(*o.Reg)), nil
	case o.VReg != nil:
		if *o.VReg < 0 || *o.VReg >= asm.NumVReg {
			return asm.Operand{}, fmt.Errorf("vector register %d out of v0..v%d", *o.VReg, asm.NumVReg-1)
		}
		return asm.V(asm.VReg(*o.VReg)), nil
	case o.Imm != nil:
		return asm.I(*o.Imm), nil
	}
	if o.Mem.Base < 0 || o.Mem.Base >= asm.NumReg {
		return asm.Operand{}, fmt.Errorf("memory base %d out of r0..r%d", o.Mem.Base, asm.NumReg-1)
	}
	return asm.M(asm.Reg(o.Mem.Base), o.Mem.Disp), nil
}

// Instruction is one symbolic instruction. Unused fields stay empty; the
// shape table in validate() says which ones each op requires.
type Instruction struct {
	Op     string   `json:"op"`
	Width  string   `json:"width,omitempty"`
	Elem   string   `json:"elem,omitempty"`
	Signed *bool    `json:"signed,omitempty"`
	Cond   string   `json:"cond,omitempty"`
	Dst    *Operand `json:"dst,omitempty"`
	Src    *Operand `json:"src,omitempty"`
	Label  string   `json:"label,omitempty"`
}

// Program is a named instruction sequence.
type Program struct {
	Name string        `json:"name,omitempty"`
	Ins  []Instruction `json:"instructions"`
}

// opShape classifies the operand requirements of each mnemonic.
type opShape uint8

const (
	shapeBase2 opShape = iota // width, dst, src
	shapeBase1                // width, dst
	shapeSigned               // width, dst, src, optional signed
	shapeCmp                  // width, cond, dst, src, label
	shapeJump                 // label
	shapeSrc                  // src
	shapeDst                  // dst
	shapeBare                 //
	shapeVec2                 // elem, dst, src
	shapeBind                 // label
)

var opShapes = map[string]opShape{
	"mov": shapeBase2, "add": shapeBase2, "sub": shapeBase2,
	"and": shapeBase2, "orr": shapeBase2, "xor": shapeBase2,
	"shl": shapeBase2, "shr": shapeBase2, "sar": shapeBase2, "ror": shapeBase2,
	"mul": shapeBase2,
	"not": shapeBase1, "neg": shapeBase1,
	"mulhi": shapeSigned, "div": shapeSigned, "rem": shapeSigned,
	"cmpjump": shapeCmp, "jump": shapeJump,
	"push": shapeSrc, "pop": shapeDst,
	"saveall": shapeBare, "restoreall": shapeBare, "ret": shapeBare,
	"vmov": shapeVec2, "vadd": shapeVec2, "vsub": shapeVec2,
	"vmul": shapeVec2, "vdiv": shapeVec2,
	"vand": shapeVec2, "vorr": shapeVec2, "vxor": shapeVec2,
	"vmin": shapeVec2, "vmax": shapeVec2,
	"vceq": shapeVec2, "vclt": shapeVec2, "vcgt": shapeVec2,
	"vsqrt": shapeVec2, "vshl": shapeVec2, "vshr": shapeVec2,
	"vcvti": shapeVec2, "vcvtf": shapeVec2,
	"label": shapeBind,
}

// Parse unmarshals and validates a program.
func Parse(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Program) validate() error {
	bound := map[string]bool{}
	referred := map[string]bool{}
	for i, ins := range p.Ins {
		shape, ok := opShapes[ins.Op]
		if !ok {
			return fmt.Errorf("instruction %d: unknown op %q", i, ins.Op)
		}
		if err := checkShape(shape, ins); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, ins.Op, err)
		}
		switch shape {
		case shapeBind:
			if bound[ins.Label] {
				return fmt.Errorf("instruction %d: label %q bound twice", i, ins.Label)
			}
			bound[ins.Label] = true
		case shapeCmp, shapeJump:
			referred[ins.Label] = true
		}
	}
	for name := range referred {
		if !bound[name] {
			return fmt.Errorf("label %q referenced but never bound", name)
		}
	}
	return nil
}

func checkShape(shape opShape, ins Instruction) error {
	needDst := shape == shapeBase2 || shape == shapeBase1 || shape == shapeSigned ||
		shape == shapeCmp || shape == shapeDst || shape == shapeVec2
	needSrc := shape == shapeBase2 || shape == shapeSigned || shape == shapeCmp ||
		shape == shapeSrc || shape == shapeVec2
	needLabel := shape == shapeCmp || shape == shapeJump || shape == shapeBind
	if needDst && ins.Dst == nil {
		return fmt.Errorf("missing dst")
	}
	if needSrc && ins.Src == nil {
		return fmt.Errorf("missing src")
	}
	if needLabel && ins.Label == "" {
		return fmt.Errorf("missing label")
	}
	if ins.Dst != nil {
		if _, err := ins.Dst.resolve(); err != nil {
			return fmt.Errorf("dst: %w", err)
		}
	}
	if ins.Src != nil {
		if _, err := ins.Src.resolve(); err != nil {
			return fmt.Errorf("src: %w", err)
		}
	}
	if _, err := parseWidth(ins.Width); err != nil {
		return err
	}
	if shape == shapeVec2 {
		if _, err := parseElem(ins.Elem); err != nil {
			return err
		}
	}
	if shape == shapeCmp {
		if _, err := parseCond(ins.Cond); err != nil {
			return err
		}
	}
	return nil
}

// parseWidth defaults to w64 when the field is empty.
func parseWidth(s string) (asm.Width, error) {
	switch s {
	case "", "w64":
		return asm.W64, nil
	case "w32":
		return asm.W32, nil
	}
	return 0, fmt.Errorf("unknown width %q", s)
}

func parseElem(s string) (asm.Elem, error) {
	switch s {
	case "f32":
		return asm.F32, nil
	case "f64":
		return asm.F64, nil
	case "i32":
		return asm.I32, nil
	}
	return 0, fmt.Errorf("unknown elem %q", s)
}

func parseCond(s string) (asm.Cond, error) {
	for c := asm.EQ; c <= asm.GEU; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cond %q", s)
}

func (ins Instruction) signed() bool {
	if ins.Signed == nil {
		return true
	}
	return *ins.Signed
}
