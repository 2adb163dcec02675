package asm

import "encoding/binary"

// Buffer is the append-only output of an encoder. A single goroutine owns it;
// every encoder method appends its complete word sequence before returning, so
// a multi-word expansion is never interleaved with another emission.
type Buffer struct {
	code  []byte
	order binary.ByteOrder
}

func NewBuffer(order binary.ByteOrder) *Buffer {
	return &Buffer{order: order}
}

func (b *Buffer) Order() binary.ByteOrder { return b.order }

func (b *Buffer) Len() int { return len(b.code) }

// Code returns the emitted bytes. The slice aliases the buffer.
func (b *Buffer) Code() []byte { return b.code }

func (b *Buffer) Byte(v ...byte) { b.code = append(b.code, v...) }

// Word appends one 32-bit instruction word in the target byte order.
func (b *Buffer) Word(w uint32) {
	var v [4]byte
	b.order.PutUint32(v[:], w)
	b.code = append(b.code, v[:]...)
}

// Word64 appends a 64-bit quantity (x86 mov r64, imm64).
func (b *Buffer) Word64(w uint64) {
	var v [8]byte
	b.order.PutUint64(v[:], w)
	b.code = append(b.code, v[:]...)
}

// WordAt reads back the 32-bit word at byte offset off.
func (b *Buffer) WordAt(off int) uint32 {
	return b.order.Uint32(b.code[off:])
}

// SetWordAt rewrites the 32-bit word at byte offset off.
func (b *Buffer) SetWordAt(off int, w uint32) {
	b.order.PutUint32(b.code[off:], w)
}

// Words decodes the whole buffer as 32-bit words, for word-oriented targets.
func (b *Buffer) Words() []uint32 {
	out := make([]uint32, 0, len(b.code)/4)
	for off := 0; off+4 <= len(b.code); off += 4 {
		out = append(out, b.order.Uint32(b.code[off:]))
	}
	return out
}

// PatchFunc rewrites the displacement field of the reference at byte offset
// at so that it reaches target. Both offsets are buffer-relative.
type PatchFunc func(b *Buffer, at, target int)

type labelRef struct {
	at    int
	patch PatchFunc
}

// Label is a forward- or backward-referenced position in the buffer.
type Label struct {
	pos   int
	bound bool
	refs  []labelRef
}

func (b *Buffer) NewLabel() *Label { return &Label{} }

// Bound reports whether the label position is fixed.
func (l *Label) Bound() bool { return l.bound }

// Pos returns the bound byte offset.
func (l *Label) Pos() int { return l.pos }

// Bind fixes the label at the current emission point and applies every
// pending reference patch.
func (b *Buffer) Bind(l *Label) {
	l.pos = b.Len()
	l.bound = true
	for _, r := range l.refs {
		r.patch(b, r.at, l.pos)
	}
	l.refs = nil
}

// Refer records a reference to l from byte offset at. Bound labels are
// patched immediately; unbound ones when Bind runs.
func (b *Buffer) Refer(l *Label, at int, patch PatchFunc) {
	if l.bound {
		patch(b, at, l.pos)
		return
	}
	l.refs = append(l.refs, labelRef{at: at, patch: patch})
}
