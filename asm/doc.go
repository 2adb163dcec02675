// Package asm defines the target-independent half of the uniasm encoding
// layer: the operand model, the portable register file, the append-only
// emission buffer with label fixups, and the Encoder/Vector interfaces that
// every architecture backend implements.
//
// An operand is a tagged triplet (three int64 slots reached through First,
// Second and Third) so that generic emission helpers can thread operands
// through without knowing their concrete kind. Backends dispatch on the kind
// tag inside each mnemonic and return ErrUnsupported for combinations that
// have no encoding.
package asm
