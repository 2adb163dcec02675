package asm

import "errors"

var (
	// ErrUnsupported marks a (mnemonic, operand-kind) combination that has no
	// encoding on the selected target.
	ErrUnsupported = errors.New("unsupported operand combination")

	// ErrRange marks an immediate or displacement too wide for its field when
	// no synthesis fallback is defined. Architecturally-masked values (shift
	// counts) are masked silently instead.
	ErrRange = errors.New("value out of encodable range")

	// ErrFeature marks an operation gated behind a target feature that the
	// encoder was constructed without.
	ErrFeature = errors.New("missing target feature")

	// ErrOrder marks a violation of an emission-ordering contract, such as a
	// remainder extraction that does not follow its divide.
	ErrOrder = errors.New("emission ordering contract violated")
)
