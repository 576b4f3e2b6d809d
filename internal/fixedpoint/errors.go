package fixedpoint

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error namespace for fixed-point arithmetic.
const Codespace = "fixedpoint"

var (
	ErrOverflow       = errorsmod.Register(Codespace, 2, "arithmetic overflow")
	ErrUnderflow      = errorsmod.Register(Codespace, 3, "arithmetic underflow")
	ErrDivisionByZero = errorsmod.Register(Codespace, 4, "division by zero")
	ErrInvalidNumber  = errorsmod.Register(Codespace, 5, "invalid number")
)
