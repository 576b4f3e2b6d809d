package token

import errorsmod "cosmossdk.io/errors"

// Codespace is the error namespace of token implementations.
const Codespace = "token"

var (
	ErrInsufficientBalance   = errorsmod.Register(Codespace, 2, "transfer amount exceeds balance")
	ErrInsufficientAllowance = errorsmod.Register(Codespace, 3, "insufficient allowance")
	ErrInvalidFlowRate       = errorsmod.Register(Codespace, 4, "invalid flow rate")
	ErrSelfFlow              = errorsmod.Register(Codespace, 5, "sender and receiver are the same")
	ErrFlowExists            = errorsmod.Register(Codespace, 6, "flow already exists")
	ErrFlowNotFound          = errorsmod.Register(Codespace, 7, "flow does not exist")
	ErrReturnedFalse         = errorsmod.Register(Codespace, 8, "token returned false")
	ErrZeroAddress           = errorsmod.Register(Codespace, 9, "zero address")
)
