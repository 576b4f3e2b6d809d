package chain

import errorsmod "cosmossdk.io/errors"

// Codespace is the error namespace of the chain runtime.
const Codespace = "chain"

var (
	ErrTimeTravel    = errorsmod.Register(Codespace, 2, "timestamp moves backwards")
	ErrNoTransaction = errorsmod.Register(Codespace, 3, "no open transaction")
)
