package auction

import errorsmod "cosmossdk.io/errors"

// Codespace is the error namespace of the auction.
const Codespace = "auction"

var (
	ErrLocked                = errorsmod.Register(Codespace, 2, "locked")
	ErrExpired               = errorsmod.Register(Codespace, 3, "deadline passed")
	ErrInvalidPair           = errorsmod.Register(Codespace, 4, "pool not created by registry")
	ErrTokenNotInPair        = errorsmod.Register(Codespace, 5, "token not in pair")
	ErrInsufficientBid       = errorsmod.Register(Codespace, 6, "insufficient bid")
	ErrUnderMinimumAmountOut = errorsmod.Register(Codespace, 7, "output under minimum")
	ErrAlreadyExecuted       = errorsmod.Register(Codespace, 8, "winning bid already executed")
	ErrNoBid                 = errorsmod.Register(Codespace, 9, "no bid")
	ErrTransferFailed        = errorsmod.Register(Codespace, 10, "transfer failed")
	ErrTransferFromFailed    = errorsmod.Register(Codespace, 11, "transfer from failed")
	ErrInvalidAmount         = errorsmod.Register(Codespace, 12, "invalid swap amount")
)
