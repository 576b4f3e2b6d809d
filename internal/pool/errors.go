package pool

import errorsmod "cosmossdk.io/errors"

// Codespace is the error namespace of pools.
const Codespace = "pool"

var (
	ErrLocked                      = errorsmod.Register(Codespace, 2, "locked")
	ErrForbidden                   = errorsmod.Register(Codespace, 3, "forbidden")
	ErrInvariantViolation          = errorsmod.Register(Codespace, 4, "constant product decreased")
	ErrInsufficientOutputAmount    = errorsmod.Register(Codespace, 5, "insufficient output amount")
	ErrInsufficientInputAmount     = errorsmod.Register(Codespace, 6, "insufficient input amount")
	ErrInsufficientLiquidity       = errorsmod.Register(Codespace, 7, "insufficient liquidity")
	ErrInsufficientLiquidityMinted = errorsmod.Register(Codespace, 8, "insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errorsmod.Register(Codespace, 9, "insufficient liquidity burned")
	ErrInvalidTo                   = errorsmod.Register(Codespace, 10, "invalid recipient")
	ErrOverflow                    = errorsmod.Register(Codespace, 11, "reserve overflow")
	ErrTransferFailed              = errorsmod.Register(Codespace, 12, "transfer failed")
	ErrTokenNotInPair              = errorsmod.Register(Codespace, 13, "token not in pair")
	ErrInvalidFlow                 = errorsmod.Register(Codespace, 14, "invalid flow update")
	ErrUnderfunded                 = errorsmod.Register(Codespace, 15, "holdings below streamer obligations")
	ErrInvalidConfig               = errorsmod.Register(Codespace, 16, "invalid pool config")
	ErrInsufficientShares          = errorsmod.Register(Codespace, 17, "insufficient liquidity shares")
)
