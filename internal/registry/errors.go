package registry

import errorsmod "cosmossdk.io/errors"

// Codespace is the error namespace of the registry.
const Codespace = "registry"

var (
	ErrIdenticalAddresses = errorsmod.Register(Codespace, 2, "identical addresses")
	ErrZeroAddress        = errorsmod.Register(Codespace, 3, "zero address")
	ErrPairExists         = errorsmod.Register(Codespace, 4, "pair exists")
	ErrAuctionSet         = errorsmod.Register(Codespace, 5, "auction already set")
	ErrInvalidConfig      = errorsmod.Register(Codespace, 6, "invalid registry config")
)
