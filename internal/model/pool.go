package model

// Pool represents a pair record for storage.
type Pool struct {
	ChainID      uint64 `json:"chain_id"`
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Index        uint64 `json:"index"`
	CreatedBlock uint64 `json:"created_block"`
}
