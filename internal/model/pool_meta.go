package model

// PoolMeta captures the immutable pair tokens of a pool.
type PoolMeta struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}
