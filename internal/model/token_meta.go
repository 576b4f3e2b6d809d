package model

// TokenMeta captures token metadata.
type TokenMeta struct {
	Address   string `json:"address"`
	Decimals  uint8  `json:"decimals"`
	Symbol    string `json:"symbol"`
	Streaming bool   `json:"streaming"`
}
