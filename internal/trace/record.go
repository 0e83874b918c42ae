package trace

// CallRecord is one price-relevant pool call extracted from a trace line
type CallRecord struct {
	Index          int    `json:"index"`           // [<index>] 前缀
	TokenA         string `json:"token_a"`         // 行内第一个 token
	TokenB         string `json:"token_b"`         // 行内第二个 token
	PoolAddress    string `json:"pool_address"`    // 池子地址 (0x + 40 hex)
	PoolType       string `json:"pool_type"`       // 协议名, 如 UniswapV2
	FunctionName   string `json:"function_name"`   // slot0 / getReserves
	FunctionResult string `json:"function_result"` // => (...) 中的内容
}

// PairKey returns the ordered token pair as it appears in the line.
// "X-Y" and "Y-X" are different keys.
func (r CallRecord) PairKey() string {
	return r.TokenA + "-" + r.TokenB
}
