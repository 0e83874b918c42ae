package graph

// Edge connects a token node to a pool node.
// The graph is undirected: (token, pool) and (pool, token) are the same edge.
type Edge struct {
	Token    string `json:"token"`
	Pool     string `json:"pool"`
	Function string `json:"function"` // 最后一次观察到的函数
	Result   string `json:"result"`   // 最后一次观察到的返回值
	Index    int    `json:"index"`    // 最后写入该边的 trace 行序号
}

// edgeKey is the unordered pair of endpoint IDs
type edgeKey struct {
	a, b string
}

func makeEdgeKey(x, y string) edgeKey {
	if y < x {
		x, y = y, x
	}
	return edgeKey{a: x, b: y}
}
