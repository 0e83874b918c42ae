package graph

// NodeKind represents the type of an on-chain entity in the graph
type NodeKind string

const (
	NodeKindToken NodeKind = "token"
	NodeKindPool  NodeKind = "pool"
)

// Node represents a token or a liquidity pool, identified by its address
type Node struct {
	ID       string   `json:"id"`                  // 地址, 原样保存不做大小写归一
	Kind     NodeKind `json:"kind"`                // token / pool
	PoolType string   `json:"pool_type,omitempty"` // 仅 pool 节点: 协议名
}
