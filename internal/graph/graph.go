package graph

import "fmt"

// Reader is the read-only view of a finished graph handed to sinks
// (storage, export, visualization).
type Reader interface {
	NodeCount() int
	EdgeCount() int
	Node(id string) (Node, bool)
	Nodes() []Node
	NodesByKind(kind NodeKind) []Node
	Edges() []Edge
}

// Graph is an undirected graph over token and pool addresses.
//
// Conflicting observations are resolved by last-write-wins: a pool's type
// and an edge's function/result are overwritten by later calls. A node's
// kind never changes once created.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string // first-insertion order, for stable enumeration
	edges     map[edgeKey]*Edge
	edgeOrder []edgeKey
	adjacency map[string][]string
}

var _ Reader = (*Graph)(nil)

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		adjacency: make(map[string][]string),
	}
}

// AddTokenNode adds a token node. It is a no-op if the address exists.
func (g *Graph) AddTokenNode(address string) {
	if _, ok := g.nodes[address]; ok {
		return
	}
	g.insertNode(&Node{ID: address, Kind: NodeKindToken})
}

// AddPoolNode adds a pool node, or overwrites the pool type of an existing
// pool node. An address already stored as a token is left untouched.
func (g *Graph) AddPoolNode(address, poolType string) {
	if n, ok := g.nodes[address]; ok {
		if n.Kind == NodeKindPool {
			n.PoolType = poolType
		}
		return
	}
	g.insertNode(&Node{ID: address, Kind: NodeKindPool, PoolType: poolType})
}

func (g *Graph) insertNode(n *Node) {
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
}

// AddEdge connects two existing nodes. If the edge already exists its
// attributes are overwritten.
func (g *Graph) AddEdge(a, b, function, result string, index int) error {
	na, ok := g.nodes[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, a)
	}
	nb, ok := g.nodes[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, b)
	}

	key := makeEdgeKey(a, b)
	if e, ok := g.edges[key]; ok {
		e.Function = function
		e.Result = result
		e.Index = index
		return nil
	}

	// Orient token -> pool regardless of argument order
	token, pool := na.ID, nb.ID
	if na.Kind == NodeKindPool && nb.Kind == NodeKindToken {
		token, pool = nb.ID, na.ID
	}

	g.edges[key] = &Edge{
		Token:    token,
		Pool:     pool,
		Function: function,
		Result:   result,
		Index:    index,
	}
	g.edgeOrder = append(g.edgeOrder, key)
	g.adjacency[a] = append(g.adjacency[a], b)
	if a != b {
		g.adjacency[b] = append(g.adjacency[b], a)
	}
	return nil
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Node returns a copy of the node with the given address
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in first-insertion order
func (g *Graph) Nodes() []Node {
	result := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		result = append(result, *g.nodes[id])
	}
	return result
}

// NodesByKind returns copies of all nodes of the given kind
func (g *Graph) NodesByKind(kind NodeKind) []Node {
	var result []Node
	for _, id := range g.nodeOrder {
		if n := g.nodes[id]; n.Kind == kind {
			result = append(result, *n)
		}
	}
	return result
}

// Edges returns copies of all edges in first-insertion order
func (g *Graph) Edges() []Edge {
	result := make([]Edge, 0, len(g.edgeOrder))
	for _, key := range g.edgeOrder {
		result = append(result, *g.edges[key])
	}
	return result
}

// Edge returns the edge between a and b in either order
func (g *Graph) Edge(a, b string) (Edge, bool) {
	e, ok := g.edges[makeEdgeKey(a, b)]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Neighbors returns the addresses adjacent to id, in edge creation order
func (g *Graph) Neighbors(id string) []string {
	adj := g.adjacency[id]
	result := make([]string, len(adj))
	copy(result, adj)
	return result
}
