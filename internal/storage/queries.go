package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/stats"
)

// maxReachDepth bounds recursive token reachability queries
const maxReachDepth = 50

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EdgeRecord is a stored token-pool edge with the time it was last written
type EdgeRecord struct {
	graph.Edge
	ObservedAt time.Time `json:"observed_at"`
}

// ==================== Writes ====================

// UpsertToken inserts a token node if it does not exist
func (db *DB) UpsertToken(ctx context.Context, address string) error {
	return upsertToken(ctx, db.conn, address)
}

// UpsertPool inserts a pool node or overwrites its pool type
func (db *DB) UpsertPool(ctx context.Context, address, poolType string) error {
	return upsertPool(ctx, db.conn, address, poolType)
}

// UpsertEdge inserts a token-pool edge or overwrites its attributes
func (db *DB) UpsertEdge(ctx context.Context, edge graph.Edge, observedAt time.Time) error {
	return upsertEdge(ctx, db.conn, edge, observedAt)
}

func upsertToken(ctx context.Context, ex execer, address string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO nodes (address, kind) VALUES (?, 'token')
		 ON CONFLICT(address) DO NOTHING`,
		address,
	)
	return err
}

func upsertPool(ctx context.Context, ex execer, address, poolType string) error {
	// A stored token keeps its kind; only pools take the new type
	_, err := ex.ExecContext(ctx,
		`INSERT INTO nodes (address, kind, pool_type) VALUES (?, 'pool', ?)
		 ON CONFLICT(address) DO UPDATE SET pool_type = excluded.pool_type
		 WHERE nodes.kind = 'pool'`,
		address, poolType,
	)
	return err
}

func upsertEdge(ctx context.Context, ex execer, edge graph.Edge, observedAt time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO edges (token, pool, function, result, trace_index, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token, pool) DO UPDATE SET
			function = excluded.function,
			result = excluded.result,
			trace_index = excluded.trace_index,
			observed_at = excluded.observed_at`,
		edge.Token, edge.Pool, edge.Function, edge.Result, edge.Index, observedAt.UTC().Format(timeLayout),
	)
	return err
}

// SaveGraph writes every node and edge of g exactly once in one transaction
func (db *DB) SaveGraph(ctx context.Context, g graph.Reader, observedAt time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return saveGraph(ctx, tx, g, observedAt)
	})
}

func saveGraph(ctx context.Context, ex execer, g graph.Reader, observedAt time.Time) error {
	for _, n := range g.Nodes() {
		var err error
		switch n.Kind {
		case graph.NodeKindPool:
			err = upsertPool(ctx, ex, n.ID, n.PoolType)
		default:
			err = upsertToken(ctx, ex, n.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
	}
	for _, e := range g.Edges() {
		if err := upsertEdge(ctx, ex, e, observedAt); err != nil {
			return fmt.Errorf("failed to upsert edge %s-%s: %w", e.Token, e.Pool, err)
		}
	}
	return nil
}

// SaveStats stores the snapshot's counters, replacing existing values per key
func (db *DB) SaveStats(ctx context.Context, snap stats.Snapshot) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return saveStats(ctx, tx, snap)
	})
}

func saveStats(ctx context.Context, ex execer, snap stats.Snapshot) error {
	for _, category := range stats.Categories() {
		for key, count := range snap.Counts(category) {
			_, err := ex.ExecContext(ctx,
				`INSERT INTO counters (category, key, count) VALUES (?, ?, ?)
				 ON CONFLICT(category, key) DO UPDATE SET count = excluded.count`,
				string(category), key, count,
			)
			if err != nil {
				return fmt.Errorf("failed to save %s counter %q: %w", category, key, err)
			}
		}
	}
	return nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ==================== Node Queries ====================

const nodeColumns = `address, kind, pool_type`

// GetNode returns a node by address
func (db *DB) GetNode(address string) (*graph.Node, error) {
	row := db.conn.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE address = ?`, address)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return n, err
}

// GetAllNodes returns every node, tokens first
func (db *DB) GetAllNodes() ([]*graph.Node, error) {
	rows, err := db.conn.Query(`SELECT ` + nodeColumns + ` FROM nodes ORDER BY kind DESC, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// GetNodesByKind returns all nodes of one kind
func (db *DB) GetNodesByKind(kind graph.NodeKind) ([]*graph.Node, error) {
	rows, err := db.conn.Query(
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = ? ORDER BY address`,
		string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByPattern returns nodes whose address or pool type matches pattern.
// Results are sorted by match quality: exact > prefix > contains.
func (db *DB) FindNodesByPattern(pattern string) ([]*graph.Node, error) {
	rows, err := db.conn.Query(
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE address LIKE ? OR pool_type LIKE ?
		 ORDER BY
			CASE
				WHEN address = ? THEN 0
				WHEN address LIKE ? || '%' THEN 1
				ELSE 2
			END,
			address ASC`,
		"%"+pattern+"%", "%"+pattern+"%", pattern, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// GetPoolsForToken returns the pools a token is connected to
func (db *DB) GetPoolsForToken(token string) ([]*graph.Node, error) {
	rows, err := db.conn.Query(
		`SELECT n.address, n.kind, n.pool_type
		 FROM nodes n
		 JOIN edges e ON e.pool = n.address
		 WHERE e.token = ?
		 ORDER BY n.pool_type, n.address`,
		token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// GetTokensForPool returns the tokens connected to a pool
func (db *DB) GetTokensForPool(pool string) ([]*graph.Node, error) {
	rows, err := db.conn.Query(
		`SELECT n.address, n.kind, n.pool_type
		 FROM nodes n
		 JOIN edges e ON e.token = n.address
		 WHERE e.pool = ?
		 ORDER BY n.address`,
		pool,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ReachableToken is a token reachable from another through shared pools
type ReachableToken struct {
	Node  *graph.Node
	Depth int // number of pools crossed
}

// GetReachableTokens returns tokens reachable from token by hopping
// token -> pool -> token up to maxDepth pools. maxDepth 0 means the
// internal limit.
func (db *DB) GetReachableTokens(token string, maxDepth int) ([]*ReachableToken, error) {
	if maxDepth <= 0 || maxDepth > maxReachDepth {
		maxDepth = maxReachDepth
	}

	rows, err := db.conn.Query(`
		WITH RECURSIVE reach(address, depth) AS (
			SELECT e2.token, 1
			FROM edges e1
			JOIN edges e2 ON e2.pool = e1.pool
			WHERE e1.token = ?
			UNION
			SELECT e2.token, r.depth + 1
			FROM reach r
			JOIN edges e1 ON e1.token = r.address
			JOIN edges e2 ON e2.pool = e1.pool
			WHERE r.depth < ?
		)
		SELECT n.address, n.kind, n.pool_type, MIN(r.depth) AS depth
		FROM reach r
		JOIN nodes n ON n.address = r.address
		WHERE r.address != ?
		GROUP BY n.address
		ORDER BY depth, n.address`,
		token, maxDepth, token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ReachableToken
	for rows.Next() {
		var n graph.Node
		var poolType sql.NullString
		var depth int
		if err := rows.Scan(&n.ID, &n.Kind, &poolType, &depth); err != nil {
			return nil, err
		}
		n.PoolType = poolType.String
		result = append(result, &ReachableToken{Node: &n, Depth: depth})
	}
	return result, rows.Err()
}

// TreeNode is a node in a neighborhood tree
type TreeNode struct {
	Node     *graph.Node
	Function string // 连接父节点那条边最后观察到的函数
	Children []*TreeNode
}

// GetNeighborTree builds the tree of nodes around address, walking at most
// maxHops edges. Each node appears once, at its shallowest position.
func (db *DB) GetNeighborTree(address string, maxHops int) ([]*TreeNode, error) {
	if maxHops <= 0 {
		maxHops = 1
	}
	if maxHops > 2*maxReachDepth {
		maxHops = 2 * maxReachDepth
	}

	type pending struct {
		address string
		tree    *TreeNode
	}

	root := &TreeNode{}
	visited := map[string]bool{address: true}
	frontier := []pending{{address: address, tree: root}}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []pending
		for _, p := range frontier {
			edges, err := db.GetEdgesForNode(p.address)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				other := e.Pool
				if other == p.address {
					other = e.Token
				}
				if visited[other] {
					continue
				}
				visited[other] = true

				n, err := db.GetNode(other)
				if err != nil {
					return nil, err
				}
				child := &TreeNode{Node: n, Function: e.Function}
				p.tree.Children = append(p.tree.Children, child)
				next = append(next, pending{address: other, tree: child})
			}
		}
		frontier = next
	}
	return root.Children, nil
}

// ==================== Edge Queries ====================

const edgeColumns = `token, pool, function, result, trace_index, observed_at`

// GetAllEdges returns all edges in the database
func (db *DB) GetAllEdges() ([]*EdgeRecord, error) {
	rows, err := db.conn.Query(`SELECT ` + edgeColumns + ` FROM edges ORDER BY token, pool`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// GetEdgesForNode returns the edges touching a token or pool
func (db *DB) GetEdgesForNode(address string) ([]*EdgeRecord, error) {
	rows, err := db.conn.Query(
		`SELECT `+edgeColumns+` FROM edges WHERE token = ? OR pool = ? ORDER BY token, pool`,
		address, address,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// GetStats returns database statistics
func (db *DB) GetStats() (nodeCount, edgeCount int64, err error) {
	err = db.conn.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodeCount)
	if err != nil {
		return
	}
	err = db.conn.QueryRow(`SELECT COUNT(*) FROM edges`).Scan(&edgeCount)
	return
}

// ==================== Counter Queries ====================

// GetCounters returns one counter family ordered by count
func (db *DB) GetCounters(category stats.Category) ([]stats.Entry, error) {
	rows, err := db.conn.Query(
		`SELECT key, count FROM counters WHERE category = ? ORDER BY count DESC, key ASC`,
		string(category),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []stats.Entry
	for rows.Next() {
		var e stats.Entry
		if err := rows.Scan(&e.Key, &e.Count); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSnapshot rebuilds a statistics snapshot from the stored counters
func (db *DB) GetSnapshot() (stats.Snapshot, error) {
	snap := stats.Snapshot{
		Protocols:  make(map[string]int),
		Functions:  make(map[string]int),
		TokenPairs: make(map[string]int),
	}
	for _, category := range stats.Categories() {
		entries, err := db.GetCounters(category)
		if err != nil {
			return stats.Snapshot{}, err
		}
		counts := snap.Counts(category)
		for _, e := range entries {
			counts[e.Key] = e.Count
		}
	}
	snap.Records = snap.Total()
	return snap, nil
}

// GetProtocolPoolCounts returns the number of distinct pools per protocol
func (db *DB) GetProtocolPoolCounts() ([]stats.Entry, error) {
	rows, err := db.conn.Query(
		`SELECT COALESCE(pool_type, ''), COUNT(*) AS pools FROM nodes
		 WHERE kind = 'pool'
		 GROUP BY pool_type
		 ORDER BY pools DESC, pool_type ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []stats.Entry
	for rows.Next() {
		var e stats.Entry
		if err := rows.Scan(&e.Key, &e.Count); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ==================== Hub Queries ====================

// TokenHub is a token ranked by how many pools it trades in
type TokenHub struct {
	Node  *graph.Node
	Pools int
	Level string // low, medium, high, critical
}

// CalculateHubLevel determines how central a token is from its pool count
func CalculateHubLevel(pools int) string {
	if pools >= 50 {
		return "critical"
	}
	if pools >= 20 {
		return "high"
	}
	if pools >= 5 {
		return "medium"
	}
	return "low"
}

// GetTopTokens returns tokens connected to the most pools
func (db *DB) GetTopTokens(limit int) ([]*TokenHub, error) {
	rows, err := db.conn.Query(`
		SELECT n.address, n.kind, n.pool_type, COUNT(e.pool) AS pools
		FROM nodes n
		LEFT JOIN edges e ON e.token = n.address
		WHERE n.kind = 'token'
		GROUP BY n.address
		ORDER BY pools DESC, n.address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*TokenHub
	for rows.Next() {
		var n graph.Node
		var poolType sql.NullString
		var pools int
		if err := rows.Scan(&n.ID, &n.Kind, &poolType, &pools); err != nil {
			return nil, err
		}
		n.PoolType = poolType.String
		results = append(results, &TokenHub{
			Node:  &n,
			Pools: pools,
			Level: CalculateHubLevel(pools),
		})
	}
	return results, rows.Err()
}

// Helper functions

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*graph.Node, error) {
	var n graph.Node
	var poolType sql.NullString
	if err := row.Scan(&n.ID, &n.Kind, &poolType); err != nil {
		return nil, err
	}
	if poolType.Valid {
		n.PoolType = poolType.String
	}
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*graph.Node, error) {
	var nodes []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]*EdgeRecord, error) {
	var edges []*EdgeRecord
	for rows.Next() {
		var e EdgeRecord
		var result sql.NullString
		var index sql.NullInt64
		var observedAt string
		if err := rows.Scan(&e.Token, &e.Pool, &e.Function, &result, &index, &observedAt); err != nil {
			return nil, err
		}
		e.Result = result.String
		e.Index = int(index.Int64)
		if t, err := time.Parse(timeLayout, observedAt); err == nil {
			e.ObservedAt = t
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
