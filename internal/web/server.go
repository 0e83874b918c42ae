package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/route"
	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/storage"
)

//go:embed static/*
var staticFS embed.FS

// Server is the web server for visualizing the token-pool graph
type Server struct {
	db     *storage.DB
	port   int
	hub    *Hub
	logger *zap.Logger
	http   *http.Server
}

// NewServer creates a new web server
func NewServer(db *storage.DB, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	return &Server{db: db, port: port, hub: NewHub(logger), logger: logger}
}

// API response types
type GraphData struct {
	Nodes []NodeData `json:"nodes"`
	Edges []EdgeData `json:"edges"`
}

type NodeData struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	PoolType string `json:"poolType,omitempty"`
	Group    string `json:"group"`
}

type EdgeData struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Function   string `json:"function"`
	Result     string `json:"result"`
	Index      int    `json:"index"`
	ObservedAt string `json:"observedAt"`
}

type StatsData struct {
	NodeCount        int64          `json:"nodeCount"`
	EdgeCount        int64          `json:"edgeCount"`
	Protocols        map[string]int `json:"protocols"`
	Functions        map[string]int `json:"functions"`
	TokenPairs       map[string]int `json:"tokenPairs"`
	Records          int            `json:"records"`
	PoolsPerProtocol []stats.Entry  `json:"poolsPerProtocol"`
	LatestRun        *storage.Run   `json:"latestRun,omitempty"`
}

type NeighborData struct {
	Target NodeData       `json:"target"`
	Pools  []NodeData     `json:"pools"`
	Tokens []ReachData    `json:"tokens"`
	Tree   []TreeNodeData `json:"tree"`
}

type ReachData struct {
	NodeData
	Depth int `json:"depth"`
}

type TreeNodeData struct {
	NodeData
	Function string         `json:"function"`
	Children []TreeNodeData `json:"children,omitempty"`
}

// Handler builds the route table
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/graph", instrument("graph", s.handleGraph))
	mux.HandleFunc("/api/nodes", instrument("nodes", s.handleNodes))
	mux.HandleFunc("/api/node/", instrument("node", s.handleNode))
	mux.HandleFunc("/api/search", instrument("search", s.handleSearch))
	mux.HandleFunc("/api/stats", instrument("stats", s.handleStats))
	mux.HandleFunc("/api/counters/", instrument("counters", s.handleCounters))
	mux.HandleFunc("/api/neighbors/", instrument("neighbors", s.handleNeighbors))

	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", promhttp.Handler())

	// Static files
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to get static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticContent)))
	return mux, nil
}

// Run starts the web server and blocks until ctx is cancelled or the
// listener fails
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 Web UI 启动", zap.String("url", "http://localhost"+addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Notify tells connected browsers that a new run was persisted
func (s *Server) Notify(runID string) {
	refreshes.Inc()
	s.hub.Broadcast(Event{Type: "refresh", RunID: runID})
}

// handleGraph returns the complete graph data
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.GetAllNodes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	edges, err := s.db.GetAllEdges()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := GraphData{
		Nodes: nodesToData(nodes),
		Edges: make([]EdgeData, 0, len(edges)),
	}
	for _, e := range edges {
		data.Edges = append(data.Edges, EdgeData{
			From:       e.Token,
			To:         e.Pool,
			Function:   e.Function,
			Result:     e.Result,
			Index:      e.Index,
			ObservedAt: e.ObservedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, data)
}

// handleNodes returns all nodes, optionally of one kind
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	var nodes []*graph.Node
	var err error

	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
		nodes, err = s.db.GetAllNodes()
	case string(graph.NodeKindToken), string(graph.NodeKindPool):
		nodes, err = s.db.GetNodesByKind(graph.NodeKind(kind))
	default:
		http.Error(w, "Invalid kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, nodesToData(nodes))
}

// handleNode returns a single node with its connections
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/api/node/")
	if address == "" {
		http.Error(w, "Missing address", http.StatusBadRequest)
		return
	}

	node, err := s.db.GetNode(address)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var neighbors []*graph.Node
	if node.Kind == graph.NodeKindPool {
		neighbors, err = s.db.GetTokensForPool(address)
	} else {
		neighbors, err = s.db.GetPoolsForToken(address)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"node":      nodeToData(node),
		"neighbors": nodesToData(neighbors),
	})
}

// handleSearch searches for nodes by pattern
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("q")
	if pattern == "" {
		writeJSON(w, []NodeData{})
		return
	}

	nodes, err := s.db.FindNodesByPattern(pattern)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, nodesToData(nodes))
}

// handleStats returns database statistics and call counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	nodeCount, edgeCount, err := s.db.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pools, err := s.db.GetProtocolPoolCounts()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := StatsData{
		NodeCount:        nodeCount,
		EdgeCount:        edgeCount,
		Protocols:        snap.Protocols,
		Functions:        snap.Functions,
		TokenPairs:       snap.TokenPairs,
		Records:          snap.Records,
		PoolsPerProtocol: pools,
	}
	if run, err := s.db.GetLatestRun(); err == nil {
		data.LatestRun = run
	}
	writeJSON(w, data)
}

// handleCounters returns one counter family ranked by count
func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	category := stats.Category(strings.TrimPrefix(r.URL.Path, "/api/counters/"))
	if !category.Valid() {
		http.Error(w, "Invalid category", http.StatusBadRequest)
		return
	}

	entries, err := s.db.GetCounters(category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []stats.Entry{}
	}
	writeJSON(w, entries)
}

// handleNeighbors returns the neighbourhood of a token or pool
func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/api/neighbors/")

	depth := route.DefaultDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil {
			depth = parsed
		}
	}

	report, err := route.NewAnalyzer(s.db).Analyze(address, depth)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := NeighborData{
		Target: nodeToData(report.Target),
		Pools:  nodesToData(report.Pools),
		Tokens: make([]ReachData, 0, len(report.Tokens)),
		Tree:   treeToData(report.Tree),
	}
	for _, t := range report.Tokens {
		data.Tokens = append(data.Tokens, ReachData{NodeData: nodeToData(t.Node), Depth: t.Depth})
	}
	writeJSON(w, data)
}

// Helper functions
func nodeToData(n *graph.Node) NodeData {
	group := string(n.Kind)
	if n.Kind == graph.NodeKindPool && n.PoolType != "" {
		group = n.PoolType
	}
	return NodeData{
		ID:       n.ID,
		Label:    display.ShortAddress(n.ID),
		Kind:     string(n.Kind),
		PoolType: n.PoolType,
		Group:    group,
	}
}

func nodesToData(nodes []*graph.Node) []NodeData {
	result := make([]NodeData, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, nodeToData(n))
	}
	return result
}

func treeToData(tree []*storage.TreeNode) []TreeNodeData {
	result := make([]TreeNodeData, 0, len(tree))
	for _, t := range tree {
		result = append(result, TreeNodeData{
			NodeData: nodeToData(t.Node),
			Function: t.Function,
			Children: treeToData(t.Children),
		})
	}
	return result
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(data)
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		apiRequests.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
	}
}
