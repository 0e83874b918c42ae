package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/trace"
)

// Builder turns a trace into a graph and call statistics.
// Every Build call starts from a fresh Graph and Aggregator.
type Builder struct {
	allowed map[string]struct{} // nil means no filter
	logger  *zap.Logger
}

// BuilderOption configures the builder
type BuilderOption func(*Builder)

// WithAllowedTokens restricts the build to records whose two tokens are
// both in the list. An empty list disables filtering.
func WithAllowedTokens(tokens []string) BuilderOption {
	return func(b *Builder) {
		if len(tokens) == 0 {
			b.allowed = nil
			return
		}
		b.allowed = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			b.allowed[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for build diagnostics
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a new trace graph builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{logger: zap.L()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildResult holds the finished graph, its statistics and line accounting
type BuildResult struct {
	Graph       *Graph
	Stats       *stats.Aggregator
	Lines       int
	Accepted    int
	NoMatch     int
	Unsupported int
	Filtered    int
	Duration    time.Duration
}

// BuildFile opens path and builds from its contents
func (b *Builder) BuildFile(path string) (*BuildResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraceSource, err)
	}
	defer f.Close()

	return b.Build(f)
}

// Build reads r to completion. Unrecognized and filtered lines are skipped;
// a read failure discards everything and returns an ErrTraceSource error.
func (b *Builder) Build(r io.Reader) (*BuildResult, error) {
	start := time.Now()
	result := b.newResult()

	err := trace.Scan(r, func(lineNo int, line string) {
		b.processLine(result, lineNo, line)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraceSource, err)
	}

	b.finish(result, start)
	return result, nil
}

// BuildLines builds from an in-memory trace
func (b *Builder) BuildLines(lines []string) *BuildResult {
	start := time.Now()
	result := b.newResult()
	for i, line := range lines {
		b.processLine(result, i+1, line)
	}
	b.finish(result, start)
	return result
}

func (b *Builder) newResult() *BuildResult {
	return &BuildResult{
		Graph: NewGraph(),
		Stats: stats.NewAggregator(),
	}
}

func (b *Builder) processLine(result *BuildResult, lineNo int, line string) {
	result.Lines++

	rec, outcome := trace.Classify(line)
	if outcome == trace.OutcomeAccepted && !b.isAllowed(rec) {
		outcome = trace.OutcomeFiltered
	}
	linesTotal.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case trace.OutcomeNoMatch:
		result.NoMatch++
		return
	case trace.OutcomeUnsupportedFunction:
		result.Unsupported++
		return
	case trace.OutcomeFiltered:
		result.Filtered++
		b.logger.Debug("record filtered by allow-list",
			zap.Int("line", lineNo),
			zap.String("token_a", rec.TokenA),
			zap.String("token_b", rec.TokenB))
		return
	}

	if err := b.merge(result.Graph, rec); err != nil {
		// Unreachable: merge creates both endpoints before each edge.
		b.logger.Error("failed to merge record", zap.Int("line", lineNo), zap.Error(err))
		return
	}
	result.Stats.Observe(rec)
	result.Accepted++
}

// isAllowed applies the exclusive allow-list: both tokens must be allowed
func (b *Builder) isAllowed(rec trace.CallRecord) bool {
	if b.allowed == nil {
		return true
	}
	_, okA := b.allowed[rec.TokenA]
	_, okB := b.allowed[rec.TokenB]
	return okA && okB
}

// merge adds both tokens, the pool and both token-pool edges
func (b *Builder) merge(g *Graph, rec trace.CallRecord) error {
	g.AddTokenNode(rec.TokenA)
	g.AddTokenNode(rec.TokenB)
	g.AddPoolNode(rec.PoolAddress, rec.PoolType)

	if err := g.AddEdge(rec.TokenA, rec.PoolAddress, rec.FunctionName, rec.FunctionResult, rec.Index); err != nil {
		return err
	}
	return g.AddEdge(rec.TokenB, rec.PoolAddress, rec.FunctionName, rec.FunctionResult, rec.Index)
}

func (b *Builder) finish(result *BuildResult, start time.Time) {
	result.Duration = time.Since(start)
	buildDuration.Observe(result.Duration.Seconds())

	g := result.Graph
	tokens := len(g.NodesByKind(NodeKindToken))
	pools := len(g.NodesByKind(NodeKindPool))
	graphNodes.WithLabelValues(string(NodeKindToken)).Set(float64(tokens))
	graphNodes.WithLabelValues(string(NodeKindPool)).Set(float64(pools))
	graphEdges.Set(float64(g.EdgeCount()))

	b.logger.Info("trace graph built",
		zap.Int("lines", result.Lines),
		zap.Int("accepted", result.Accepted),
		zap.Int("no_match", result.NoMatch),
		zap.Int("unsupported", result.Unsupported),
		zap.Int("filtered", result.Filtered),
		zap.Int("tokens", tokens),
		zap.Int("pools", pools),
		zap.Int("edges", g.EdgeCount()),
		zap.Duration("duration", result.Duration))
}

// LoadAllowList reads token addresses, one per line. Blank lines and lines
// starting with '#' are ignored.
func LoadAllowList(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	return tokens, nil
}
