// Package trace extracts pool call records from analyzed transaction traces.
//
// A trace line looks like
//
//	[3] [WETH]-[USDC] 0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640 UniswapV3 slot0() => (sqrtPriceX96=..., tick=...) gasUsed=2696
//
// and is matched in three stages: the index/token-pair prefix, the pool
// descriptor, and the result payload. A line that fails any stage, or whose
// function is not a price function, yields no record.
package trace

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	pairPattern   = regexp.MustCompile(`^\[(\d+)\] \[(.*?)\]-\[(.*?)\]`)
	poolPattern   = regexp.MustCompile(`(0x[a-fA-F0-9]{40})\s+(\w+)\s+(\w+)\(`)
	resultPattern = regexp.MustCompile(`=>\s*\((.*?)\)`)
)

// priceFunctions is the fixed set of calls the graph is built from
var priceFunctions = map[string]struct{}{
	"slot0":       {},
	"getReserves": {},
}

// Outcome classifies what happened to a single trace line
type Outcome string

const (
	OutcomeAccepted            Outcome = "accepted"
	OutcomeNoMatch             Outcome = "no_match"
	OutcomeUnsupportedFunction Outcome = "unsupported_function"
	// OutcomeFiltered is assigned by callers applying a token allow-list.
	OutcomeFiltered Outcome = "filtered"
)

// IsPriceFunction reports whether name is in the price function allow-set
func IsPriceFunction(name string) bool {
	_, ok := priceFunctions[name]
	return ok
}

// PriceFunctions returns the allow-set in sorted order
func PriceFunctions() []string {
	names := make([]string, 0, len(priceFunctions))
	for name := range priceFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extract parses one trace line. The boolean is false when the line is not
// a recognized price call; this is the common case, not an error.
func Extract(line string) (CallRecord, bool) {
	rec, outcome := Classify(line)
	return rec, outcome == OutcomeAccepted
}

// Classify runs the three matching stages and reports why a line was
// dropped. The record is only meaningful for OutcomeAccepted.
func Classify(line string) (CallRecord, Outcome) {
	line = strings.TrimSpace(line)

	pair := pairPattern.FindStringSubmatch(line)
	if pair == nil {
		return CallRecord{}, OutcomeNoMatch
	}

	pool := poolPattern.FindStringSubmatch(line)
	if pool == nil {
		return CallRecord{}, OutcomeNoMatch
	}

	result := resultPattern.FindStringSubmatch(line)
	if result == nil {
		return CallRecord{}, OutcomeNoMatch
	}

	if !IsPriceFunction(pool[3]) {
		return CallRecord{}, OutcomeUnsupportedFunction
	}

	// \d+ always parses unless it overflows int; keep the record either way
	index, _ := strconv.Atoi(pair[1])

	return CallRecord{
		Index:          index,
		TokenA:         pair[2],
		TokenB:         pair[3],
		PoolAddress:    pool[1],
		PoolType:       pool[2],
		FunctionName:   pool[3],
		FunctionResult: result[1],
	}, OutcomeAccepted
}
