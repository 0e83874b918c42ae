// Package stats aggregates per-protocol, per-function and per-token-pair
// call counts over one trace.
package stats

import (
	"sort"

	"github.com/zheng/tgraph/internal/trace"
)

// Category names a counter family
type Category string

const (
	CategoryProtocol  Category = "protocol"
	CategoryFunction  Category = "function"
	CategoryTokenPair Category = "token_pair"
)

// Categories lists every counter family in report order
func Categories() []Category {
	return []Category{CategoryProtocol, CategoryFunction, CategoryTokenPair}
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryProtocol, CategoryFunction, CategoryTokenPair:
		return true
	}
	return false
}

// Aggregator accumulates monotonically increasing counters. It has no reset;
// a fresh pass needs a fresh Aggregator.
type Aggregator struct {
	protocols  map[string]int
	functions  map[string]int
	tokenPairs map[string]int
	records    int
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		protocols:  make(map[string]int),
		functions:  make(map[string]int),
		tokenPairs: make(map[string]int),
	}
}

// Observe counts one accepted record
func (a *Aggregator) Observe(rec trace.CallRecord) {
	a.protocols[rec.PoolType]++
	a.functions[rec.FunctionName]++
	a.tokenPairs[rec.PairKey()]++
	a.records++
}

// Records returns the number of observed records
func (a *Aggregator) Records() int {
	return a.records
}

// Snapshot returns an independent copy of the counters
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		Protocols:  copyCounts(a.protocols),
		Functions:  copyCounts(a.functions),
		TokenPairs: copyCounts(a.tokenPairs),
		Records:    a.records,
	}
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time copy of the aggregator's counters
type Snapshot struct {
	Protocols  map[string]int `json:"protocols"`
	Functions  map[string]int `json:"functions"`
	TokenPairs map[string]int `json:"token_pairs"`
	Records    int            `json:"records"`
}

// Total returns the sum of the function counters, which equals the number
// of accepted records
func (s Snapshot) Total() int {
	total := 0
	for _, v := range s.Functions {
		total += v
	}
	return total
}

// Counts returns the counter map of a category, or nil for an unknown one
func (s Snapshot) Counts(c Category) map[string]int {
	switch c {
	case CategoryProtocol:
		return s.Protocols
	case CategoryFunction:
		return s.Functions
	case CategoryTokenPair:
		return s.TokenPairs
	}
	return nil
}

// Entry is one counter in a ranked listing
type Entry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Ranked returns the counters ordered by count descending, then key
func Ranked(m map[string]int) []Entry {
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}
