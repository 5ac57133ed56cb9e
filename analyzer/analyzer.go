// Package analyzer implements the Folded Analyzer (§4.E): read-only
// queries over a folded Mapping -- symbol hotspots, stack top-K, subsets,
// children hotspots, DSO aggregation, and percentage shares.
package analyzer

import (
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/foldstack/foldcore/collapse"
	"github.com/foldstack/foldcore/foldedio"
	"github.com/foldstack/foldcore/internal/ferr"
)

// SymbolStat is one row of §4.E.1's symbol-hotspot output.
type SymbolStat struct {
	Symbol    string
	Inclusive uint64
	Leaf      uint64
}

// StackStat is one row of §4.E.2's stack top-K output.
type StackStat struct {
	Stack  string
	Weight uint64
}

// DSOStat is one row of §4.E.6's module-level aggregation.
type DSOStat struct {
	Module    string
	Inclusive uint64
	Leaf      uint64
}

// SymbolShare wraps a SymbolStat with percentage-of-denominator fields
// (§4.E.5), rendered to two decimal places.
type SymbolShare struct {
	SymbolStat
	InclusivePct float64
	LeafPct      float64
}

// StackShare wraps a StackStat with its percentage of the denominator.
type StackShare struct {
	StackStat
	Pct float64
}

// SymbolFilter is the four-way include/exclude prefix/suffix filter of
// §4.E.1. An empty filter passes everything.
type SymbolFilter struct {
	IncludePrefixes []string
	IncludeSuffixes []string
	ExcludePrefixes []string
	ExcludeSuffixes []string
}

func (f SymbolFilter) empty() bool {
	return len(f.IncludePrefixes) == 0 && len(f.IncludeSuffixes) == 0 &&
		len(f.ExcludePrefixes) == 0 && len(f.ExcludeSuffixes) == 0
}

// Match reports whether symbol passes the filter: any-of across the
// include lists (only when at least one include predicate is configured),
// rejected by any single matching exclude predicate.
func (f SymbolFilter) Match(symbol string) bool {
	if f.empty() {
		return true
	}
	hasInclude := len(f.IncludePrefixes) > 0 || len(f.IncludeSuffixes) > 0
	if hasInclude {
		included := false
		for _, p := range f.IncludePrefixes {
			if strings.HasPrefix(symbol, p) {
				included = true
				break
			}
		}
		if !included {
			for _, s := range f.IncludeSuffixes {
				if strings.HasSuffix(symbol, s) {
					included = true
					break
				}
			}
		}
		if !included {
			return false
		}
	}
	for _, p := range f.ExcludePrefixes {
		if strings.HasPrefix(symbol, p) {
			return false
		}
	}
	for _, s := range f.ExcludeSuffixes {
		if strings.HasSuffix(symbol, s) {
			return false
		}
	}
	return true
}

// ProcessFilter restricts stacks to those whose process segment matches a
// prefix and/or a compiled regular expression (§4.E.1). Both fields are
// optional; a zero-value ProcessFilter matches everything.
type ProcessFilter struct {
	Prefix string
	Regexp *regexp.Regexp
}

func (f ProcessFilter) match(process string) bool {
	if f.Prefix != "" && !strings.HasPrefix(process, f.Prefix) {
		return false
	}
	if f.Regexp != nil && !f.Regexp.MatchString(process) {
		return false
	}
	return true
}

// Order selects the secondary key for top-K symbol sorting.
type Order string

const (
	OrderInclusive Order = "inclusive"
	OrderLeaf      Order = "leaf"
)

// Analyzer wraps a folded Mapping and exposes read-only queries. It is
// immutable after construction and safe for concurrent readers (§5,
// "shared resources: none... may be shared freely among readers").
type Analyzer struct {
	m     collapse.Mapping
	total uint64

	// processCache memoizes the split of a stack key's process segment,
	// so repeated queries over the same mapping do not re-split keys. The
	// prefix/regex match itself is not cached: it is evaluated once per
	// stack on every query. Built once in New and never mutated
	// afterwards, so Analyzer stays safe for concurrent readers per §5.
	processCache map[string]string
}

// New wraps an existing Mapping. The Mapping is not copied; callers must
// not mutate it afterwards.
func New(m collapse.Mapping) *Analyzer {
	var total uint64
	processCache := make(map[string]string, len(m))
	for stack, w := range m {
		total += w
		processCache[stack] = processOf(stack)
	}
	return &Analyzer{m: m, total: total, processCache: processCache}
}

// FromReader builds an Analyzer from folded text (§6.4 "build-from-text").
func FromReader(r io.Reader) (*Analyzer, error) {
	m, err := foldedio.Parse(r)
	if err != nil {
		return nil, err
	}
	return New(m), nil
}

// FromFile builds an Analyzer from a folded file, transparently
// decompressing ".gz" paths (§6.4 "build-from-file").
func FromFile(path string) (*Analyzer, error) {
	m, err := foldedio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(m), nil
}

// Mapping returns the underlying folded Mapping. Callers must treat it as
// read-only.
func (a *Analyzer) Mapping() collapse.Mapping { return a.m }

// Total returns the sum of all weights in the wrapped mapping.
func (a *Analyzer) Total() uint64 { return a.total }

func processOf(stack string) string {
	if i := strings.IndexByte(stack, ';'); i >= 0 {
		return stack[:i]
	}
	return stack
}

func framesOf(stack string) []string {
	parts := strings.Split(stack, ";")
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

func (a *Analyzer) process(stack string) string {
	if p, ok := a.processCache[stack]; ok {
		return p
	}
	return processOf(stack)
}

// TopKSymbols computes inclusive/leaf hotspots per §4.E.1 and returns the
// top k, stable-sorted by (inclusive desc, leaf desc) or (leaf desc,
// inclusive desc) when order is OrderLeaf.
func (a *Analyzer) TopKSymbols(k int, order Order, symFilter SymbolFilter, procFilter ProcessFilter) ([]SymbolStat, error) {
	if k < 0 {
		return nil, ferr.InvalidArgument("analyzer: k must be non-negative, got %d", k)
	}
	if order != "" && order != OrderInclusive && order != OrderLeaf {
		return nil, ferr.InvalidArgument("analyzer: unknown order %q", order)
	}
	if order == "" {
		order = OrderInclusive
	}
	if k == 0 {
		return []SymbolStat{}, nil
	}

	inclusive := map[string]uint64{}
	leaf := map[string]uint64{}
	for stack, weight := range a.m {
		if !procFilter.match(a.process(stack)) {
			continue
		}
		frames := framesOf(stack)
		if len(frames) == 0 {
			continue
		}
		seen := make(map[string]bool, len(frames))
		for _, sym := range frames {
			if !symFilter.Match(sym) {
				continue
			}
			if !seen[sym] {
				inclusive[sym] += weight
				seen[sym] = true
			}
		}
		last := frames[len(frames)-1]
		if symFilter.Match(last) {
			leaf[last] += weight
		}
	}

	stats := make([]SymbolStat, 0, len(inclusive))
	for sym, inc := range inclusive {
		stats = append(stats, SymbolStat{Symbol: sym, Inclusive: inc, Leaf: leaf[sym]})
	}

	sortSymbolStats(stats, order)
	if k < len(stats) {
		stats = stats[:k]
	}
	return stats, nil
}

func sortSymbolStats(stats []SymbolStat, order Order) {
	sort.SliceStable(stats, func(i, j int) bool {
		if order == OrderLeaf {
			if stats[i].Leaf != stats[j].Leaf {
				return stats[i].Leaf > stats[j].Leaf
			}
			return stats[i].Inclusive > stats[j].Inclusive
		}
		if stats[i].Inclusive != stats[j].Inclusive {
			return stats[i].Inclusive > stats[j].Inclusive
		}
		return stats[i].Leaf > stats[j].Leaf
	})
}

// TopKStacks stable-sorts stacks by weight descending and returns the
// first k (§4.E.2).
func (a *Analyzer) TopKStacks(k int) ([]StackStat, error) {
	if k < 0 {
		return nil, ferr.InvalidArgument("analyzer: k must be non-negative, got %d", k)
	}
	if k == 0 {
		return []StackStat{}, nil
	}
	stats := make([]StackStat, 0, len(a.m))
	for stack, weight := range a.m {
		stats = append(stats, StackStat{Stack: stack, Weight: weight})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Weight != stats[j].Weight {
			return stats[i].Weight > stats[j].Weight
		}
		return stats[i].Stack < stats[j].Stack
	})
	if k < len(stats) {
		stats = stats[:k]
	}
	return stats, nil
}

// SubsetBySymbol retains stacks containing s as an exact frame element;
// when containsFallback is set, stacks whose key contains s as a raw
// substring are retained too (§4.E.3).
func (a *Analyzer) SubsetBySymbol(s string, containsFallback bool) (*Analyzer, error) {
	if s == "" {
		return nil, ferr.InvalidArgument("analyzer: symbol must not be empty")
	}
	sub := collapse.Mapping{}
	for stack, weight := range a.m {
		if containsStack(stack, s, containsFallback) {
			sub[stack] = weight
		}
	}
	return New(sub), nil
}

func containsStack(stack, symbol string, containsFallback bool) bool {
	for _, f := range framesOf(stack) {
		if f == symbol {
			return true
		}
	}
	if containsFallback && strings.Contains(stack, symbol) {
		return true
	}
	return false
}

// SubsetByPrefix retains stacks whose first len(prefix) frames equal
// prefix exactly (§4.E.3).
func (a *Analyzer) SubsetByPrefix(prefix []string) (*Analyzer, error) {
	if len(prefix) == 0 {
		return nil, ferr.InvalidArgument("analyzer: prefix must not be empty")
	}
	sub := collapse.Mapping{}
	for stack, weight := range a.m {
		frames := framesOf(stack)
		if len(frames) < len(prefix) {
			continue
		}
		if equalSlices(frames[:len(prefix)], prefix) {
			sub[stack] = weight
		}
	}
	return New(sub), nil
}

// SubsetBySuffix retains stacks whose last len(suffix) frames equal
// suffix exactly (§4.E.3).
func (a *Analyzer) SubsetBySuffix(suffix []string) (*Analyzer, error) {
	if len(suffix) == 0 {
		return nil, ferr.InvalidArgument("analyzer: suffix must not be empty")
	}
	sub := collapse.Mapping{}
	for stack, weight := range a.m {
		frames := framesOf(stack)
		if len(frames) < len(suffix) {
			continue
		}
		if equalSlices(frames[len(frames)-len(suffix):], suffix) {
			sub[stack] = weight
		}
	}
	return New(sub), nil
}

// FilterStacksByPrefixes is a supplemented convenience over
// SubsetByPrefix: it retains a stack if it matches any one of several
// candidate prefixes, useful for selecting several unrelated call paths
// in one pass.
func (a *Analyzer) FilterStacksByPrefixes(prefixes [][]string) (*Analyzer, error) {
	if len(prefixes) == 0 {
		return nil, ferr.InvalidArgument("analyzer: at least one prefix required")
	}
	for _, p := range prefixes {
		if len(p) == 0 {
			return nil, ferr.InvalidArgument("analyzer: empty prefix in prefixes")
		}
	}
	sub := collapse.Mapping{}
	for stack, weight := range a.m {
		frames := framesOf(stack)
		for _, prefix := range prefixes {
			if len(frames) >= len(prefix) && equalSlices(frames[:len(prefix)], prefix) {
				sub[stack] = weight
				break
			}
		}
	}
	return New(sub), nil
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ChildrenHotspots attributes weight to the symbol immediately following
// parentSymbol at every occurrence in every stack (§4.E.4).
func (a *Analyzer) ChildrenHotspots(parentSymbol string, symFilter SymbolFilter) ([]SymbolStat, error) {
	if parentSymbol == "" {
		return nil, ferr.InvalidArgument("analyzer: parentSymbol must not be empty")
	}
	inclusive := map[string]uint64{}
	leaf := map[string]uint64{}
	for stack, weight := range a.m {
		frames := framesOf(stack)
		last := len(frames) - 1
		for i, f := range frames {
			if f != parentSymbol || i >= last {
				continue
			}
			child := frames[i+1]
			if !symFilter.Match(child) {
				continue
			}
			inclusive[child] += weight
			if i+1 == last {
				leaf[child] += weight
			}
		}
	}
	stats := make([]SymbolStat, 0, len(inclusive))
	for sym, inc := range inclusive {
		stats = append(stats, SymbolStat{Symbol: sym, Inclusive: inc, Leaf: leaf[sym]})
	}
	sortSymbolStats(stats, OrderInclusive)
	return stats, nil
}

// DSOResolver maps a symbol to its owning module tag, for DSO aggregation.
type DSOResolver func(symbol string) string

// DSOAggregate buckets symbols into module-level inclusive/leaf sums via
// resolver, using the same dedup-per-stack rule as TopKSymbols (§4.E.6).
func (a *Analyzer) DSOAggregate(resolver DSOResolver) ([]DSOStat, error) {
	if resolver == nil {
		return nil, ferr.InvalidArgument("analyzer: resolver must not be nil")
	}
	inclusive := map[string]uint64{}
	leaf := map[string]uint64{}
	for stack, weight := range a.m {
		frames := framesOf(stack)
		if len(frames) == 0 {
			continue
		}
		seenModules := make(map[string]bool, len(frames))
		for _, sym := range frames {
			mod := resolver(sym)
			if !seenModules[mod] {
				inclusive[mod] += weight
				seenModules[mod] = true
			}
		}
		leaf[resolver(frames[len(frames)-1])] += weight
	}
	stats := make([]DSOStat, 0, len(inclusive))
	for mod, inc := range inclusive {
		stats = append(stats, DSOStat{Module: mod, Inclusive: inc, Leaf: leaf[mod]})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Inclusive != stats[j].Inclusive {
			return stats[i].Inclusive > stats[j].Inclusive
		}
		return stats[i].Module < stats[j].Module
	})
	return stats, nil
}

// SymbolShares converts SymbolStats into percentage-of-denominator Share
// records (§4.E.5). A zero denominator falls back to a (rounding to 0%)
// pass-through rather than dividing by zero.
func SymbolShares(stats []SymbolStat, denominator uint64) []SymbolShare {
	out := make([]SymbolShare, len(stats))
	for i, s := range stats {
		out[i] = SymbolShare{
			SymbolStat:   s,
			InclusivePct: pct(s.Inclusive, denominator),
			LeafPct:      pct(s.Leaf, denominator),
		}
	}
	return out
}

// StackShares converts StackStats into percentage-of-denominator Share
// records.
func StackShares(stats []StackStat, denominator uint64) []StackShare {
	out := make([]StackShare, len(stats))
	for i, s := range stats {
		out[i] = StackShare{StackStat: s, Pct: pct(s.Weight, denominator)}
	}
	return out
}

func pct(part, denominator uint64) float64 {
	if denominator == 0 {
		return 0
	}
	v := float64(part) * 100 / float64(denominator)
	return roundTo2(v)
}

func roundTo2(v float64) float64 {
	scaled := v*100 + 0.5
	return float64(int64(scaled)) / 100
}
