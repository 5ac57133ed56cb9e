// Package facade composes the Folded I/O, Folded Analyzer and Trie Engine
// components into the convenience operations of §4.G: summarize a folded
// source, subset-summarize by symbol, and report path statistics. It is
// a thin, pure layer -- it never mutates caller state, grounded on
// pipa/analysis/flamegraph/summary.py's summarize_* / subset_summary_* /
// path_stats_* family.
package facade

import (
	"io"

	"github.com/foldstack/foldcore/analyzer"
	"github.com/foldstack/foldcore/collapse"
	"github.com/foldstack/foldcore/foldedio"
	"github.com/foldstack/foldcore/internal/ferr"
	"github.com/foldstack/foldcore/trie"
)

// SummarizeOptions parameterizes Summarize and SubsetSummarize.
type SummarizeOptions struct {
	TopKSymbols  int
	TopKStacks   int
	Order        analyzer.Order
	SymbolFilter analyzer.SymbolFilter
	Process      analyzer.ProcessFilter
}

func defaultOptions(o SummarizeOptions) SummarizeOptions {
	if o.TopKSymbols == 0 {
		o.TopKSymbols = 20
	}
	if o.TopKStacks == 0 {
		o.TopKStacks = 20
	}
	if o.Order == "" {
		o.Order = analyzer.OrderInclusive
	}
	return o
}

// Summary is the result of Summarize/SubsetSummarize: the total weight of
// the source mapping plus top-K symbol and stack shares.
type Summary struct {
	TotalWeight uint64
	TopSymbols  []analyzer.SymbolShare
	TopStacks   []analyzer.StackShare
}

// Summarize parses folded text from r, then reports top-K symbol and
// stack shares under opts (§4.G "summarize(source)").
func Summarize(r io.Reader, opts SummarizeOptions) (Summary, error) {
	m, err := foldedio.Parse(r)
	if err != nil {
		return Summary{}, err
	}
	return summarizeMapping(m, opts)
}

// SummarizeFile is Summarize sourced from a folded file, transparently
// decompressing ".gz" paths.
func SummarizeFile(path string, opts SummarizeOptions) (Summary, error) {
	m, err := foldedio.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	return summarizeMapping(m, opts)
}

func summarizeMapping(m collapse.Mapping, opts SummarizeOptions) (Summary, error) {
	opts = defaultOptions(opts)
	a := analyzer.New(m)

	symStats, err := a.TopKSymbols(opts.TopKSymbols, opts.Order, opts.SymbolFilter, opts.Process)
	if err != nil {
		return Summary{}, err
	}
	stackStats, err := a.TopKStacks(opts.TopKStacks)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		TotalWeight: a.Total(),
		TopSymbols:  analyzer.SymbolShares(symStats, a.Total()),
		TopStacks:   analyzer.StackShares(stackStats, a.Total()),
	}, nil
}

// SubsetSummarizeFile parses a folded file, subsets it to stacks
// containing symbol, and summarizes the subset (§4.G
// "subset_summarize(source, symbol)").
func SubsetSummarizeFile(path, symbol string, opts SummarizeOptions) (Summary, error) {
	m, err := foldedio.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	return subsetSummarize(m, symbol, opts)
}

// SubsetSummarize is SubsetSummarizeFile sourced from an io.Reader.
func SubsetSummarize(r io.Reader, symbol string, opts SummarizeOptions) (Summary, error) {
	m, err := foldedio.Parse(r)
	if err != nil {
		return Summary{}, err
	}
	return subsetSummarize(m, symbol, opts)
}

func subsetSummarize(m collapse.Mapping, symbol string, opts SummarizeOptions) (Summary, error) {
	a := analyzer.New(m)
	sub, err := a.SubsetBySymbol(symbol, false)
	if err != nil {
		return Summary{}, err
	}
	return summarizeMapping(sub.Mapping(), opts)
}

// PathStatsResult is the result of PathStats: path rows truncated to a
// caller limit, plus whether truncation actually occurred.
type PathStatsResult struct {
	Total     uint64
	Paths     []trie.PathStat
	Truncated bool
}

// PathStats parses folded text, builds a trie, and reports path
// statistics truncated to limit (0 = unbounded) with a truncated flag
// (§4.G "path_stats(source, limit)").
func PathStats(r io.Reader, limit int) (PathStatsResult, error) {
	if limit < 0 {
		return PathStatsResult{}, ferr.InvalidArgument("facade: limit must be non-negative, got %d", limit)
	}
	m, err := foldedio.Parse(r)
	if err != nil {
		return PathStatsResult{}, err
	}
	return pathStats(m, limit), nil
}

// PathStatsFile is PathStats sourced from a folded file.
func PathStatsFile(path string, limit int) (PathStatsResult, error) {
	if limit < 0 {
		return PathStatsResult{}, ferr.InvalidArgument("facade: limit must be non-negative, got %d", limit)
	}
	m, err := foldedio.ReadFile(path)
	if err != nil {
		return PathStatsResult{}, err
	}
	return pathStats(m, limit), nil
}

func pathStats(m collapse.Mapping, limit int) PathStatsResult {
	t := trie.Build(m)
	stats := t.PathStats()
	truncated := false
	if limit > 0 && len(stats) > limit {
		truncated = true
		stats = stats[:limit]
	}
	return PathStatsResult{Total: t.Total, Paths: stats, Truncated: truncated}
}
