// Package trie implements the Trie Engine (§4.F): an in-memory call-path
// prefix tree built from a folded Mapping, supporting depth-bounded
// symbol-overhead queries, weight-sorted subtree export, and per-path
// weight statistics.
package trie

import (
	"iter"
	"sort"
	"strings"

	"github.com/foldstack/foldcore/collapse"
	"github.com/foldstack/foldcore/foldedio"
	"github.com/foldstack/foldcore/internal/ferr"
)

// Node is one trie vertex. The root carries the sentinel name "root" and
// its Inclusive equals the trie's total weight.
type Node struct {
	Name      string
	Inclusive uint64
	Leaf      uint64
	Children  map[string]*Node
}

func newNode(name string) *Node {
	return &Node{Name: name, Children: map[string]*Node{}}
}

// Trie is an immutable call-path prefix tree (§3.4). It is safe for
// concurrent readers once Build has returned.
type Trie struct {
	Root  *Node
	Total uint64
}

// Build constructs a Trie from a folded Mapping (§4.F "Construction").
func Build(m collapse.Mapping) *Trie {
	root := newNode("root")
	var total uint64
	for key, weight := range m {
		total += weight
		root.Inclusive += weight

		parts := strings.Split(key, ";")
		if len(parts) < 2 {
			continue
		}
		frames := parts[1:]

		cur := root
		for i, f := range frames {
			child, ok := cur.Children[f]
			if !ok {
				child = newNode(f)
				cur.Children[f] = child
			}
			child.Inclusive += weight
			if i == len(frames)-1 {
				child.Leaf += weight
			}
			cur = child
		}
	}
	return &Trie{Root: root, Total: total}
}

// FromFile builds a Trie directly from a folded file (§6.4
// "build-from-file"), transparently decompressing ".gz" paths.
func FromFile(path string) (*Trie, error) {
	m, err := foldedio.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(m), nil
}

func matches(name, symbol string, fuzzy bool) bool {
	if fuzzy {
		return strings.Contains(name, symbol)
	}
	return name == symbol
}

// OverheadRow is one row of a symbol-overhead query result (§4.F).
type OverheadRow struct {
	Symbol       string
	Path         []string
	Inclusive    uint64
	Leaf         uint64
	InclusivePct float64
	LeafPct      float64
}

// SymbolOverhead finds every node matching symbol (exact, or substring
// when fuzzy is set) and reports its inclusive weight bounded to depth k
// frames below the match (nil k means unbounded).
func (t *Trie) SymbolOverhead(symbol string, k *int, fuzzy bool) ([]OverheadRow, error) {
	if symbol == "" {
		return nil, ferr.InvalidArgument("trie: symbol must not be empty")
	}
	if k != nil && *k < 0 {
		return nil, ferr.InvalidArgument("trie: k must be non-negative, got %d", *k)
	}

	var rows []OverheadRow
	var walk func(n *Node, path []string)
	walk = func(n *Node, path []string) {
		for name, child := range n.Children {
			childPath := append(append([]string(nil), path...), name)
			if matches(name, symbol, fuzzy) {
				inc := inclusiveWithin(child, k)
				rows = append(rows, OverheadRow{
					Symbol:       name,
					Path:         childPath,
					Inclusive:    inc,
					Leaf:         child.Leaf,
					InclusivePct: pctOf(inc, t.Total),
					LeafPct:      pctOf(child.Leaf, t.Total),
				})
			}
			walk(child, childPath)
		}
	}
	walk(t.Root, nil)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Inclusive > rows[j].Inclusive })
	return rows, nil
}

// inclusiveWithin computes inclusive_within(n, k) per §4.F: k==nil is
// unbounded (n.Inclusive); k==0 stops at n's own leaf weight; k>=1 adds
// each child's inclusive_within(child, k-1).
func inclusiveWithin(n *Node, k *int) uint64 {
	if k == nil {
		return n.Inclusive
	}
	if *k <= 0 {
		return n.Leaf
	}
	next := *k - 1
	sum := n.Leaf
	for _, c := range n.Children {
		sum += inclusiveWithin(c, &next)
	}
	return sum
}

func pctOf(part, total uint64) float64 {
	denom := total
	if denom == 0 {
		denom = 1
	}
	return roundTo2(float64(part) * 100 / float64(denom))
}

func roundTo2(v float64) float64 {
	scaled := v*100 + 0.5
	return float64(int64(scaled)) / 100
}

// TreeNode is one node of a sorted subtree export (§4.F).
type TreeNode struct {
	Name      string
	Count     uint64
	LeafCount uint64
	Children  []TreeNode
}

// SortedSubtreeExport builds a forest of TreeNodes rooted either at the
// trie's first-level children (startSymbol == nil) or at every node
// matching startSymbol (exact or fuzzy), each exported to depth k (nil =
// unbounded), with children ordered (inclusive desc, name asc) for
// deterministic output (§5 ordering guarantees).
func (t *Trie) SortedSubtreeExport(startSymbol *string, k *int, fuzzy bool) ([]TreeNode, error) {
	if k != nil && *k < 0 {
		return nil, ferr.InvalidArgument("trie: k must be non-negative, got %d", *k)
	}

	var roots []*Node
	if startSymbol == nil {
		roots = sortedChildren(t.Root)
	} else {
		if *startSymbol == "" {
			return nil, ferr.InvalidArgument("trie: startSymbol must not be empty")
		}
		var collect func(n *Node)
		collect = func(n *Node) {
			for name, child := range n.Children {
				if matches(name, *startSymbol, fuzzy) {
					roots = append(roots, child)
				}
				collect(child)
			}
		}
		collect(t.Root)
		sort.SliceStable(roots, func(i, j int) bool {
			if roots[i].Inclusive != roots[j].Inclusive {
				return roots[i].Inclusive > roots[j].Inclusive
			}
			return roots[i].Name < roots[j].Name
		})
	}

	out := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, exportNode(r, k))
	}
	return out, nil
}

func exportNode(n *Node, k *int) TreeNode {
	tn := TreeNode{Name: n.Name, Count: n.Inclusive, LeafCount: n.Leaf}
	if k != nil && *k == 0 {
		return tn
	}
	var next *int
	if k != nil {
		v := *k - 1
		next = &v
	}
	for _, c := range sortedChildren(n) {
		tn.Children = append(tn.Children, exportNode(c, next))
	}
	return tn
}

func sortedChildren(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Inclusive != out[j].Inclusive {
			return out[i].Inclusive > out[j].Inclusive
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// PathStat is one row of a path-statistics query (§4.F).
type PathStat struct {
	Path    []string
	Leaf    uint64
	Percent float64
}

// PathStats emits one row per root-to-node path with a positive leaf
// weight, sorted by leaf weight descending.
func (t *Trie) PathStats() []PathStat {
	var stats []PathStat
	for path, leaf := range t.Paths() {
		if leaf == 0 {
			continue
		}
		stats = append(stats, PathStat{Path: path, Leaf: leaf, Percent: pctOf(leaf, t.Total)})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Leaf > stats[j].Leaf })
	return stats
}

// Paths lazily enumerates every (path, leaf-weight) pair in the trie,
// root excluded, as a restartable iterator (§9 "iterators/generators":
// path enumeration should be exposed lazily and only materialized into
// sorted output when the caller actually needs top-K or full statistics).
func (t *Trie) Paths() iter.Seq2[[]string, uint64] {
	return func(yield func([]string, uint64) bool) {
		var walk func(n *Node, path []string) bool
		walk = func(n *Node, path []string) bool {
			for _, name := range sortedNames(n) {
				child := n.Children[name]
				childPath := append(append([]string(nil), path...), name)
				if !yield(childPath, child.Leaf) {
					return false
				}
				if !walk(child, childPath) {
					return false
				}
			}
			return true
		}
		walk(t.Root, nil)
	}
}

func sortedNames(n *Node) []string {
	out := make([]string, 0, len(n.Children))
	for name := range n.Children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
