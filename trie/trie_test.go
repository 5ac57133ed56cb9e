package trie

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldstack/foldcore/collapse"
	"github.com/foldstack/foldcore/internal/ferr"
)

func TestBuildInvariantInclusiveEqualsLeafPlusChildren(t *testing.T) {
	m := collapse.Mapping{
		"p;a;b;c":   3,
		"p;a;b;d;e": 5,
		"p;a;f":     2,
	}
	tr := Build(m)
	assert.EqualValues(t, 10, tr.Total)
	assert.EqualValues(t, 10, tr.Root.Inclusive)

	var check func(n *Node)
	check = func(n *Node) {
		var childSum uint64
		for _, c := range n.Children {
			childSum += c.Inclusive
		}
		if n != tr.Root {
			assert.Equal(t, n.Inclusive, n.Leaf+childSum, "node %s", n.Name)
		}
		for _, c := range n.Children {
			check(c)
		}
	}
	check(tr.Root)
}

func TestSymbolOverheadDepthLimit(t *testing.T) {
	// Scenario S4.
	m := collapse.Mapping{
		"p;a;b;c":   3,
		"p;a;b;d;e": 5,
	}
	tr := Build(m)
	k := 1
	rows, err := tr.SymbolOverhead("b", &k, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0].Inclusive)
}

func TestSymbolOverheadUnboundedDepth(t *testing.T) {
	m := collapse.Mapping{"p;a;b;c": 3, "p;a;b;d;e": 5}
	tr := Build(m)
	rows, err := tr.SymbolOverhead("b", nil, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 8, rows[0].Inclusive)
}

func TestSymbolOverheadFuzzyMatchesSubstring(t *testing.T) {
	m := collapse.Mapping{"p;alpha;beta": 1, "p;gamma": 2}
	tr := Build(m)
	rows, err := tr.SymbolOverhead("pha", nil, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alpha", rows[0].Symbol)
}

func TestSymbolOverheadEmptySymbolIsInvalidArgument(t *testing.T) {
	tr := Build(collapse.Mapping{"p;a": 1})
	_, err := tr.SymbolOverhead("", nil, false)
	require.Error(t, err)
	assert.True(t, ferr.IsInvalidArgument(err))
}

func TestSymbolOverheadMissingSymbolIsEmpty(t *testing.T) {
	tr := Build(collapse.Mapping{"p;a": 1})
	rows, err := tr.SymbolOverhead("nope", nil, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSortedSubtreeExport(t *testing.T) {
	// Scenario S6.
	m := collapse.Mapping{
		"p;a;x":   1,
		"p;a;y":   5,
		"p;a;x;z": 2,
	}
	tr := Build(m)
	start := "a"
	forest, err := tr.SortedSubtreeExport(&start, nil, false)
	require.NoError(t, err)
	require.Len(t, forest, 1)

	root := forest[0]
	assert.Equal(t, "a", root.Name)
	assert.EqualValues(t, 8, root.Count)
	assert.EqualValues(t, 0, root.LeafCount)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "y", root.Children[0].Name)
	assert.EqualValues(t, 5, root.Children[0].Count)
	assert.Equal(t, "x", root.Children[1].Name)
	assert.EqualValues(t, 3, root.Children[1].Count)
	assert.EqualValues(t, 1, root.Children[1].LeafCount)
	require.Len(t, root.Children[1].Children, 1)
	assert.Equal(t, "z", root.Children[1].Children[0].Name)
	assert.EqualValues(t, 2, root.Children[1].Children[0].Count)
}

func TestSortedSubtreeExportMatchesExpectedShape(t *testing.T) {
	// Scenario S6, checked as a whole-tree structural diff rather than
	// field-by-field assertions, since a mismatch anywhere in the forest
	// should point straight at the differing node.
	m := collapse.Mapping{
		"p;a;x":   1,
		"p;a;y":   5,
		"p;a;x;z": 2,
	}
	tr := Build(m)
	start := "a"
	got, err := tr.SortedSubtreeExport(&start, nil, false)
	require.NoError(t, err)

	want := []TreeNode{
		{
			Name: "a", Count: 8, LeafCount: 0,
			Children: []TreeNode{
				{Name: "y", Count: 5, LeafCount: 5},
				{Name: "x", Count: 3, LeafCount: 1, Children: []TreeNode{
					{Name: "z", Count: 2, LeafCount: 2},
				}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("subtree export mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedSubtreeExportDefaultStartsAtFirstLevel(t *testing.T) {
	m := collapse.Mapping{"p;a;b": 1, "p;c;d": 2}
	tr := Build(m)
	forest, err := tr.SortedSubtreeExport(nil, nil, false)
	require.NoError(t, err)
	require.Len(t, forest, 2)
	assert.Equal(t, "c", forest[0].Name)
	assert.Equal(t, "a", forest[1].Name)
}

func TestSortedSubtreeExportDepthZeroTruncatesChildren(t *testing.T) {
	m := collapse.Mapping{"p;a;b;c": 1}
	tr := Build(m)
	start := "a"
	zero := 0
	forest, err := tr.SortedSubtreeExport(&start, &zero, false)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Empty(t, forest[0].Children)
}

func TestPathStatsSortedByLeafDescending(t *testing.T) {
	m := collapse.Mapping{"p;a;b": 2, "p;a;c": 9}
	tr := Build(m)
	stats := tr.PathStats()
	require.Len(t, stats, 2)
	assert.EqualValues(t, 9, stats[0].Leaf)
	assert.EqualValues(t, 2, stats[1].Leaf)
}

func TestPathsLazyIteratorVisitsAllNodes(t *testing.T) {
	m := collapse.Mapping{"p;a;b": 1, "p;a;c": 2}
	tr := Build(m)
	seen := 0
	for path, leaf := range tr.Paths() {
		seen++
		assert.NotEmpty(t, path)
		_ = leaf
	}
	assert.Equal(t, 3, seen) // a, a/b, a/c
}

func TestPathsLazyIteratorStopsEarly(t *testing.T) {
	m := collapse.Mapping{"p;a;b": 1, "p;a;c": 2, "p;a;d": 3}
	tr := Build(m)
	count := 0
	for range tr.Paths() {
		count++
		if count == 1 {
			break
		}
	}
	assert.Equal(t, 1, count)
}

func TestEmptyMappingEmptyTrie(t *testing.T) {
	tr := Build(collapse.Mapping{})
	assert.EqualValues(t, 0, tr.Total)
	assert.Empty(t, tr.Root.Children)
	rows, err := tr.SymbolOverhead("anything", nil, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
