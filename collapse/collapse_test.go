package collapse

import (
	"context"
	"testing"

	"github.com/foldstack/foldcore/sample"
)

func parseAll(t *testing.T, lines []string) []sample.Sample {
	t.Helper()
	var got []sample.Sample
	sample.ParseLines(lines, func(s sample.Sample) { got = append(got, s) })
	return got
}

func TestCollapseBasicFolding(t *testing.T) {
	lines := []string{
		"worker 42 100: 1 cycles:",
		"            ffff  foo  (/a.out)",
		"            ffff  main (/a.out)",
		"",
		"worker 42 100: 1 cycles:",
		"            ffff  foo  (/a.out)",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	c := New(Config{}, nil)
	m := c.CollapseSamples(context.Background(), samples)

	if len(m) != 1 {
		t.Fatalf("expected a single folded key, got %v", m)
	}
	w, ok := m["worker;main;foo"]
	if !ok {
		t.Fatalf("missing expected key in %v", m)
	}
	if w != 2 {
		t.Fatalf("expected weight 2, got %d", w)
	}
}

func TestCollapseEventFilterFirstSeen(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
		"worker 1 100: 1 instructions:",
		"            ffff  main (/a.out)",
		"",
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	c := New(Config{}, nil)
	m := c.CollapseSamples(context.Background(), samples)

	if len(m) != 1 {
		t.Fatalf("expected only cycles samples folded, got %v", m)
	}
	if m["worker;main"] != 2 {
		t.Fatalf("expected weight 2 for first-seen event, got %v", m)
	}
}

func TestCollapseExplicitEventFilter(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
		"worker 1 100: 1 instructions:",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	c := New(Config{EventFilter: "instructions"}, nil)
	m := c.CollapseSamples(context.Background(), samples)
	if m["worker;main"] != 1 {
		t.Fatalf("expected only the instructions sample counted, got %v", m)
	}
}

func TestCollapseKernelAnnotation(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  schedule ([kernel.kallsyms])",
		"",
	}
	samples := parseAll(t, lines)
	c := New(Config{AnnotateKernel: true}, nil)
	m := c.CollapseSamples(context.Background(), samples)
	if _, ok := m["worker;schedule_[k]"]; !ok {
		t.Fatalf("expected kernel-annotated key, got %v", m)
	}
}

func TestDisplayProcessVariants(t *testing.T) {
	s := sample.Sample{Command: "worker", PID: 10, TID: 20, HasPID: true, HasTID: true}
	if got := displayProcess(s, Config{}); got != "worker" {
		t.Fatalf("expected bare command, got %q", got)
	}
	if got := displayProcess(s, Config{IncludePID: true}); got != "worker 10" {
		t.Fatalf("expected comm+pid, got %q", got)
	}
	if got := displayProcess(s, Config{IncludeTID: true}); got != "worker 10/20" {
		t.Fatalf("expected comm+pid/tid, got %q", got)
	}
}

func TestInlineExpansionFallsBackOnEmptyResolverResult(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	resolve := func(_ context.Context, _, _ string, _ bool) []string { return nil }
	c := New(Config{ExpandInline: true}, resolve)
	m := c.CollapseSamples(context.Background(), samples)
	if _, ok := m["worker;main"]; !ok {
		t.Fatalf("expected fallback to original symbol, got %v", m)
	}
}

func TestInlineExpansionSplitsAndReversesChain(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	resolve := func(_ context.Context, _, _ string, _ bool) []string {
		return []string{"inner->outer"}
	}
	c := New(Config{ExpandInline: true}, resolve)
	m := c.CollapseSamples(context.Background(), samples)
	if _, ok := m["worker;outer;inner"]; !ok {
		t.Fatalf("expected inline chain with callee rightmost, got %v", m)
	}
}

func TestInlineExpansionResolverPanicFallsBack(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
	}
	samples := parseAll(t, lines)
	resolve := func(_ context.Context, _, _ string, _ bool) []string { panic("boom") }
	c := New(Config{ExpandInline: true}, resolve)
	m := c.CollapseSamples(context.Background(), samples)
	if _, ok := m["worker;main"]; !ok {
		t.Fatalf("expected fallback after panic, got %v", m)
	}
}

func TestMergeIntoSumsWeights(t *testing.T) {
	dst := Mapping{"a;b": 1}
	src := Mapping{"a;b": 2, "c;d": 5}
	MergeInto(dst, src)
	if dst["a;b"] != 3 || dst["c;d"] != 5 {
		t.Fatalf("unexpected merge result: %v", dst)
	}
}
