package sample

import "testing"

func TestParseLinesBasic(t *testing.T) {
	lines := []string{
		"worker 42 100000: 1 cycles:",
		"            ffff  main (/a.out)",
		"            ffff  foo  (/a.out)",
		"",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	s := got[0]
	if s.Command != "worker" || s.PID != 42 || s.Period != 1 || s.Event != "cycles" {
		t.Fatalf("unexpected header fields: %+v", s)
	}
	if len(s.Frames) != 2 || s.Frames[0].Symbol != "main" || s.Frames[1].Symbol != "foo" {
		t.Fatalf("unexpected frames: %+v", s.Frames)
	}
}

func TestParseLinesHeaderColonOnly(t *testing.T) {
	lines := []string{
		"worker 42:",
		"            ffff  main (/a.out)",
		"",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0].Period != 1 || got[0].HasEvent {
		t.Fatalf("expected default period=1 and no event, got %+v", got[0])
	}
}

func TestParseLinesFlushOnNextHeader(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"worker 2 200: 1 cycles:",
		"            ffff  other (/a.out)",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 2 {
		t.Fatalf("expected 2 samples (flush on header and EOF), got %d", len(got))
	}
}

func TestParseLinesCommandSpacesNormalized(t *testing.T) {
	lines := []string{"my worker 42 100: 1 cycles:", ""}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if got[0].Command != "my_worker" {
		t.Fatalf("expected underscored command, got %q", got[0].Command)
	}
}

func TestParseLinesNoIPFrame(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"main (/a.out)",
		"",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 1 || len(got[0].Frames) != 1 || got[0].Frames[0].Symbol != "main" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestParseLinesUnknownSymbol(t *testing.T) {
	lines := []string{
		"worker 1 100: 1 cycles:",
		"            ffff  ? (/a.out)",
		"",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if got[0].Frames[0].Symbol != "[unknown]" {
		t.Fatalf("expected [unknown], got %q", got[0].Frames[0].Symbol)
	}
}

func TestParseLinesEmptyFrameList(t *testing.T) {
	lines := []string{"worker 1 100: 1 cycles:", ""}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 1 || len(got[0].Frames) != 0 {
		t.Fatalf("expected one process-only sample, got %+v", got)
	}
}

func TestParseLinesIgnoresJunkBeforeHeader(t *testing.T) {
	lines := []string{
		"# some perf comment",
		"worker 1 100: 1 cycles:",
		"            ffff  main (/a.out)",
		"",
	}
	var got []Sample
	ParseLines(lines, func(s Sample) { got = append(got, s) })
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}
