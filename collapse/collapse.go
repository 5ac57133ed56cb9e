// Package collapse implements the Stack Collapser (§4.C): it folds a
// stream of sample.Sample records into a Folded Mapping of
// {canonical-stack-key -> aggregated weight}.
package collapse

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/foldstack/foldcore/frame"
	"github.com/foldstack/foldcore/internal/flog"
	"github.com/foldstack/foldcore/sample"
)

// Mapping is {stack-key -> cumulative weight}, the canonical intermediate
// representation described in §3.3.
type Mapping map[string]uint64

// Config parameterizes the fold, per the table in §4.C.
type Config struct {
	IncludePID           bool
	IncludeTID           bool
	AnnotateKernel       bool
	AnnotateJIT          bool
	AnnotateAll          bool
	IncludeAddresses     bool
	EventFilter          string
	ExpandInline         bool
	IncludeSourceContext bool
	IncludeSrcLine       bool
}

func (c Config) frameOptions() frame.Options {
	return frame.Options{
		IncludeAddresses: c.IncludeAddresses,
		AnnotateKernel:   c.AnnotateKernel || c.AnnotateAll,
		AnnotateJIT:      c.AnnotateJIT || c.AnnotateAll,
	}
}

// SrcLineLookup optionally supplies a "file:line" for a sample's frame
// when Config.IncludeSrcLine is set and the profiler emitted the
// `-F+srcline` extension; the stack collapser has no opinion on how
// srclines are sourced.
type SrcLineLookup func(s sample.Sample, frameIndex int) string

// Collapser folds Samples into a Mapping, per §4.C.
type Collapser struct {
	cfg     Config
	resolve InlineResolver
	srcLine SrcLineLookup

	eventFilter   string
	firstEventSet bool
}

// InlineResolver matches resolver.Cached.Resolve's shape without importing
// the resolver package, so collapse has no hard dependency on any
// particular resolver implementation (§6.3: "an explicit dependency, not
// a hidden call").
type InlineResolver func(ctx context.Context, instructionPointer, module string, includeContext bool) []string

// New builds a Collapser. resolve may be nil, in which case inline
// expansion is never attempted even if cfg.ExpandInline is set.
func New(cfg Config, resolve InlineResolver) *Collapser {
	return &Collapser{
		cfg:         cfg,
		resolve:     resolve,
		eventFilter: strings.TrimSpace(cfg.EventFilter),
	}
}

// WithSrcLineLookup attaches a SrcLineLookup used when cfg.IncludeSrcLine
// is set. It returns the receiver for chaining.
func (c *Collapser) WithSrcLineLookup(fn SrcLineLookup) *Collapser {
	c.srcLine = fn
	return c
}

// ErrEventFilterRequired is returned by parallel collapse when no explicit
// EventFilter was configured: §5.2 requires parallel callers to either
// disable implicit event capture (by requiring an explicit filter, the
// choice made here) or pick the lexicographically-earliest sample's event
// deterministically. This module takes the simpler, always-deterministic
// first option.
var ErrEventFilterRequired = errors.New("collapse: EventFilter must be set explicitly for parallel collapse")

// CollapseSamples folds samples sequentially into a new Mapping,
// capturing the first-seen event as the implicit filter when
// cfg.EventFilter is empty (§4.C "Event-filter determinism").
func (c *Collapser) CollapseSamples(ctx context.Context, samples []sample.Sample) Mapping {
	m := Mapping{}
	for _, s := range samples {
		c.foldInto(ctx, m, s)
	}
	return m
}

// CollapseInto folds a single sample into an existing Mapping, in place,
// e.g. from a sample.Handler while streaming with sample.ParseReader.
func (c *Collapser) CollapseInto(ctx context.Context, m Mapping, s sample.Sample) {
	c.foldInto(ctx, m, s)
}

func (c *Collapser) effectiveFilter(s sample.Sample) (filter string, pass bool) {
	if c.eventFilter != "" {
		return c.eventFilter, !s.HasEvent || s.Event == c.eventFilter
	}
	if !c.firstEventSet {
		c.eventFilter = s.Event
		c.firstEventSet = true
		return c.eventFilter, true
	}
	return c.eventFilter, !s.HasEvent || s.Event == c.eventFilter
}

func (c *Collapser) foldInto(ctx context.Context, m Mapping, s sample.Sample) {
	_, pass := c.effectiveFilter(s)
	if !pass {
		return
	}
	if s.Period < 1 {
		s.Period = 1
	}

	proc := displayProcess(s, c.cfg)
	parts := make([]string, 0, len(s.Frames)+1)
	parts = append(parts, proc)

	// Samples arrive leaf-first; canonical order is entry-to-leaf, so we
	// walk the frame list in reverse.
	for i := len(s.Frames) - 1; i >= 0; i-- {
		f := s.Frames[i]
		parts = append(parts, c.renderFrame(ctx, s, i, f)...)
	}

	key := strings.Join(parts, ";")
	m[key] += uint64(s.Period)
}

func displayProcess(s sample.Sample, cfg Config) string {
	comm := s.Command
	if comm == "" {
		comm = "unknown"
	}
	switch {
	case cfg.IncludeTID && s.HasPID && s.HasTID:
		return comm + " " + strconv.Itoa(s.PID) + "/" + strconv.Itoa(s.TID)
	case cfg.IncludePID && s.HasPID:
		return comm + " " + strconv.Itoa(s.PID)
	default:
		return comm
	}
}

// renderFrame produces the one-or-more canonical frame strings
// contributed by a single profiler frame, already in entry-to-leaf order
// for that frame's own (possibly inline-expanded) chain.
func (c *Collapser) renderFrame(ctx context.Context, s sample.Sample, idx int, f frame.Frame) []string {
	// names is already entry->leaf (outer caller first); emitting it
	// as-is leaves the callee rightmost once appended to parts.
	return c.inlineChainOrSelf(ctx, s, idx, f)
}

// inlineChainOrSelf returns the ordered (entry->leaf) list of canonical
// frame names contributed by frame f. It consults the inline resolver
// when eligible, splits a single name on "->" inline markers, and
// normalizes every piece through frame.Annotate.
func (c *Collapser) inlineChainOrSelf(ctx context.Context, s sample.Sample, idx int, f frame.Frame) []string {
	var raw []string

	if c.cfg.ExpandInline && c.resolve != nil && eligibleForInlineExpansion(f.Module) {
		expanded := c.safeResolve(ctx, f)
		if len(expanded) > 0 {
			raw = expanded
		}
	}

	if raw == nil {
		sym := f.Symbol
		if c.cfg.IncludeSrcLine && c.srcLine != nil {
			if loc := c.srcLine(s, idx); loc != "" {
				sym = sym + ":" + loc
			}
		}
		raw = []string{sym}
	}

	// A single resolver/sample entry may itself encode an inline chain
	// via "->"; split and append each entry's pieces in reverse-of-split
	// order so the callee ends up rightmost (§4.C.1.c), while preserving
	// the entry->leaf order of the outer chain itself.
	var pieces []string
	for _, name := range raw {
		split := strings.Split(name, "->")
		for i := len(split) - 1; i >= 0; i-- {
			p := strings.TrimSpace(split[i])
			if p == "" {
				continue
			}
			pieces = append(pieces, p)
		}
	}
	if len(pieces) == 0 {
		pieces = []string{"[unknown]"}
	}

	opts := c.cfg.frameOptions()
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = frame.Annotate(frame.Frame{
			Symbol:             p,
			Module:             f.Module,
			InstructionPointer: f.InstructionPointer,
		}, opts)
	}
	return out
}

func eligibleForInlineExpansion(module string) bool {
	return module != "" && module != "[unknown]" && module != "[unknown] (deleted)"
}

// safeResolve calls the resolver, absorbing any failure per §7: resolver
// failures never surface, they fall back to the un-expanded frame.
func (c *Collapser) safeResolve(ctx context.Context, f frame.Frame) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			flog.Warnf("collapse: inline resolver panicked for %s/%s: %v", f.InstructionPointer, f.Module, r)
			out = nil
		}
	}()
	out = c.resolve(ctx, f.InstructionPointer, f.Module, c.cfg.IncludeSourceContext)
	return out
}
