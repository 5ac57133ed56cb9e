// Package frame canonicalizes a raw (symbol, module) pair emitted by a
// profiler into the single-line, semicolon-free string used as one segment
// of a folded stack key.
package frame

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Frame is one entry in a call stack, as handed to the Annotator by the
// sample parser. It is never mutated after the parser emits it.
type Frame struct {
	Symbol             string
	Module             string
	InstructionPointer string
	SourceLocation     string
}

// IsKernel reports whether Module looks like a kernel module: it begins
// with '[' or ends with "vmlinux", and does not contain "unknown".
func (f Frame) IsKernel() bool {
	return isKernelModule(f.Module)
}

// IsJIT reports whether Module looks like a perf JIT map,
// e.g. /tmp/perf-1234.map.
func (f Frame) IsJIT() bool {
	return jitModuleRE.MatchString(f.Module)
}

func isKernelModule(module string) bool {
	if module == "" {
		return false
	}
	if strings.Contains(module, "unknown") {
		return false
	}
	return strings.HasPrefix(module, "[") || strings.HasSuffix(module, "vmlinux")
}

var (
	jitModuleRE  = regexp.MustCompile(`/tmp/perf-\d+\.map`)
	addrOffsetRE = regexp.MustCompile(`^(.+)\+0x[0-9A-Fa-f]+$`)
	goMethodRE   = regexp.MustCompile(`\.\(.*\)\.`)
)

const unknownSymbol = "[unknown]"

// Options controls how Annotate canonicalizes a frame.
type Options struct {
	// IncludeAddresses retains "+0xHEX" offsets on symbols and embeds the
	// instruction pointer in synthesized "[module <ip>]" names.
	IncludeAddresses bool
	// AnnotateKernel appends "_[k]" to kernel frames.
	AnnotateKernel bool
	// AnnotateJIT appends "_[j]" to JIT frames.
	AnnotateJIT bool
}

// Annotate produces the canonical frame string for f per §4.A. The result
// is always non-empty and contains no semicolons. Annotate is idempotent:
// Annotate(Annotate(f)) == Annotate(f) for the same Options.
func Annotate(f Frame, opts Options) string {
	symbol := f.Symbol

	if !opts.IncludeAddresses {
		if m := addrOffsetRE.FindStringSubmatch(symbol); m != nil {
			symbol = m[1]
		}
	}

	if symbol == unknownSymbol {
		var inner string
		if f.Module != "" && f.Module != unknownSymbol {
			inner = filepath.Base(f.Module)
		} else {
			inner = "unknown"
		}
		if opts.IncludeAddresses && f.InstructionPointer != "" {
			symbol = "[" + inner + " <" + f.InstructionPointer + ">]"
		} else {
			symbol = "[" + inner + "]"
		}
	}

	symbol = strings.ReplaceAll(symbol, ";", ":")
	symbol = strings.ReplaceAll(symbol, "\"", "")
	symbol = strings.ReplaceAll(symbol, "'", "")

	if !goMethodRE.MatchString(symbol) {
		symbol = stripParenArgsUnlessAnonymous(symbol)
	}

	if opts.AnnotateKernel && isKernelModule(f.Module) {
		if !strings.HasSuffix(symbol, "_[k]") {
			symbol += "_[k]"
		}
	}
	if opts.AnnotateJIT && jitModuleRE.MatchString(f.Module) {
		if !strings.HasSuffix(symbol, "_[j]") {
			symbol += "_[j]"
		}
	}

	if symbol == "" {
		symbol = unknownSymbol
	}
	return symbol
}

// stripParenArgsUnlessAnonymous removes everything from the first '(' on,
// unless it is immediately followed by "anonymous namespace".
func stripParenArgsUnlessAnonymous(s string) string {
	idx := strings.Index(s, "(")
	if idx == -1 {
		return s
	}
	if strings.HasPrefix(s[idx:], "(anonymous namespace") {
		return s
	}
	return s[:idx]
}
