// Package sample turns raw perf-script-style text into a stream of
// structured Sample records: a process header plus an ordered, leaf-last
// list of call-stack frames.
package sample

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/foldstack/foldcore/frame"
	"github.com/foldstack/foldcore/internal/flog"
)

// Sample is one timer/event tick recorded by the profiler.
type Sample struct {
	Command  string
	PID      int
	TID      int
	HasPID   bool
	HasTID   bool
	Event    string
	HasEvent bool
	Period   int
	Frames   []frame.Frame
}

var (
	// headerHeadRE captures the command, pid and optional tid from the
	// leading fields of a header line. The trailing (?:\s+|:) accepts
	// both "comm pid  ...: period event:" and the bare "comm pid:" form
	// (§4.B: a header with only a trailing colon is still a header).
	headerHeadRE = regexp.MustCompile(`^\s*(\S.+?)\s+(\d+)(?:/(\d+))?(?:\s+|:)`)
	// headerTailRE captures the optional period and the event name from
	// the trailing fields of a header line.
	headerTailRE = regexp.MustCompile(`:\s*(\d+)?\s+(\S+):\s*$`)
	// frameWithIPRE matches a stack frame line that carries an
	// instruction pointer: "ffffffff  symbol (module)".
	frameWithIPRE = regexp.MustCompile(`^\s*([0-9A-Fa-fx]+)\s+(.+)\s+\((.*)\)\s*$`)
	// frameNoIPRE matches a stack frame line without an instruction
	// pointer: "symbol (module)".
	frameNoIPRE = regexp.MustCompile(`^\s*(.+)\s+\((.*)\)\s*$`)
)

// Handler receives each Sample as the parser completes it. Each Sample
// carries its own copy of the Frames slice, so a Handler may retain it.
type Handler func(Sample)

// ParseLines runs the §4.B state machine over lines, invoking handle for
// every completed Sample. Malformed lines are dropped silently, per §7.
func ParseLines(lines []string, handle Handler) {
	p := newParser(handle)
	for _, line := range lines {
		p.feed(line)
	}
	p.eof()
}

// ParseReader is the streaming counterpart of ParseLines, reading lines
// from r (e.g. an open file or stdin) without materializing them all in
// memory first.
func ParseReader(r io.Reader, handle Handler) error {
	p := newParser(handle)
	scanner := bufio.NewScanner(r)
	// perf script lines can exceed bufio.MaxScanTokenSize for deeply
	// inlined C++ stacks; grow the buffer generously.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		p.feed(scanner.Text())
	}
	p.eof()
	return scanner.Err()
}

type parser struct {
	handle Handler

	haveHeader bool
	comm       string
	pid        int
	hasPID     bool
	tid        int
	hasTID     bool
	period     int
	event      string
	hasEvent   bool
	frames     []frame.Frame
}

func newParser(handle Handler) *parser {
	return &parser{handle: handle}
}

func (p *parser) feed(line string) {
	if strings.TrimSpace(line) == "" {
		p.flush()
		return
	}

	if m := headerHeadRE.FindStringSubmatch(line); m != nil {
		p.flush()
		p.beginHeader(line, m)
		return
	}

	if !p.haveHeader {
		// Other lines before any header are ignored.
		return
	}

	if fm := frameWithIPRE.FindStringSubmatch(line); fm != nil {
		p.appendFrame(fm[1], fm[2], fm[3])
		return
	}
	if fm := frameNoIPRE.FindStringSubmatch(line); fm != nil {
		p.appendFrame("", fm[1], fm[2])
		return
	}
	// Other lines are ignored.
}

func (p *parser) beginHeader(line string, m []string) {
	comm := strings.TrimSpace(m[1])
	comm = strings.ReplaceAll(comm, " ", "_")
	p.comm = comm
	p.hasPID = m[2] != ""
	if p.hasPID {
		pid, err := strconv.Atoi(m[2])
		if err != nil {
			flog.Debugf("sample: malformed pid %q in header %q", m[2], line)
			p.hasPID = false
		} else {
			p.pid = pid
		}
	}
	if m[3] != "" {
		tid, err := strconv.Atoi(m[3])
		if err != nil {
			flog.Debugf("sample: malformed tid %q in header %q", m[3], line)
			p.hasTID = false
			p.tid = p.pid
		} else {
			p.tid = tid
			p.hasTID = true
		}
	} else {
		p.tid = p.pid
		p.hasTID = p.hasPID
	}

	p.period = 1
	p.event = ""
	p.hasEvent = false
	if tm := headerTailRE.FindStringSubmatch(line); tm != nil {
		if tm[1] != "" {
			if period, err := strconv.Atoi(tm[1]); err == nil && period > 0 {
				p.period = period
			}
		}
		p.event = tm[2]
		p.hasEvent = true
	}

	p.haveHeader = true
	p.frames = p.frames[:0]
}

// appendFrame records a frame's raw symbol unmodified (including any
// trailing "+0xHEX" offset): offset stripping is the Frame Annotator's
// job, not the parser's (§4.B).
func (p *parser) appendFrame(ip, rawSymbol, module string) {
	sym := strings.TrimSpace(rawSymbol)
	if sym == "" || sym == "?" {
		sym = "[unknown]"
	}
	p.frames = append(p.frames, frame.Frame{
		Symbol:             sym,
		Module:             strings.TrimSpace(module),
		InstructionPointer: ip,
	})
}

// flush emits the in-progress sample, if any, and resets parser state.
func (p *parser) flush() {
	if !p.haveHeader {
		return
	}
	s := Sample{
		Command:  p.comm,
		PID:      p.pid,
		TID:      p.tid,
		HasPID:   p.hasPID,
		HasTID:   p.hasTID,
		Event:    p.event,
		HasEvent: p.hasEvent,
		Period:   p.period,
		Frames:   append([]frame.Frame(nil), p.frames...),
	}
	p.handle(s)
	p.haveHeader = false
	p.frames = p.frames[:0]
}

func (p *parser) eof() {
	p.flush()
}
