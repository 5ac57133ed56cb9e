// Package foldedio implements Folded I/O (§4.D): serializing a folded
// Mapping to the bit-exact text format of §6.1, and parsing it back with
// malformed-line tolerance.
package foldedio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/multierr"

	"github.com/foldstack/foldcore/collapse"
	"github.com/foldstack/foldcore/internal/flog"
)

// Serialize writes m as the folded text format, one `<key> <weight>` line
// per entry, sorted lexicographically by key (§4.D, §8 invariant 5).
func Serialize(w io.Writer, m collapse.Mapping) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%s %d\n", k, m[k]); err != nil {
			return fmt.Errorf("foldedio: write line: %w", err)
		}
	}
	return bw.Flush()
}

// Parse reads folded text from r and returns the accumulated Mapping.
// Malformed lines are skipped and logged at debug level (§7): empty lines,
// lines starting with `#` or `:`, lines whose key has no `;`, and lines
// whose trailing token does not parse as a non-negative integer.
func Parse(r io.Reader) (collapse.Mapping, error) {
	m := collapse.Mapping{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		parseLine(m, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("foldedio: scan: %w", err)
	}
	return m, nil
}

func parseLine(m collapse.Mapping, line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ":") {
		return
	}
	idx := strings.LastIndex(trimmed, " ")
	if idx < 0 {
		flog.Debugf("foldedio: no weight field in line %q", line)
		return
	}
	key := trimmed[:idx]
	weightStr := trimmed[idx+1:]
	if !strings.Contains(key, ";") {
		flog.Debugf("foldedio: key without frame separator in line %q", line)
		return
	}
	weight, err := strconv.ParseUint(weightStr, 10, 64)
	if err != nil {
		flog.Debugf("foldedio: bad weight in line %q: %v", line, err)
		return
	}
	m[key] += weight
}

// WriteFile serializes m to path, transparently gzip-compressing when path
// ends in ".gz" (via klauspost/compress's gzip implementation).
func WriteFile(path string, m collapse.Mapping) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("foldedio: create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if strings.HasSuffix(path, ".gz") {
		gw := gzip.NewWriter(f)
		defer func() {
			err = multierr.Append(err, gw.Close())
		}()
		return Serialize(gw, m)
	}
	return Serialize(f, m)
}

// ReadFile parses the folded mapping stored at path, transparently
// decompressing when path ends in ".gz".
func ReadFile(path string) (m collapse.Mapping, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("foldedio: open %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if strings.HasSuffix(path, ".gz") {
		gr, gerr := gzip.NewReader(f)
		if gerr != nil {
			return nil, fmt.Errorf("foldedio: gzip reader %s: %w", path, gerr)
		}
		defer func() {
			err = multierr.Append(err, gr.Close())
		}()
		return Parse(gr)
	}
	return Parse(f)
}

// ReadFiles parses and weight-wise merges folded mappings from multiple
// files (§5.2's merge rule, reused here for multi-file ingestion), never
// stopping at the first unreadable file: every failure is collected via
// multierr so a caller sees every bad path at once, with good files still
// merged.
func ReadFiles(paths []string) (collapse.Mapping, error) {
	merged := collapse.Mapping{}
	var errs error
	for _, p := range paths {
		m, err := ReadFile(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		collapse.MergeInto(merged, m)
	}
	return merged, errs
}
