package collapse

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/foldstack/foldcore/sample"
)

// ParallelCollapseLines implements the §5.2 "optional parallel parsing"
// path: chunks is a set of disjoint line groups already split on sample
// boundaries (blank lines), each parsed and folded independently and then
// merged by weight-wise addition. Per §5.2, parallel mode requires an
// explicit cfg.EventFilter -- it disables first-seen-event capture rather
// than trying to coordinate it across goroutines, which would require a
// deterministic cross-chunk ordering this package does not attempt.
func ParallelCollapseLines(ctx context.Context, cfg Config, resolve InlineResolver, chunks [][]string, maxWorkers int) (Mapping, error) {
	if cfg.EventFilter == "" {
		return nil, ErrEventFilterRequired
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]Mapping, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c := New(cfg, resolve)
			var samples []sample.Sample
			sample.ParseLines(chunk, func(s sample.Sample) { samples = append(samples, s) })
			results[i] = c.CollapseSamples(gctx, samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Mapping{}
	for _, m := range results {
		MergeInto(merged, m)
	}
	return merged, nil
}

// MergeInto adds every (key, weight) pair of src into dst, in place. It is
// the weight-wise merge required by §5.2 for joining parallel chunk
// results, and is also useful for combining folded mappings read from
// multiple sources.
func MergeInto(dst, src Mapping) {
	for k, w := range src {
		dst[k] += w
	}
}
