// Package resolver implements the address-to-line resolver abstraction
// from §6.3: the only point at which external symbolization is consulted
// for inline expansion. It provides a bounded-concurrency, LRU-cached
// wrapper around an arbitrary caller-supplied Resolve function.
package resolver

import (
	"context"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/semaphore"

	"github.com/foldstack/foldcore/internal/flog"
)

// Resolve expands a single program counter into an ordered list of names,
// outermost caller first and innermost callee last. includeContext, when
// true, asks each name to be suffixed with ":file:line". A nil or empty
// return means "no expansion available" — the collapser must fall back to
// the original frame; it is never treated as an error.
type Resolve func(ctx context.Context, instructionPointer, module string, includeContext bool) []string

// key identifies one (pc, module, context) resolution for caching purposes.
// Results differ by includeContext, so it is part of the key.
type key struct {
	ip             string
	module         string
	includeContext bool
}

// hashKey hashes a flattened string representation of the key with xxh3,
// truncated to 32 bits for the LRU.
func hashKey(k key) uint32 {
	ctx := "0"
	if k.includeContext {
		ctx = "1"
	}
	return uint32(xxh3.HashString(k.ip + "\x00" + k.module + "\x00" + ctx))
}

// Cached wraps an underlying Resolve with a bounded LRU cache and a
// semaphore that caps the number of concurrent calls into it. Resolver
// calls are best-effort: Cached never returns an error, and a resolver
// that panics, times out via ctx, or returns empty is treated identically
// -- "no expansion available" (§4.C, §7).
type Cached struct {
	underlying Resolve
	cache      *lru.SyncedLRU[key, []string]
	sem        *semaphore.Weighted
}

// NewCached builds a Cached resolver. cacheSize bounds the number of
// distinct (pc, module, context) entries retained; maxInFlight bounds the
// number of concurrent calls into underlying (§5.1's "optional worker
// pool when invoking the external address-to-line resolver").
func NewCached(underlying Resolve, cacheSize uint32, maxInFlight int64) (*Cached, error) {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	c, err := lru.NewSynced[key, []string](cacheSize, hashKey)
	if err != nil {
		return nil, err
	}
	return &Cached{
		underlying: underlying,
		cache:      c,
		sem:        semaphore.NewWeighted(maxInFlight),
	}, nil
}

// Resolve returns the cached or freshly computed expansion for pc/module.
// It returns nil, never an error, when ctx is cancelled while waiting for
// a slot (logged at debug level), when the underlying resolver panics
// (logged at warn level), or when it returns nothing: §4.C requires the
// caller to fall back to the original single frame.
func (c *Cached) Resolve(ctx context.Context, instructionPointer, module string, includeContext bool) []string {
	if instructionPointer == "" || module == "" || module == "[unknown]" || module == "[unknown] (deleted)" {
		return nil
	}
	k := key{ip: instructionPointer, module: module, includeContext: includeContext}

	if v, ok := c.cache.Get(k); ok {
		return v
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		flog.Debugf("resolver: acquire failed for %s/%s: %v", instructionPointer, module, err)
		return nil
	}
	defer c.sem.Release(1)

	// Another goroutine may have populated the cache while we waited on
	// the semaphore; re-check before paying for another call.
	if v, ok := c.cache.Get(k); ok {
		return v
	}

	out := c.safeCall(ctx, instructionPointer, module, includeContext)
	c.cache.Add(k, out)
	return out
}

// safeCall invokes the underlying resolver, converting a panic into a nil
// result so one bad frame never aborts the whole collapse run.
func (c *Cached) safeCall(ctx context.Context, ip, module string, includeContext bool) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			flog.Warnf("resolver: panic resolving %s/%s: %v", ip, module, r)
			out = nil
		}
	}()
	out = c.underlying(ctx, ip, module, includeContext)
	return out
}
