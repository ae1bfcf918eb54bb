package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// RemoteCache is a shared second-level cache (Redis in production).
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CacheOptions configure a Cached provider.
type CacheOptions struct {
	Size          int         // LRU entries; <= 0 disables the local cache
	Remote        RemoteCache // optional
	MaxConcurrent int         // provider calls in flight; <= 0 means unbounded
}

// Cached wraps a provider with a local LRU, an optional remote cache,
// singleflight dedupe of identical in-flight texts and a bound on concurrent
// provider calls. Callers over the bound wait; they are never rejected.
//
// Returned vectors are shared with the cache and must not be modified.
type Cached struct {
	inner  store.EmbeddingProvider
	local  *lru.Cache[string, []float32]
	remote RemoteCache
	sem    *semaphore.Weighted
	group  singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one text. It is
// cancelled when the last waiter leaves, which aborts the provider call.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCached wraps inner.
func NewCached(inner store.EmbeddingProvider, opts CacheOptions) (*Cached, error) {
	c := &Cached{inner: inner, remote: opts.Remote, flights: make(map[string]*flight)}
	if opts.Size > 0 {
		local, err := lru.New[string, []float32](opts.Size)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		c.local = local
	}
	if opts.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return c, nil
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) Model() string   { return c.inner.Model() }
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Embed serves cached vectors and sends the misses to the provider.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int

	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	if len(missIdx) == 1 {
		i := missIdx[0]
		vec, err := c.embedOne(ctx, keys[i], texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	vecs, err := c.call(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d inputs", c.inner.Name(), len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.remember(ctx, keys[i], vecs[j])
	}
	return out, nil
}

// embedOne collapses concurrent requests for the same text into one call.
// The call outlives any single caller but not all of them.
func (c *Cached) embedOne(ctx context.Context, key, text string) ([]float32, error) {
	for {
		f := c.join(ctx, key)
		ch := c.group.DoChan(key, func() (any, error) {
			vecs, err := c.call(f.ctx, []string{text})
			if err != nil {
				return nil, err
			}
			if len(vecs) != 1 {
				return nil, fmt.Errorf("%s returned %d vectors for 1 input", c.inner.Name(), len(vecs))
			}
			c.remember(f.ctx, key, vecs[0])
			return vecs[0], nil
		})

		select {
		case <-ctx.Done():
			c.leave(key, f)
			return nil, ctx.Err()
		case res := <-ch:
			c.leave(key, f)
			if res.Err != nil {
				// Joined a call whose waiters had all gone; ours is still live.
				if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]float32), nil
		}
	}
}

func (c *Cached) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Cached) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cached) call(ctx context.Context, texts []string) ([][]float32, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}
	return c.inner.Embed(ctx, texts)
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.local != nil {
		if vec, ok := c.local.Get(key); ok {
			return vec, true
		}
	}
	if c.remote == nil {
		return nil, false
	}
	vec, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.Warn("embedding cache: remote get failed", "error", err)
		return nil, false
	}
	if !ok || len(vec) != c.inner.Dimensions() {
		return nil, false
	}
	if c.local != nil {
		c.local.Add(key, vec)
	}
	return vec, true
}

func (c *Cached) remember(ctx context.Context, key string, vec []float32) {
	if !validForCache(vec) {
		return
	}
	if c.local != nil {
		c.local.Add(key, vec)
	}
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, vec); err != nil {
			slog.Warn("embedding cache: remote set failed", "error", err)
		}
	}
}

// key scopes entries by provider and model so a model change never serves stale vectors.
func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.inner.Name() + ":" + c.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func validForCache(vec []float32) bool {
	return len(vec) > 0
}
