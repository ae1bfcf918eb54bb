// Package embedding turns text into fixed-size vectors. Providers implement
// store.EmbeddingProvider; New assembles the configured provider behind the
// caching and concurrency layer.
package embedding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// Options select and tune a provider.
type Options struct {
	Provider      string // "openai" or "hash"
	Model         string
	Dimensions    int
	APIKey        string
	APIBase       string
	MaxRetries    int
	CacheSize     int
	RedisURL      string
	CacheTTL      time.Duration
	MaxConcurrent int
}

// New builds the configured provider wrapped in a Cached layer.
func New(ctx context.Context, opts Options) (*Cached, error) {
	var inner store.EmbeddingProvider
	switch opts.Provider {
	case "openai":
		if opts.APIKey == "" && opts.APIBase == "" {
			return nil, fmt.Errorf("embedding provider openai: api_key is required")
		}
		inner = NewOpenAI(OpenAIOptions{
			APIKey:     opts.APIKey,
			BaseURL:    opts.APIBase,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			MaxRetries: opts.MaxRetries,
		})
	case "hash", "":
		inner = NewHash(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	var remote RemoteCache
	if opts.RedisURL != "" {
		rc, err := NewRedisCache(ctx, opts.RedisURL, opts.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("embedding redis cache: %w", err)
		}
		remote = rc
	}

	c, err := NewCached(inner, CacheOptions{
		Size:          opts.CacheSize,
		Remote:        remote,
		MaxConcurrent: opts.MaxConcurrent,
	})
	if err != nil {
		if cl, ok := remote.(io.Closer); ok {
			cl.Close()
		}
		return nil, err
	}

	slog.Info("embedding provider ready",
		"provider", inner.Name(),
		"model", inner.Model(),
		"dimensions", inner.Dimensions(),
		"cache_size", opts.CacheSize,
		"redis", opts.RedisURL != "",
	)
	return c, nil
}

// Close releases the remote cache, if any.
func (c *Cached) Close() error {
	if cl, ok := c.remote.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
