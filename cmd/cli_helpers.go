package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nextlevelbuilder/memoria/internal/config"
	"github.com/nextlevelbuilder/memoria/internal/embedding"
	"github.com/nextlevelbuilder/memoria/internal/mcp"
	"github.com/nextlevelbuilder/memoria/internal/memory"
	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/internal/store/pg"
	"github.com/nextlevelbuilder/memoria/internal/store/sqlite"
	"github.com/nextlevelbuilder/memoria/internal/tools"
)

// storeConfig maps the database section onto the store settings.
func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Backend:     cfg.Database.Backend,
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		AutoMigrate: cfg.Database.AutoMigrate,
		Dimensions:  cfg.Embedding.Dimensions,
	}
}

// openVectorStore opens the configured backend.
func openVectorStore(ctx context.Context, sc store.StoreConfig) (store.VectorStore, error) {
	if sc.IsManaged() {
		return pg.Open(ctx, pg.Options{
			DSN:         sc.PostgresDSN,
			MaxConns:    sc.MaxConns,
			MinConns:    sc.MinConns,
			Dimensions:  sc.Dimensions,
			AutoMigrate: sc.AutoMigrate,
		})
	}
	return sqlite.Open(ctx, sc.SQLitePath, sc.Dimensions, int(sc.MaxConns))
}

// openEmbedder builds the configured provider with its caches.
func openEmbedder(ctx context.Context, cfg *config.Config) (*embedding.Cached, error) {
	ec := cfg.Embedding
	return embedding.New(ctx, embedding.Options{
		Provider:      ec.Provider,
		Model:         ec.Model,
		Dimensions:    ec.Dimensions,
		APIKey:        ec.APIKey,
		APIBase:       ec.APIBase,
		MaxRetries:    ec.MaxRetries,
		CacheSize:     ec.CacheSize,
		RedisURL:      ec.RedisURL,
		CacheTTL:      ec.CacheTTLDuration(),
		MaxConcurrent: ec.MaxConcurrent,
	})
}

// openService wires store and embedder into a memory.Service. The returned
// cleanup closes both.
func openService(ctx context.Context, cfg *config.Config) (*memory.Service, func(), error) {
	emb, err := openEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	vs, err := openVectorStore(ctx, storeConfig(cfg))
	if err != nil {
		emb.Close()
		if errors.Is(err, store.ErrSchemaMissing) {
			return nil, nil, fmt.Errorf("%w (run \"memoria migrate up\" or set database.auto_migrate)", err)
		}
		return nil, nil, err
	}
	cleanup := func() {
		if err := vs.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
		if err := emb.Close(); err != nil {
			slog.Warn("close embedding cache", "error", err)
		}
	}
	return memory.NewService(vs, emb), cleanup, nil
}

// remoteFlags select a running server instead of opening the store locally.
type remoteFlags struct {
	url      string
	token    string
	clientID string
}

// openRegistry returns a registry backed either by a remote server (when
// rf.url is set) or by a local service built from the config.
func openRegistry(ctx context.Context, rf remoteFlags) (*tools.Registry, func(), error) {
	reg := tools.NewRegistry()

	if rf.url != "" {
		token := rf.token
		if token == "" {
			token = os.Getenv("MEMORIA_AUTH_TOKEN")
		}
		remote, err := mcp.Dial(ctx, rf.url, token, rf.clientID)
		if err != nil {
			return nil, nil, err
		}
		if _, err := remote.RegisterTools(ctx, reg, 60); err != nil {
			remote.Close()
			return nil, nil, err
		}
		return reg, func() { remote.Close() }, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	tools.RegisterMemoryTools(reg, svc)
	return reg, cleanup, nil
}
