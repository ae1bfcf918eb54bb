package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator returns a golang-migrate instance over the embedded migrations.
// The caller must Close it.
func NewMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	url, err := migrateURL(dsn)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations and returns the resulting version.
func MigrateUp(dsn string) (uint, error) {
	m, err := NewMigrator(dsn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, err
	}
	return v, nil
}

// migrateURL rewrites a postgres URL to the pgx5 scheme the driver registers.
func migrateURL(dsn string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("migrations need a URL-form DSN (postgres://...), got a key=value string")
}

// ProvisionDimensions fixes the embedding column of a freshly migrated schema
// to dims and builds the vector index. A column that already has a dimension
// is left alone; its dimension is returned either way.
func ProvisionDimensions(ctx context.Context, dsn string, dims int) (int, error) {
	pool, err := OpenPool(ctx, dsn, 1, 0)
	if err != nil {
		return 0, err
	}
	defer pool.Close()

	colDims, err := probeSchema(ctx, pool)
	if err != nil {
		return 0, err
	}
	if colDims > 0 || dims <= 0 {
		return colDims, nil
	}
	return provisionDimensions(ctx, pool, dims)
}

// dimensionStatements type the embedding column and add the HNSW index,
// which pgvector only builds over a fixed-dimension column.
func dimensionStatements(dims int) []string {
	return []string{
		fmt.Sprintf("ALTER TABLE memories ALTER COLUMN embedding TYPE vector(%d)", dims),
		"CREATE INDEX IF NOT EXISTS idx_memories_embedding ON memories USING hnsw (embedding vector_cosine_ops)",
	}
}

func provisionDimensions(ctx context.Context, pool *pgxpool.Pool, dims int) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, classify("provision", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "LOCK TABLE memories IN ACCESS EXCLUSIVE MODE"); err != nil {
		return 0, classify("provision", err)
	}
	// Another process may have won the race while we waited for the lock.
	var colDims int
	if err := tx.QueryRow(ctx, embeddingDimsQuery).Scan(&colDims); err != nil {
		return 0, classify("provision", err)
	}
	if colDims > 0 {
		return colDims, nil
	}
	for _, stmt := range dimensionStatements(dims) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, classify("provision", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify("provision", err)
	}
	slog.Info("postgres embedding column provisioned", "dimensions", dims)
	return dims, nil
}
