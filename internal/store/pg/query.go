package pg

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

const memoryColumns = "id::text, project_id, category, content, metadata, created_at"

// similarityExpr is 1 - cosine distance, pinned to [-1, 1].
func similarityExpr(param string) string {
	return fmt.Sprintf("LEAST(1.0, GREATEST(-1.0, 1 - (embedding <=> %s)))", param)
}

// filter accumulates WHERE conditions with positional parameters.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(f.args))))
}

func (f *filter) next() string {
	return fmt.Sprintf("$%d", len(f.args)+1)
}

func (f *filter) where() string {
	return strings.Join(f.conds, " AND ")
}

// buildSearchQuery ranks by distance, then id. UUIDv7 ids grow with insertion
// time, so equal distances come back oldest first. The id tie-break makes the
// planner sort exactly instead of walking the approximate HNSW index.
func buildSearchQuery(vec pgvector.Vector, opts store.SearchOptions) (string, []any) {
	var f filter
	f.args = append(f.args, vec)
	sim := similarityExpr("$1")

	f.add("project_id = %s", opts.ProjectID)
	if opts.Category != "" {
		f.add("category = %s", opts.Category)
	}
	// NaN compares greater than every number in Postgres, so exclude it first.
	f.conds = append(f.conds, "(embedding <=> $1) <> 'NaN'::float8")
	f.add(sim+" > %s", opts.Threshold)

	limit := f.next()
	f.args = append(f.args, opts.Limit)

	q := "SELECT " + memoryColumns + ", " + sim + " AS similarity" +
		" FROM memories WHERE " + f.where() +
		" ORDER BY embedding <=> $1 ASC, id ASC" +
		" LIMIT " + limit
	return q, f.args
}

// buildListQuery orders newest first; id breaks created_at ties so pages never overlap.
func buildListQuery(opts store.ListOptions) (string, []any) {
	var f filter
	f.add("project_id = %s", opts.ProjectID)
	if opts.Category != "" {
		f.add("category = %s", opts.Category)
	}

	limit := f.next()
	f.args = append(f.args, opts.Limit)
	offset := f.next()
	f.args = append(f.args, opts.Offset)

	q := "SELECT " + memoryColumns +
		" FROM memories WHERE " + f.where() +
		" ORDER BY created_at DESC, id DESC" +
		" LIMIT " + limit + " OFFSET " + offset
	return q, f.args
}

const (
	insertQuery = `INSERT INTO memories (id, project_id, category, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`
	deleteQuery = `DELETE FROM memories WHERE id = $1 AND project_id = $2`
	countQuery  = `SELECT count(*) FROM memories WHERE project_id = $1`

	tableExistsQuery = `SELECT to_regclass('memories') IS NOT NULL`
	// pgvector stores the declared dimension as the column typmod (-1 when unconstrained).
	embeddingDimsQuery = `SELECT a.atttypmod FROM pg_attribute a
		WHERE a.attrelid = 'memories'::regclass AND a.attname = 'embedding' AND NOT a.attisdropped`
)
