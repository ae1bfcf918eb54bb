// Package backup writes a project's memories as JSON Lines, to a local
// writer or to an S3 object.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/memoria/internal/memory"
	"github.com/nextlevelbuilder/memoria/internal/store"
)

// Lister is the read side of memory.Service used by Export.
type Lister interface {
	List(ctx context.Context, req memory.ListRequest) ([]store.Memory, error)
}

// Record is one exported line. Embeddings are not exported; they are
// recomputed on import by whatever provider is configured then.
type Record struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Category  string         `json:"category"`
	Content   string         `json:"content"`
	Metadata  store.Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Options narrow an export.
type Options struct {
	ProjectID string
	Category  string // optional exact-match filter
}

// Export writes every memory of opts.ProjectID to w, newest first, one JSON
// object per line. It pages through List with the maximum page size. Memories
// stored while the export runs may shift pages; a concurrent insert can cause
// one record to appear twice.
func Export(ctx context.Context, svc Lister, opts Options, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	limit := store.MaxListLimit
	total := 0
	for offset := 0; ; offset += limit {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := svc.List(ctx, memory.ListRequest{
			ProjectID: opts.ProjectID,
			Category:  opts.Category,
			Limit:     &limit,
			Offset:    &offset,
		})
		if err != nil {
			return total, fmt.Errorf("list offset %d: %w", offset, err)
		}
		for _, m := range page {
			rec := Record{
				ID:        m.ID,
				ProjectID: m.ProjectID,
				Category:  m.Category,
				Content:   m.Content,
				Metadata:  m.Metadata,
				CreatedAt: m.CreatedAt,
			}
			if err := enc.Encode(rec); err != nil {
				return total, fmt.Errorf("write record %s: %w", m.ID, err)
			}
			total++
		}
		if len(page) < limit {
			break
		}
	}

	slog.Info("export complete", "project", opts.ProjectID, "records", total)
	return total, nil
}
