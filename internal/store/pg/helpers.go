package pg

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

// --- JSON helpers ---

func metadataJSON(md store.Metadata) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func parseMetadata(data []byte) store.Metadata {
	if len(data) == 0 || string(data) == "{}" {
		return nil
	}
	md, err := store.DecodeMetadata(data)
	if err != nil {
		slog.Warn("pg: unreadable metadata", "error", err)
		return nil
	}
	return md
}

// --- Row scanners ---

func scanMemory(row pgx.Row) (store.Memory, error) {
	var (
		m  store.Memory
		md []byte
	)
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Category, &m.Content, &md, &m.CreatedAt); err != nil {
		return store.Memory{}, err
	}
	m.Metadata = parseMetadata(md)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func scanSearchResult(row pgx.Row) (store.SearchResult, error) {
	var (
		r  store.SearchResult
		md []byte
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Category, &r.Content, &md, &r.CreatedAt, &r.Similarity); err != nil {
		return store.SearchResult{}, err
	}
	r.Metadata = parseMetadata(md)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
