package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/memoria/internal/store"
)

func openTestStore(t *testing.T, dims int) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), dims, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustInsert(t *testing.T, s *Store, project, category, content string, vec []float32) string {
	t.Helper()
	id, err := s.Insert(context.Background(), store.NewMemory{
		ProjectID: project,
		Category:  category,
		Content:   content,
		Embedding: vec,
	})
	if err != nil {
		t.Fatalf("Insert(%q): %v", content, err)
	}
	return id
}

func TestStore_CRUD(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	id, err := s.Insert(ctx, store.NewMemory{
		ProjectID: "p1",
		Category:  "decision",
		Content:   "use postgres for prod",
		Embedding: []float32{1, 0, 0},
		Metadata:  store.Metadata{"source": "adr-7", "n": float64(3)},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if n, _ := s.CountByProject(ctx, "p1"); n != 1 {
		t.Errorf("CountByProject = %d, want 1", n)
	}

	list, err := s.List(ctx, store.ListOptions{ProjectID: "p1", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("List = %+v", list)
	}
	if list[0].Metadata["source"] != "adr-7" || list[0].Metadata["n"] != json.Number("3") {
		t.Errorf("metadata not returned verbatim: %#v", list[0].Metadata)
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	n, err := s.DeleteByID(ctx, id, "p1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteByID = %d, %v", n, err)
	}
	if n, _ := s.CountByProject(ctx, "p1"); n != 0 {
		t.Errorf("after delete, CountByProject = %d, want 0", n)
	}

	// Second delete of the same id is a normal zero-row result.
	n, err = s.DeleteByID(ctx, id, "p1")
	if err != nil || n != 0 {
		t.Errorf("repeat DeleteByID = %d, %v", n, err)
	}
}

func TestStore_MetadataLargeIntegerVerbatim(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	// 2^53 + 1 is not representable as float64.
	const big = "9007199254740993"
	_, err := s.Insert(ctx, store.NewMemory{
		ProjectID: "p", Category: "c", Content: "x", Embedding: []float32{1, 0},
		Metadata: store.Metadata{"ticket": json.Number(big), "nested": map[string]any{"id": json.Number(big)}},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	list, err := s.List(ctx, store.ListOptions{ProjectID: "p", Limit: 1})
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	if got := list[0].Metadata["ticket"]; got != json.Number(big) {
		t.Errorf("ticket = %#v, want %s", got, big)
	}
	out, _ := json.Marshal(list[0].Metadata)
	if !strings.Contains(string(out), `"id":`+big) {
		t.Errorf("re-encoded metadata lost precision: %s", out)
	}
}

func TestStore_DeleteCrossProject(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()
	id := mustInsert(t, s, "p1", "note", "secret", []float32{1, 0, 0})

	n, err := s.DeleteByID(ctx, id, "p2")
	if err != nil || n != 0 {
		t.Fatalf("cross-project DeleteByID = %d, %v; want 0, nil", n, err)
	}
	if c, _ := s.CountByProject(ctx, "p1"); c != 1 {
		t.Errorf("row should survive a cross-project delete, count = %d", c)
	}
}

func TestStore_SearchRankingAndThreshold(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	// cos(a, q) = 0.9, cos(b, q) = 0.6, cos(c, q) = -1
	q := []float32{1, 0}
	a := mustInsert(t, s, "p", "note", "a", []float32{0.9, 0.43588989})
	b := mustInsert(t, s, "p", "note", "b", []float32{0.6, 0.8})
	mustInsert(t, s, "p", "note", "c", []float32{-1, 0})

	res, err := s.SimilaritySearch(ctx, q, store.SearchOptions{ProjectID: "p", Limit: 5, Threshold: 0.5})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
	if res[0].ID != a || res[1].ID != b {
		t.Errorf("order = [%s %s], want [%s %s]", res[0].Content, res[1].Content, "a", "b")
	}
	if res[0].Similarity < res[1].Similarity {
		t.Error("results not in non-increasing similarity order")
	}

	// Threshold 0 still excludes the opposite vector (similarity -1).
	res, _ = s.SimilaritySearch(ctx, q, store.SearchOptions{ProjectID: "p", Limit: 5, Threshold: 0})
	if len(res) != 2 {
		t.Errorf("threshold 0: got %d results, want 2", len(res))
	}

	// Nothing can exceed threshold 1.
	res, _ = s.SimilaritySearch(ctx, q, store.SearchOptions{ProjectID: "p", Limit: 5, Threshold: 1})
	if len(res) != 0 {
		t.Errorf("threshold 1: got %d results, want 0", len(res))
	}
}

func TestStore_SearchThresholdIsStrict(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	// Orthogonal to the query: similarity exactly 0.
	mustInsert(t, s, "p", "note", "orthogonal", []float32{0, 1})

	res, err := s.SimilaritySearch(ctx, []float32{1, 0}, store.SearchOptions{ProjectID: "p", Limit: 5, Threshold: 0})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("similarity equal to threshold must be excluded, got %d results", len(res))
	}
}

func TestStore_SearchTiesKeepInsertionOrder(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustInsert(t, s, "p", "note", fmt.Sprintf("dup-%d", i), []float32{1, 1}))
	}

	for round := 0; round < 3; round++ {
		res, err := s.SimilaritySearch(ctx, []float32{1, 1}, store.SearchOptions{ProjectID: "p", Limit: 5, Threshold: 0.5})
		if err != nil {
			t.Fatalf("SimilaritySearch: %v", err)
		}
		if len(res) != 5 {
			t.Fatalf("got %d results, want 5", len(res))
		}
		for i, r := range res {
			if r.ID != ids[i] {
				t.Fatalf("round %d: position %d = %s, want %s", round, i, r.Content, fmt.Sprintf("dup-%d", i))
			}
		}
	}
}

func TestStore_SearchProjectAndCategoryFilter(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	mustInsert(t, s, "p1", "decision", "p1-decision", []float32{1, 0})
	mustInsert(t, s, "p1", "snippet", "p1-snippet", []float32{1, 0})
	mustInsert(t, s, "p2", "decision", "p2-decision", []float32{1, 0})

	res, _ := s.SimilaritySearch(ctx, []float32{1, 0}, store.SearchOptions{ProjectID: "p1", Limit: 10, Threshold: 0.5})
	if len(res) != 2 {
		t.Fatalf("project filter: got %d, want 2", len(res))
	}
	for _, r := range res {
		if r.ProjectID != "p1" {
			t.Errorf("leaked row from %s", r.ProjectID)
		}
	}

	res, _ = s.SimilaritySearch(ctx, []float32{1, 0}, store.SearchOptions{ProjectID: "p1", Category: "snippet", Limit: 10, Threshold: 0.5})
	if len(res) != 1 || res[0].Content != "p1-snippet" {
		t.Errorf("category filter: got %+v", res)
	}
}

func TestStore_SearchLimit(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		mustInsert(t, s, "p", "note", fmt.Sprintf("m%d", i), []float32{1, float32(i) / 1000})
	}
	res, err := s.SimilaritySearch(ctx, []float32{1, 0}, store.SearchOptions{ProjectID: "p", Limit: 50, Threshold: 0.5})
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(res) != 50 {
		t.Errorf("got %d results, want 50", len(res))
	}
}

func TestStore_ListPagination(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		mustInsert(t, s, "p", "note", fmt.Sprintf("m%02d", i), []float32{1, 0})
	}

	page1, err := s.List(ctx, store.ListOptions{ProjectID: "p", Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("List page1: %v", err)
	}
	page2, err := s.List(ctx, store.ListOptions{ProjectID: "p", Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("List page2: %v", err)
	}
	all, _ := s.List(ctx, store.ListOptions{ProjectID: "p", Limit: 100})

	if len(page1) != 10 || len(page2) != 10 || len(all) != 25 {
		t.Fatalf("page sizes = %d, %d, %d", len(page1), len(page2), len(all))
	}
	// Newest first.
	if all[0].Content != "m24" || all[24].Content != "m00" {
		t.Errorf("order: first=%s last=%s", all[0].Content, all[24].Content)
	}
	for i := 0; i < 10; i++ {
		if page1[i].ID != all[i].ID {
			t.Errorf("page1[%d] = %s, want %s", i, page1[i].Content, all[i].Content)
		}
		if page2[i].ID != all[10+i].ID {
			t.Errorf("page2[%d] = %s, want %s", i, page2[i].Content, all[10+i].Content)
		}
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	_, err := s.Insert(ctx, store.NewMemory{ProjectID: "p", Category: "c", Content: "x", Embedding: []float32{1, 0}})
	se, ok := store.AsStorage(err)
	if !ok || se.Retryable || !errors.Is(err, store.ErrDimensionMismatch) {
		t.Fatalf("Insert wrong dims: err = %v", err)
	}
	if n, _ := s.CountByProject(ctx, "p"); n != 0 {
		t.Error("no row may be written on dimension mismatch")
	}

	_, err = s.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, store.SearchOptions{ProjectID: "p", Limit: 5})
	if !errors.Is(err, store.ErrDimensionMismatch) {
		t.Errorf("Search wrong dims: err = %v", err)
	}
}

func TestOpen_DimensionsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dims.db")
	ctx := context.Background()

	s, err := Open(ctx, path, 8, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	// Reopen with dims unknown: stored value wins.
	s, err = Open(ctx, path, 0, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s.Dimensions() != 8 {
		t.Errorf("Dimensions = %d, want 8", s.Dimensions())
	}
	s.Close()

	// A provider with a different size is a breaking change.
	if _, err := Open(ctx, path, 16, 1); !errors.Is(err, store.ErrDimensionMismatch) {
		t.Errorf("Open with new dims: err = %v, want ErrDimensionMismatch", err)
	}
}
