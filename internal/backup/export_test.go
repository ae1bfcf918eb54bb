package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/memoria/internal/embedding"
	"github.com/nextlevelbuilder/memoria/internal/memory"
	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/internal/store/sqlite"
)

func newService(t *testing.T) *memory.Service {
	t.Helper()
	vs, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "backup.db"), 32, 4)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	return memory.NewService(vs, embedding.NewHash(32))
}

func readRecords(t *testing.T, r io.Reader) []Record {
	t.Helper()
	var out []Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestExport_PagesThroughEverything(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	const n = store.MaxListLimit + 30
	for i := 0; i < n; i++ {
		_, err := svc.Store(ctx, memory.StoreRequest{
			ProjectID: "big",
			Category:  "note",
			Content:   fmt.Sprintf("note %d", i),
			Metadata:  store.Metadata{"i": i},
		})
		require.NoError(t, err)
	}
	_, err := svc.Store(ctx, memory.StoreRequest{ProjectID: "other", Category: "note", Content: "elsewhere"})
	require.NoError(t, err)

	var buf bytes.Buffer
	count, err := Export(ctx, svc, Options{ProjectID: "big"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	recs := readRecords(t, &buf)
	require.Len(t, recs, n)
	seen := map[string]bool{}
	for _, r := range recs {
		assert.Equal(t, "big", r.ProjectID)
		assert.False(t, seen[r.ID], "duplicate %s", r.ID)
		seen[r.ID] = true
	}
	// Newest first.
	assert.Equal(t, fmt.Sprintf("note %d", n-1), recs[0].Content)
	assert.Equal(t, "note 0", recs[n-1].Content)
}

func TestExport_EmptyProject(t *testing.T) {
	var buf bytes.Buffer
	count, err := Export(context.Background(), newService(t), Options{ProjectID: "none"}, &buf)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, buf.Len())
}

func TestExport_InvalidProject(t *testing.T) {
	_, err := Export(context.Background(), newService(t), Options{ProjectID: " "}, io.Discard)
	assert.True(t, store.IsValidation(err))
}

type fakeUploader struct {
	body []byte
	err  error
	in   *s3.PutObjectInput
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{}, nil
}

func TestExportToS3(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Store(ctx, memory.StoreRequest{ProjectID: "p", Category: "c", Content: "hello"})
	require.NoError(t, err)

	up := &fakeUploader{}
	count, err := ExportToS3(ctx, svc, Options{ProjectID: "p"}, up, S3Options{Bucket: "b", Key: "p.jsonl"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "b", aws.ToString(up.in.Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(up.in.ContentType))

	recs := readRecords(t, bytes.NewReader(up.body))
	require.Len(t, recs, 1)
	assert.Equal(t, "hello", recs[0].Content)
}

func TestExportToS3_Errors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := ExportToS3(ctx, svc, Options{ProjectID: "p"}, &fakeUploader{}, S3Options{Bucket: "b"})
	assert.Error(t, err)

	_, err = ExportToS3(ctx, svc, Options{ProjectID: "p"}, &fakeUploader{err: errors.New("access denied")}, S3Options{Bucket: "b", Key: "k"})
	assert.ErrorContains(t, err, "access denied")
}
