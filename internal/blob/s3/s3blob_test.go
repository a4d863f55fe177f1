package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type memBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	multipart int
	err       error
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.mu.Lock()
	m.multipart++
	m.mu.Unlock()
	return m.Put(ctx, path, data, "")
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type pagedStore struct {
	records []domain.OpportunityRecord
	calls   []domain.ListOpts
}

func (s *pagedStore) InsertOpportunity(context.Context, *domain.EnhancedOpportunity) error {
	return nil
}

func (s *pagedStore) ListRecentOpportunities(_ context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	s.calls = append(s.calls, opts)
	if opts.Offset >= len(s.records) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(s.records))
	return s.records[opts.Offset:end], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readLines(t *testing.T, b []byte) []domain.OpportunityRecord {
	t.Helper()
	var out []domain.OpportunityRecord
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var rec domain.OpportunityRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestArchiver_ArchivePass(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, blob, testLogger())
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)

	opps := []*domain.EnhancedOpportunity{
		{ID: "o1", Class: domain.ClassSingleCondition, ProfitPercentage: 2, DiscoveredAt: at},
		{ID: "o2", Class: domain.ClassNegRiskRebalancing, ProfitPercentage: 5, DiscoveredAt: at},
	}
	path, err := a.ArchivePass(context.Background(), "pass-1", at, opps)
	require.NoError(t, err)
	assert.Equal(t, "scans/2026/03/01/pass-1.jsonl", path)
	assert.Equal(t, contentTypeJSONL, blob.types[path])

	recs := readLines(t, blob.objects[path])
	require.Len(t, recs, 2)
	assert.Equal(t, "o1", recs[0].ID)
	assert.Equal(t, "negrisk_rebalancing", recs[1].OpportunityClass)
}

func TestArchiver_ArchivePass_Empty(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, nil, testLogger())

	path, err := a.ArchivePass(context.Background(), "p", time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, blob.objects)
}

func TestArchiver_ArchivePass_WriteError(t *testing.T) {
	blob := newMemBlob()
	blob.err = errors.New("boom")
	a := NewArchiver(blob, nil, testLogger())

	_, err := a.ArchivePass(context.Background(), "p", time.Now(), []*domain.EnhancedOpportunity{{ID: "x"}})
	assert.ErrorContains(t, err, "boom")
}

func TestArchiver_ArchiveHistory_Pages(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, blob, testLogger())
	store := &pagedStore{}
	for i := range historyPageSize + 3 {
		store.records = append(store.records, domain.OpportunityRecord{ID: string(rune('a' + i%26))})
	}
	before := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveHistory(context.Background(), store, before)
	require.NoError(t, err)
	assert.Equal(t, historyPageSize+3, n)
	require.Len(t, store.calls, 2)
	assert.Equal(t, historyPageSize, store.calls[1].Offset)
	assert.True(t, store.calls[0].Until.Equal(before))

	path := "archive/opportunities/2026-02.jsonl"
	assert.Len(t, readLines(t, blob.objects[path]), historyPageSize+3)
	assert.Zero(t, blob.multipart)
}

func TestArchiver_ArchiveHistory_SkipsExisting(t *testing.T) {
	blob := newMemBlob()
	blob.objects["archive/opportunities/2026-02.jsonl"] = []byte("{}\n")
	a := NewArchiver(blob, blob, testLogger())
	store := &pagedStore{records: []domain.OpportunityRecord{{ID: "a"}}}

	n, err := a.ArchiveHistory(context.Background(), store, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.calls)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://x.y", normaliseEndpoint("http://x.y", true))
}
