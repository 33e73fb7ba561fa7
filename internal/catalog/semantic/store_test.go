package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/konecto/actuator-agent/internal/catalog"
	"github.com/konecto/actuator-agent/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	delay         time.Duration
	embedErr      error
	returnEmpty   bool
	embeddings    []float32
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{}}}}, nil
	}
	embeddings := m.embeddings
	if embeddings == nil {
		embeddings = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: embeddings}}}, nil
}

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	searchErr error
	countErr  error
	insertErr error

	searchResults []ChunkRow
	countResult   int64

	searchCalls      int
	countCalls       int
	insertCalls      int
	lastSearchParams SearchChunksParams
	lastInsertParams InsertChunkParams
}

func (m *mockQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	m.searchCalls++
	m.lastSearchParams = arg
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResults, nil
}

func (m *mockQuerier) CountChunks(ctx context.Context) (int64, error) {
	m.countCalls++
	return m.countResult, m.countErr
}

func (m *mockQuerier) InsertChunk(ctx context.Context, arg InsertChunkParams) error {
	m.insertCalls++
	m.lastInsertParams = arg
	return m.insertErr
}

func chunkRow(id int64, partNumber, contextType string, similarity float64) ChunkRow {
	spec, _ := json.Marshal(map[string]any{"output_torque_nm": 40})
	return ChunkRow{
		ID:          id,
		PartNumber:  partNumber,
		ContextType: contextType,
		Content:     partNumber + " " + contextType,
		Spec:        spec,
		Similarity:  similarity,
	}
}

func TestQueryReturnsScoredRecords(t *testing.T) {
	querier := &mockQuerier{
		searchResults: []ChunkRow{
			chunkRow(1, "763A00-11330C00/A", "220V 3 Phase Power", 0.92),
			chunkRow(2, "763A00-11330C01/A", "110V Single Phase Power", 0.85),
		},
	}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	results, err := store.Query(context.Background(), "high torque actuator")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].PartNumber != "763A00-11330C00/A" {
		t.Errorf("expected best match first, got %q", results[0].PartNumber)
	}
	if results[0].Similarity != 0.92 {
		t.Errorf("expected similarity 0.92, got %v", results[0].Similarity)
	}
	if torque, ok := results[0].Specs["output_torque_nm"]; !ok || torque != float64(40) {
		t.Errorf("expected spec output_torque_nm=40, got %v", results[0].Specs)
	}
}

func TestQueryDeduplicatesChunksPerRecord(t *testing.T) {
	// Three chunks, two of them for the same record. The best-scoring
	// chunk wins; ordering stays similarity-descending.
	querier := &mockQuerier{
		searchResults: []ChunkRow{
			chunkRow(10, "763A00-11330C00/A", "220V 3 Phase Power", 0.95),
			chunkRow(11, "764B00-11300000/A", "24V DC Power", 0.90),
			chunkRow(12, "763A00-11330C00/A", "220V 3 Phase Power", 0.70),
		},
	}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	results, err := store.Query(context.Background(), "actuator for valves")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(results))
	}
	if results[0].PartNumber != "763A00-11330C00/A" || results[0].Similarity != 0.95 {
		t.Errorf("expected best chunk kept for duplicated record, got %+v", results[0])
	}
	if results[1].PartNumber != "764B00-11300000/A" {
		t.Errorf("expected second record preserved, got %q", results[1].PartNumber)
	}
}

func TestQueryTopKClamping(t *testing.T) {
	tests := []struct {
		name      string
		opts      []SearchOption
		wantLimit int32
	}{
		{"default", nil, defaultTopK * chunkOverfetchFactor},
		{"explicit", []SearchOption{WithTopK(5)}, 5 * chunkOverfetchFactor},
		{"below minimum clamps to 1", []SearchOption{WithTopK(0)}, 1 * chunkOverfetchFactor},
		{"above maximum clamps to 10", []SearchOption{WithTopK(50)}, 10 * chunkOverfetchFactor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &mockQuerier{
				searchResults: []ChunkRow{chunkRow(1, "763A00-11330C00/A", "220V 3 Phase Power", 0.9)},
			}
			store := New(querier, &mockEmbedder{}, log.NewNop())
			if _, err := store.Query(context.Background(), "torque", tt.opts...); err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if got := querier.lastSearchParams.ResultLimit; got != tt.wantLimit {
				t.Errorf("expected chunk limit %d, got %d", tt.wantLimit, got)
			}
		})
	}
}

func TestQueryTopKBoundsResults(t *testing.T) {
	rows := make([]ChunkRow, 0, 8)
	for i := range 8 {
		pn := "763A00-1133000" + string(rune('0'+i)) + "/A"
		rows = append(rows, chunkRow(int64(i+1), pn, "220V 3 Phase Power", 0.9-float64(i)*0.05))
	}
	querier := &mockQuerier{searchResults: rows}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	results, err := store.Query(context.Background(), "torque", WithTopK(3))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestQueryFilterMarshaledAsJSON(t *testing.T) {
	querier := &mockQuerier{
		searchResults: []ChunkRow{chunkRow(1, "763A00-11330C01/A", "110V Single Phase Power", 0.8)},
	}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	_, err := store.Query(context.Background(), "single phase actuator",
		WithFilter("context_type", "110V Single Phase Power"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	var filter map[string]string
	if err := json.Unmarshal(querier.lastSearchParams.FilterMetadata, &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}
	if filter["context_type"] != "110V Single Phase Power" {
		t.Errorf("unexpected filter contents: %v", filter)
	}
}

func TestQueryNoFilterPassesNil(t *testing.T) {
	querier := &mockQuerier{
		searchResults: []ChunkRow{chunkRow(1, "763A00-11330C00/A", "220V 3 Phase Power", 0.8)},
	}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	if _, err := store.Query(context.Background(), "torque"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if querier.lastSearchParams.FilterMetadata != nil {
		t.Errorf("expected nil filter, got %s", querier.lastSearchParams.FilterMetadata)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	querier := &mockQuerier{countResult: 0}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	_, err := store.Query(context.Background(), "anything")
	if !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
	if querier.countCalls != 1 {
		t.Errorf("expected population check after empty search, got %d calls", querier.countCalls)
	}
}

func TestQueryNoMatchesOnPopulatedIndex(t *testing.T) {
	querier := &mockQuerier{countResult: 42}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	results, err := store.Query(context.Background(), "unrelated text")
	if err != nil {
		t.Fatalf("expected no error for zero matches on populated index, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestQueryEmbedderError(t *testing.T) {
	embedErr := errors.New("provider unavailable")
	store := New(&mockQuerier{}, &mockEmbedder{embedErr: embedErr}, log.NewNop())

	_, err := store.Query(context.Background(), "torque")
	if !errors.Is(err, embedErr) {
		t.Fatalf("expected wrapped embedder error, got %v", err)
	}
}

func TestQueryEmptyEmbeddingResponse(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, log.NewNop())

	if _, err := store.Query(context.Background(), "torque"); err == nil {
		t.Fatal("expected error for empty embedding response")
	}
}

func TestQueryEmbeddingTimeout(t *testing.T) {
	embedder := &mockEmbedder{delay: 200 * time.Millisecond}
	store := New(&mockQuerier{}, embedder, log.NewNop())

	_, err := store.Query(context.Background(), "torque",
		WithTimeout(20*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQuerySearchError(t *testing.T) {
	searchErr := errors.New("connection refused")
	querier := &mockQuerier{searchErr: searchErr}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	_, err := store.Query(context.Background(), "torque")
	if !errors.Is(err, searchErr) {
		t.Fatalf("expected wrapped search error, got %v", err)
	}
}

func TestQuerySkipsMalformedSpecJSON(t *testing.T) {
	bad := chunkRow(1, "763A00-11330C00/A", "220V 3 Phase Power", 0.9)
	bad.Spec = []byte("{not json")
	querier := &mockQuerier{searchResults: []ChunkRow{bad}}
	store := New(querier, &mockEmbedder{}, log.NewNop())

	results, err := store.Query(context.Background(), "torque")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected record kept despite bad spec JSON, got %d results", len(results))
	}
	if len(results[0].Specs) != 0 {
		t.Errorf("expected empty specs for malformed JSON, got %v", results[0].Specs)
	}
}

func TestIndexEmbedsContent(t *testing.T) {
	querier := &mockQuerier{}
	embedder := &mockEmbedder{}
	store := New(querier, embedder, log.NewNop())

	rec := catalog.Record{
		PartNumber:  "763A00-11330C00/A",
		ContextType: "220V 3 Phase Power",
		Specs:       map[string]any{"output_torque_nm": 40},
	}
	if err := store.Index(context.Background(), rec, "quarter-turn actuator, 40 Nm"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if embedder.lastInputText != "quarter-turn actuator, 40 Nm" {
		t.Errorf("expected content embedded, got %q", embedder.lastInputText)
	}
	if querier.insertCalls != 1 {
		t.Fatalf("expected 1 insert, got %d", querier.insertCalls)
	}

	var metadata map[string]string
	if err := json.Unmarshal(querier.lastInsertParams.Metadata, &metadata); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if metadata["context_type"] != "220V 3 Phase Power" {
		t.Errorf("expected context_type in metadata, got %v", metadata)
	}
}
