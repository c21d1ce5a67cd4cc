package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hurttlocker/vitae/internal/resume"
)

// QdrantStore implements VectorStore against the Qdrant HTTP API.
type QdrantStore struct {
	baseURL    string
	collection string
	client     *http.Client
}

// NewQdrantStore creates a Qdrant-backed store for one collection.
func NewQdrantStore(baseURL, collection string) *QdrantStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &QdrantStore{
		baseURL:    baseURL,
		collection: collection,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureCollection creates the collection with cosine distance if it
// does not already exist.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	status, _, err := q.do(ctx, "GET", "/collections/"+q.collection, nil)
	if err != nil {
		return &StoreError{Op: "ensure collection", Err: err}
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dimensions, "distance": "Cosine"},
	}
	status, respBody, err := q.do(ctx, "PUT", "/collections/"+q.collection, body)
	if err != nil {
		return &StoreError{Op: "create collection", Err: err}
	}
	if status != http.StatusOK {
		return &StoreError{Op: "create collection", Err: fmt.Errorf("status %d: %s", status, respBody)}
	}
	return nil
}

type qdrantPoint struct {
	ID      int64           `json:"id"`
	Vector  []float32       `json:"vector,omitempty"`
	Payload map[string]any  `json:"payload,omitempty"`
	Score   float64         `json:"score,omitempty"`
	Version json.RawMessage `json:"version,omitempty"`
}

func (q *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		points[i] = qdrantPoint{ID: r.ID, Vector: r.Embedding, Payload: r.Payload()}
	}

	status, body, err := q.do(ctx, "PUT", "/collections/"+q.collection+"/points?wait=true",
		map[string]any{"points": points})
	if err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	if status != http.StatusOK {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("status %d: %s", status, body)}
	}
	return nil
}

func (q *QdrantStore) Scroll(ctx context.Context, offset int64, limit int) ([]Record, int64, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if offset > 0 {
		req["offset"] = offset
	}

	status, body, err := q.do(ctx, "POST", "/collections/"+q.collection+"/points/scroll", req)
	if err != nil {
		return nil, 0, &StoreError{Op: "scroll", Err: err}
	}
	if status != http.StatusOK {
		return nil, 0, &StoreError{Op: "scroll", Err: fmt.Errorf("status %d: %s", status, body)}
	}

	var resp struct {
		Result struct {
			Points         []qdrantPoint `json:"points"`
			NextPageOffset *int64        `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &StoreError{Op: "scroll", Err: fmt.Errorf("parsing response: %w", err)}
	}

	records := make([]Record, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		records = append(records, recordFromPayload(p.ID, p.Payload, p.Vector))
	}

	var next int64
	if resp.Result.NextPageOffset != nil {
		next = *resp.Result.NextPageOffset
	}
	return records, next, nil
}

func (q *QdrantStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	status, body, err := q.do(ctx, "POST", "/collections/"+q.collection+"/points/delete?wait=true",
		map[string]any{"points": ids})
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	if status != http.StatusOK {
		return &StoreError{Op: "delete", Err: fmt.Errorf("status %d: %s", status, body)}
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, section resume.Section, limit int, withVectors bool) ([]Scored, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVectors,
	}
	if section != "" {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "section", "match": map[string]any{"value": string(section)}},
			},
		}
	}

	status, body, err := q.do(ctx, "POST", "/collections/"+q.collection+"/points/search", req)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}
	if status != http.StatusOK {
		return nil, &StoreError{Op: "search", Err: fmt.Errorf("status %d: %s", status, body)}
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &StoreError{Op: "search", Err: fmt.Errorf("parsing response: %w", err)}
	}

	scored := make([]Scored, 0, len(resp.Result))
	for _, p := range resp.Result {
		scored = append(scored, Scored{
			Record: recordFromPayload(p.ID, p.Payload, p.Vector),
			Score:  p.Score,
		})
	}
	return scored, nil
}

func (q *QdrantStore) Collection(ctx context.Context) (CollectionInfo, error) {
	status, body, err := q.do(ctx, "GET", "/collections/"+q.collection, nil)
	if err != nil {
		return CollectionInfo{}, &StoreError{Op: "collection info", Err: err}
	}
	if status != http.StatusOK {
		return CollectionInfo{}, &StoreError{Op: "collection info", Err: fmt.Errorf("status %d: %s", status, body)}
	}

	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CollectionInfo{}, &StoreError{Op: "collection info", Err: fmt.Errorf("parsing response: %w", err)}
	}
	return CollectionInfo{PointCount: resp.Result.PointsCount}, nil
}

// Close is a no-op for the HTTP client.
func (q *QdrantStore) Close() error { return nil }

func (q *QdrantStore) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
