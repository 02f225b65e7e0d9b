package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallnest/murmur/internal/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant-backed index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dim        int
	Timeout    time.Duration
}

// DefaultQdrantConfig returns the default Qdrant configuration.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://127.0.0.1:6333",
		Collection: "memory_v1",
		Dim:        1536,
		Timeout:    30 * time.Second,
	}
}

// QdrantIndex adapts a Qdrant collection to the Index contract over its
// REST API. The collection is created with cosine distance, so scores
// come back directly comparable to the local backend's.
type QdrantIndex struct {
	config     QdrantConfig
	httpClient *http.Client
}

// NewQdrantIndex creates a Qdrant adapter. Call Ensure before use to
// verify connectivity and create the collection if missing.
func NewQdrantIndex(config QdrantConfig) (*QdrantIndex, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if config.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if config.Dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive: %d", config.Dim)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &QdrantIndex{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// doRequest issues one REST call and classifies transport and auth
// failures into the shared sentinel errors. A 404 maps to ErrNotFound;
// other non-2xx statuses are returned as plain errors for the caller to
// absorb or raise per operation.
func (x *QdrantIndex) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.config.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.config.APIKey != "" {
		req.Header.Set("api-key", x.config.APIKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(respBody))
	}
}

// Ensure verifies the collection exists, creating it with cosine
// distance when missing. Connectivity and auth failures propagate.
func (x *QdrantIndex) Ensure(ctx context.Context) error {
	_, err := x.doRequest(ctx, http.MethodGet, "/collections/"+x.config.Collection, nil)
	if err == nil {
		logger.Info("qdrant collection exists", zap.String("collection", x.config.Collection))
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	createReq := map[string]any{
		"vectors": map[string]any{
			"size":     x.config.Dim,
			"distance": "Cosine",
		},
	}
	if _, err := x.doRequest(ctx, http.MethodPut, "/collections/"+x.config.Collection, createReq); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	logger.Info("qdrant collection created",
		zap.String("collection", x.config.Collection), zap.Int("dim", x.config.Dim))
	return nil
}

// Upsert writes one point. Dimension enforcement stays on this side of
// the wire so a misconfigured collection surfaces as a typed error, not
// a server anomaly.
func (x *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload Payload) error {
	id, err := SanitizeID(id)
	if err != nil {
		return err
	}
	if err := ValidateVector(vector, x.config.Dim, id); err != nil {
		return err
	}
	if err := ValidatePayload(payload); err != nil {
		return err
	}

	upsertReq := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": vector, "payload": payload},
		},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", x.config.Collection)
	if _, err := x.doRequest(ctx, http.MethodPut, path, upsertReq); err != nil {
		logger.Error("qdrant upsert failed", zap.String("id", id), zap.Error(err))
		return err
	}
	logger.Debug("vector upserted", zap.String("id", id), zap.Any("kind", payload["kind"]))
	return nil
}

// Delete removes one point. Remote failures are absorbed: they are
// logged and reported as not-deleted rather than raised.
func (x *QdrantIndex) Delete(ctx context.Context, id string) (bool, error) {
	id, err := SanitizeID(id)
	if err != nil {
		return false, err
	}

	deleteReq := map[string]any{"points": []string{id}}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", x.config.Collection)
	if _, err := x.doRequest(ctx, http.MethodPost, path, deleteReq); err != nil {
		logger.Error("qdrant delete failed", zap.String("id", id), zap.Error(err))
		return false, nil
	}
	logger.Debug("vector deleted", zap.String("id", id))
	return true, nil
}

// buildFilter translates the scope filter into Qdrant's must-clause
// form. All present conditions are ANDed.
func buildFilter(flt *Filter) map[string]any {
	if flt == nil {
		return nil
	}
	var must []map[string]any
	if flt.Kind != "" {
		must = append(must, map[string]any{
			"key":   "kind",
			"match": map[string]any{"value": flt.Kind},
		})
	}
	if flt.SessionID != "" {
		must = append(must, map[string]any{
			"key":   "session_id",
			"match": map[string]any{"value": flt.SessionID},
		})
	}
	if flt.DayGTE != "" {
		must = append(must, map[string]any{
			"key":   "day",
			"range": map[string]any{"gte": flt.DayGTE},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// Search queries the collection with the filter applied server-side.
// Connectivity and auth failures propagate; any other server anomaly is
// logged and degrades to an empty result.
func (x *QdrantIndex) Search(ctx context.Context, vector []float32, k int, flt *Filter) ([]Hit, error) {
	if err := ValidateSearchParams(vector, k, x.config.Dim); err != nil {
		return nil, err
	}

	searchReq := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if qf := buildFilter(flt); qf != nil {
		searchReq["filter"] = qf
	}

	path := fmt.Sprintf("/collections/%s/points/search", x.config.Collection)
	respBody, err := x.doRequest(ctx, http.MethodPost, path, searchReq)
	if err != nil {
		if isUnavailable(err) || isUnauthorized(err) {
			return nil, err
		}
		logger.Error("qdrant search failed", zap.Error(err))
		return nil, nil
	}

	var hits []Hit
	for _, result := range gjson.GetBytes(respBody, "result").Array() {
		id := result.Get("id").String()
		if id == "" {
			logger.Warn("search result missing id, skipped")
			continue
		}
		payload := make(Payload)
		for key, value := range result.Get("payload").Map() {
			payload[key] = value.Value()
		}
		hits = append(hits, Hit{
			ID:      id,
			Score:   result.Get("score").Float(),
			Payload: payload,
		})
	}
	logger.Debug("vector search completed", zap.Int("hits", len(hits)))
	return hits, nil
}

// Status reports backend statistics. The point count comes from the
// collection info endpoint; a failed lookup reports the error in place
// of the count.
func (x *QdrantIndex) Status(ctx context.Context) map[string]any {
	status := map[string]any{
		"backend":    "qdrant",
		"url":        x.config.URL,
		"collection": x.config.Collection,
		"dim":        x.config.Dim,
	}

	respBody, err := x.doRequest(ctx, http.MethodGet, "/collections/"+x.config.Collection, nil)
	if err != nil {
		status["error"] = err.Error()
		return status
	}
	status["count"] = gjson.GetBytes(respBody, "result.points_count").Int()
	status["status"] = gjson.GetBytes(respBody, "result.status").String()
	return status
}

// Close releases the HTTP client's idle connections.
func (x *QdrantIndex) Close() error {
	x.httpClient.CloseIdleConnections()
	return nil
}

var _ Index = (*QdrantIndex)(nil)
