package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speakerid-team/speaker-id/pkg/config"
)

// Dimension is the fixed embedding length the index is provisioned with.
const Dimension = 192

// Vector is one stored entry of the index.
type Vector struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Match is one query result.
type Match struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// QueryRequest is payload for /query
type QueryRequest struct {
	Vector          []float32              `json:"vector"`
	TopK            int                    `json:"topK"`
	IncludeMetadata bool                   `json:"includeMetadata"`
	Filter          map[string]interface{} `json:"filter,omitempty"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

type fetchResponse struct {
	Vectors map[string]Vector `json:"vectors"`
}

// PineconeClient is a minimal data-plane client for a Pinecone-compatible
// vector index.
type PineconeClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPineconeClient creates a client against the configured index host.
func NewPineconeClient(cfg *config.PineconeConfig) *PineconeClient {
	baseURL := strings.TrimRight(cfg.IndexHost, "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	return &PineconeClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Upsert writes one vector with metadata under the given id.
func (c *PineconeClient) Upsert(ctx context.Context, id string, values []float32, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"vectors": []Vector{{ID: id, Values: values, Metadata: metadata}},
	}
	return c.post(ctx, "/vectors/upsert", body, nil)
}

// Delete removes vectors by id. A not-found response is tolerated: deleting
// an absent id is not an error.
func (c *PineconeClient) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := c.post(ctx, "/vectors/delete", map[string]interface{}{"ids": ids}, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// Query runs a similarity/metadata query.
func (c *PineconeClient) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	var resp queryResponse
	if err := c.post(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// Fetch retrieves vectors by id. Absent ids are simply missing from the map.
func (c *PineconeClient) Fetch(ctx context.Context, ids []string) (map[string]Vector, error) {
	if len(ids) == 0 {
		return map[string]Vector{}, nil
	}

	q := url.Values{}
	for _, id := range ids {
		q.Add("ids", id)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.apiKey)

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, statusError(httpResp)
	}

	var resp fetchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Vectors == nil {
		resp.Vectors = map[string]Vector{}
	}
	return resp.Vectors, nil
}

func (c *PineconeClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("vector index returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "status 404")
}

// ZeroVector returns an all-zero vector of the index dimension, used for
// metadata-only queries.
func ZeroVector() []float32 {
	return make([]float32, Dimension)
}
