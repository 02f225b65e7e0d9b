package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallnest/murmur/config"
	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// openAIRequest is the request body for the embeddings endpoint.
type openAIRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

// openAIResponse is the response from the embeddings endpoint.
type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// openAIError represents an error payload from the API.
type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	baseURL    string
	model      string
	apiKey     string
	dim        int
	maxRetries int
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible API.
func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive: %d", cfg.Dim)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIProvider{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		dim:        cfg.Dim,
		maxRetries: defaultMaxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates a single embedding, degrading to a zero vector on
// blank input or upstream failure.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) []float32 {
	return p.EmbedBatch(ctx, []string{text})[0]
}

// EmbedBatch embeds all non-blank texts in one API call. Blank inputs
// hold their positions with zero vectors without being sent upstream;
// a failed call degrades every remaining position the same way.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	result := make([][]float32, len(texts))
	for i := range result {
		result[i] = Zero(p.dim)
	}

	var inputs []string
	var positions []int
	for i, text := range texts {
		if isBlank(text) {
			continue
		}
		inputs = append(inputs, text)
		positions = append(positions, i)
	}
	if len(inputs) == 0 {
		return result
	}

	embeddings, err := p.call(ctx, inputs)
	if err != nil {
		logger.Error("embedding request failed, degrading to zero vectors",
			zap.Int("texts", len(inputs)), zap.Error(err))
		return result
	}

	for j, emb := range embeddings {
		if emb == nil {
			logger.Warn("missing embedding in response, position degraded",
				zap.Int("index", j))
			continue
		}
		if len(emb) != p.dim {
			logger.Warn("embedding dimension mismatch, position degraded",
				zap.Int("expected", p.dim), zap.Int("actual", len(emb)))
			continue
		}
		result[positions[j]] = emb
	}
	return result
}

// call issues the API request with retries on rate limits and server
// errors.
func (p *OpenAIProvider) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqJSON, err := json.Marshal(openAIRequest{
		Input:          inputs,
		Model:          p.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embeddings", bytes.NewReader(reqJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var errResp openAIError
			if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
				lastErr = fmt.Errorf("API error: %s", errResp.Error.Message)
			} else {
				lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}

		var respBody openAIResponse
		if err := json.Unmarshal(body, &respBody); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		embeddings := make([][]float32, len(inputs))
		for _, item := range respBody.Data {
			if item.Index >= 0 && item.Index < len(embeddings) {
				embeddings[item.Index] = item.Embedding
			}
		}
		return embeddings, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Dimension returns the configured vector dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dim
}

// Close releases idle connections.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var _ Provider = (*OpenAIProvider)(nil)
