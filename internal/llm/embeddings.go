package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"nemochat/internal/config"
)

// EmbeddingClient turns texts into vectors via the embeddings endpoint. The
// shared HTTP client is created lazily on first use under a lock and reused
// until Close; concurrent first use never creates two clients.
type EmbeddingClient struct {
	baseURL string
	apiKey  string
	apiID   string
	model   string
	timeout time.Duration

	mu     sync.Mutex
	client *http.Client
	closed bool
}

func NewEmbeddingClient(cfg *config.Config) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL: strings.TrimRight(cfg.Nvidia.BaseURL, "/"),
		apiKey:  cfg.Nvidia.APIKey,
		apiID:   cfg.Nvidia.APIID,
		model:   cfg.Nvidia.Model,
		timeout: time.Duration(cfg.ModelParams.RequestTimeoutSecs) * time.Second,
	}
}

func (e *EmbeddingClient) session() (*http.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: e.timeout}
	}
	return e.client, nil
}

// Close releases the shared client. Safe to call multiple times.
func (e *EmbeddingClient) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.CloseIdleConnections()
		e.client = nil
	}
	e.closed = true
	return nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, issuing one request per text.
// Errors propagate; there is no retry or fallback at this layer.
func (e *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.session()
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := e.embedOne(ctx, client, text)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vector)
	}
	return embeddings, nil
}

func (e *EmbeddingClient) embedOne(ctx context.Context, client *http.Client, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	if e.apiID != "" {
		req.Header.Set("NVIDIA-API-ID", e.apiID)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embedding request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("embedding status %d: %s", res.StatusCode, body)
	}

	var resp embeddingResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
