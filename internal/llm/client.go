package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"nemochat/internal/config"
	"nemochat/internal/models"
)

var (
	// ErrNotInitialized is returned when Generate is called before Initialize.
	// It signals a programming error, not a network failure.
	ErrNotInitialized = errors.New("llm: client not initialized")
	// ErrClosed is returned once Close has released the connection.
	ErrClosed = errors.New("llm: client closed")
)

type clientState int

const (
	stateUninitialized clientState = iota
	stateReady
	stateClosed
)

// Client talks to an OpenAI-compatible chat completion endpoint. The underlying
// HTTP client is created by Initialize; Initialize and Close are idempotent and
// safe under concurrent first calls.
type Client struct {
	baseURL string
	apiKey  string
	apiID   string
	model   string
	params  config.ModelParams

	mu         sync.Mutex
	state      clientState
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Nvidia.BaseURL, "/"),
		apiKey:  cfg.Nvidia.APIKey,
		apiID:   cfg.Nvidia.APIID,
		model:   cfg.Nvidia.Model,
		params:  cfg.ModelParams,
	}
}

// Initialize creates the shared HTTP client. Calling it on a ready client is a
// no-op; exactly one client is created even under concurrent first calls.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateReady:
		return nil
	case stateClosed:
		return ErrClosed
	}
	c.httpClient = &http.Client{
		Timeout: time.Duration(c.params.RequestTimeoutSecs) * time.Second,
	}
	c.state = stateReady
	log.Printf("llm: client initialized (model %s)", c.model)
	return nil
}

// Close releases the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return nil
	}
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	c.state = stateClosed
	return nil
}

// session returns the shared HTTP client, or the distinct not-initialized /
// closed error without touching the network.
func (c *Client) session() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateUninitialized:
		return nil, ErrNotInitialized
	case stateClosed:
		return nil, ErrClosed
	}
	return c.httpClient, nil
}

// Generate produces one completion for the assembled prompt using the
// configured conversational parameters.
func (c *Client) Generate(ctx context.Context, messages []models.PromptMessage) (string, error) {
	return c.complete(ctx, messages, c.params.Temperature, c.params.MaxTokens, c.params.Stream)
}

// GenerateWith produces one completion with caller-supplied sampling
// parameters. Used by the summarizer, which runs cooler and shorter than the
// main conversation.
func (c *Client) GenerateWith(ctx context.Context, messages []models.PromptMessage, temperature float64, maxTokens int) (string, error) {
	return c.complete(ctx, messages, temperature, maxTokens, false)
}

type chatRequest struct {
	Model       string                 `json:"model"`
	Messages    []models.PromptMessage `json:"messages"`
	Temperature float64                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
	Stream      bool                   `json:"stream"`
}

func (c *Client) complete(ctx context.Context, messages []models.PromptMessage, temperature float64, maxTokens int, stream bool) (string, error) {
	client, err := c.session()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	c.setHeaders(req)

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		log.Printf("llm: chat completion status %d: %s", res.StatusCode, body)
		return "", fmt.Errorf("chat completion status %d: %s", res.StatusCode, body)
	}

	if stream {
		return consumeStream(res.Body)
	}
	return decodeCompletion(res.Body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.apiID != "" {
		req.Header.Set("NVIDIA-API-ID", c.apiID)
	}
}

type streamFragment struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// consumeStream concatenates the incremental content of each well-formed
// fragment in arrival order. Malformed fragments are skipped, never fatal.
func consumeStream(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var fragment streamFragment
		if err := json.Unmarshal([]byte(line), &fragment); err != nil {
			continue
		}
		if len(fragment.Choices) == 0 {
			continue
		}
		out.WriteString(fragment.Choices[0].Delta.Content)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read chat stream: %w", err)
	}
	return out.String(), nil
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func decodeCompletion(body io.Reader) (string, error) {
	var resp completionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
