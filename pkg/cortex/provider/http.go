package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures the generic OpenAI-compatible REST client. Any
// endpoint speaking the same "messages in, choices out" / "input in,
// embedding out" shape works — Azure OpenAI, a local Ollama instance
// behind a compatible shim, or a self-hosted vLLM server.
type HTTPConfig struct {
	Endpoint   string // full URL to the chat/embeddings endpoint
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

func (c HTTPConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// HTTPEmbeddingProvider calls a generic embeddings endpoint over
// net/http. One attempt per call; no retries.
type HTTPEmbeddingProvider struct {
	cfg HTTPConfig
	dim int
}

// NewHTTPEmbeddingProvider constructs a provider for cfg. dim is the
// embedding dimension the caller expects back, used only to size the
// vector store schema — the provider itself doesn't validate it.
func NewHTTPEmbeddingProvider(cfg HTTPConfig, dim int) *HTTPEmbeddingProvider {
	return &HTTPEmbeddingProvider{cfg: cfg, dim: dim}
}

func (p *HTTPEmbeddingProvider) Dimensions() int { return p.dim }

type embedRequestBody struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponseBody struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed makes exactly one HTTP request and honors ctx's deadline.
func (p *HTTPEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequestBody{Model: p.cfg.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("provider: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.cfg.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ProviderError{Bucket: BucketTimeout, Message: "context deadline exceeded"}
		}
		return nil, &ProviderError{Bucket: BucketUnknown, Message: "request failed"}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, 1<<20)
	bucket := statusBucket(resp.StatusCode)
	if bucket != BucketSuccess {
		io.Copy(io.Discard, limited)
		return nil, &ProviderError{Bucket: bucket, Message: fmt.Sprintf("embed endpoint returned status %d", resp.StatusCode)}
	}

	var parsed embedResponseBody
	if err := json.NewDecoder(limited).Decode(&parsed); err != nil {
		return nil, &ProviderError{Bucket: BucketUnknown, Message: "malformed embed response"}
	}
	if len(parsed.Data) == 0 {
		return nil, &ProviderError{Bucket: BucketUnknown, Message: "empty embed response"}
	}
	return parsed.Data[0].Embedding, nil
}

// HTTPChatProvider calls a generic chat-completions endpoint over
// net/http. One attempt per call; no retries.
type HTTPChatProvider struct {
	cfg HTTPConfig
}

// NewHTTPChatProvider constructs a provider for cfg.
func NewHTTPChatProvider(cfg HTTPConfig) *HTTPChatProvider {
	return &HTTPChatProvider{cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponseBody struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete makes exactly one HTTP request and honors ctx's deadline.
func (p *HTTPChatProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequestBody{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("provider: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("provider: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.cfg.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &ProviderError{Bucket: BucketTimeout, Message: "context deadline exceeded"}
		}
		return "", &ProviderError{Bucket: BucketUnknown, Message: "request failed"}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, 1<<20)
	bucket := statusBucket(resp.StatusCode)
	if bucket != BucketSuccess {
		io.Copy(io.Discard, limited)
		return "", &ProviderError{Bucket: bucket, Message: fmt.Sprintf("chat endpoint returned status %d", resp.StatusCode)}
	}

	var parsed chatResponseBody
	if err := json.NewDecoder(limited).Decode(&parsed); err != nil {
		return "", &ProviderError{Bucket: BucketUnknown, Message: "malformed chat response"}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Bucket: BucketUnknown, Message: "empty chat response"}
	}
	return parsed.Choices[0].Message.Content, nil
}
