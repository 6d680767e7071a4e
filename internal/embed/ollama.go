package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
)

// ollamaEmbedder calls a local Ollama server. Ollama's embeddings endpoint
// takes one prompt per request, so batches are issued sequentially.
type ollamaEmbedder struct {
	log     *logger.Logger
	baseURL string
	model   string
	dim     int
	http    *http.Client
}

func newOllama(log *logger.Logger, cfg config.EmbeddingConfig, dim int) (Embedder, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embed: ollama provider requires a model name")
	}
	return &ollamaEmbedder{
		log:     log.With("client", "OllamaEmbedder"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		dim:     dim,
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

func (e *ollamaEmbedder) Dimension() int { return e.dim }

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		s := strings.TrimSpace(text)
		if s == "" {
			s = " "
		}
		vec, err := e.embedOne(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("embed: input %d of %d: %w", i, len(texts), err)
		}
		if len(vec) != e.dim {
			return nil, fmt.Errorf("embed: model returned dimension %d, expected %d", len(vec), e.dim)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *ollamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ollamaEmbeddingRequest{Model: e.model, Prompt: text}); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status=%d body=%q", resp.StatusCode, truncate(raw, 512))
	}

	var parsed ollamaEmbeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	vec := make([]float32, len(parsed.Embedding))
	for i, f := range parsed.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
