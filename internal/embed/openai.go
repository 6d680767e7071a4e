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

// openAIEmbedder calls any OpenAI-compatible /v1/embeddings endpoint
// (OpenAI itself, vLLM, text-embeddings-inference, ...).
type openAIEmbedder struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	model   string
	dim     int
	http    *http.Client
}

func newOpenAI(log *logger.Logger, cfg config.EmbeddingConfig, dim int) (Embedder, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embed: openai provider requires a model name")
	}
	return &openAIEmbedder{
		log:     log.With("client", "OpenAIEmbedder"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     dim,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func (e *openAIEmbedder) Dimension() int { return e.dim }

type openAIEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(texts))
	for i := range texts {
		s := strings.TrimSpace(texts[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	reqBody := openAIEmbeddingsRequest{Model: e.model, Input: clean}
	var resp openAIEmbeddingsResponse
	if err := e.post(ctx, "/v1/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}

	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("embed: response missing embedding for input %d of %d", i, len(clean))
		}
		if len(vec) != e.dim {
			return nil, fmt.Errorf("embed: model returned dimension %d, expected %d", len(vec), e.dim)
		}
	}
	return out, nil
}

func (e *openAIEmbedder) post(ctx context.Context, path string, in, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return fmt.Errorf("embed: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("embed: http status=%d body=%q", resp.StatusCode, truncate(raw, 512))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("embed: decode response: %w", err)
	}
	return nil
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
