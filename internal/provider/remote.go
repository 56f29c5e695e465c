package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"codesearch/internal/model"
)

const (
	defaultTimeout  = 30 * time.Second
	ollamaEmbedPath = "/api/embeddings"
	openAIEmbedPath = "/v1/embeddings"
)

// remoteEmbedder talks to an Ollama or LM Studio style HTTP embedding
// endpoint. The two differ only in request/response shape and path, so
// one struct serves both, selected by Config.Kind.
type remoteEmbedder struct {
	kind       Kind
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

func newRemoteEmbedder(cfg *Config) *remoteEmbedder {
	return &remoteEmbedder{
		kind:       cfg.Kind,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *remoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	switch e.kind {
	case KindOllama:
		out := make([][]float32, len(texts))
		for i, text := range texts {
			vec, err := e.embedOneOllama(ctx, text)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	default:
		return e.embedBatchOpenAI(ctx, texts)
	}
}

func (e *remoteEmbedder) embedOneOllama(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+ollamaEmbedPath, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "decode ollama response", err)
	}
	return decoded.Embedding, nil
}

func (e *remoteEmbedder) embedBatchOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+openAIEmbedPath, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, model.NewError(model.ErrProviderInvalid, "decode embedding response", err)
	}
	if decoded.Error != nil {
		return nil, model.NewError(model.ErrProviderInvalid, decoded.Error.Message, nil)
	}
	if len(decoded.Data) != len(texts) {
		return nil, model.NewError(model.ErrProviderInvalid,
			fmt.Sprintf("got %d embeddings for %d inputs", len(decoded.Data), len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, model.NewError(model.ErrProviderInvalid, "embedding index out of range", nil)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

// classifyStatus maps HTTP response codes to the retriable/fatal error
// kinds the batch pipeline branches on.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return model.NewError(model.ErrProviderRateLimited, fmt.Sprintf("status %d", code), nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.NewError(model.ErrProviderAuth, fmt.Sprintf("status %d", code), nil)
	case code >= 500:
		return model.NewError(model.ErrProviderTransient, fmt.Sprintf("status %d", code), nil)
	default:
		return model.NewError(model.ErrProviderInvalid, fmt.Sprintf("status %d", code), nil)
	}
}

// classifyHTTPError treats transport-level failures (timeouts, refused
// connections) as transient so the caller retries with backoff.
func classifyHTTPError(err error) error {
	return model.NewError(model.ErrProviderTransient, "request failed", err)
}

func (e *remoteEmbedder) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (e *remoteEmbedder) ProviderID() string {
	return string(e.kind) + ":" + e.model
}

func (e *remoteEmbedder) Dimensions() int {
	return e.dimensions
}

var _ Embedder = (*remoteEmbedder)(nil)
