// Package embeddings turns analysis text into vectors for semantic search.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultModel produces 384-dimensional embeddings.
const DefaultModel = "all-minilm"

const requestTimeout = 30 * time.Second

type embedAPI interface {
	Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error)
}

// OllamaEmbedder generates embeddings with a local Ollama server.
type OllamaEmbedder struct {
	client embedAPI
	model  string
}

// NewOllamaEmbedder creates an embedder. An empty host uses OLLAMA_HOST or
// the Ollama default; an empty model uses DefaultModel.
func NewOllamaEmbedder(host, model string) (*OllamaEmbedder, error) {
	if model == "" {
		model = DefaultModel
	}

	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
		}
		client = api.NewClient(u, &http.Client{Timeout: requestTimeout})
	}

	return &OllamaEmbedder{client: client, model: model}, nil
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for several texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, len(texts))
}

func (e *OllamaEmbedder) embed(ctx context.Context, input any, want int) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("ollama embed: got %d embeddings, want %d", len(resp.Embeddings), want)
	}
	for _, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, errors.New("ollama embed: empty embedding")
		}
	}
	return resp.Embeddings, nil
}
