package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	embedMaxAttempts = 3
	embedRetryBase   = 500 * time.Millisecond
)

// Embedder converts text into fixed-length numeric vectors.
type Embedder interface {
	// EmbedMany is order-preserving: vectors[i] corresponds to texts[i],
	// across internal chunk boundaries.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// EmbedConfig configures a BatchEmbedder.
type EmbedConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
	// RetryBase overrides the first retry delay; zero means the default.
	RetryBase time.Duration
}

// BatchEmbedder calls the external embedding API in fixed-size chunks,
// retrying each chunk with exponential backoff. SDK-level retries are
// disabled so this layer owns the whole retry budget.
type BatchEmbedder struct {
	client    openai.Client
	apiKey    string
	model     string
	batchSize int
	retryBase time.Duration
	log       *zap.SugaredLogger
}

var _ Embedder = (*BatchEmbedder)(nil)

// NewBatchEmbedder constructs a BatchEmbedder.
func NewBatchEmbedder(cfg EmbedConfig) *BatchEmbedder {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 16
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = embedRetryBase
	}
	return &BatchEmbedder{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		retryBase: cfg.RetryBase,
		log:       zap.S().Named("embed"),
	}
}

// EmbedMany splits texts into chunks of the configured batch size and embeds
// each chunk, failing the whole call when any chunk exhausts its retries.
func (e *BatchEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("EMBEDDING_API_KEY is not configured; cannot call embedding API")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunk at offset %d: %w", start, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedOne is the single-item convenience wrapper.
func (e *BatchEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *BatchEmbedder) embedChunk(ctx context.Context, chunk []string) ([][]float32, error) {
	var lastErr error
	delay := e.retryBase

	for attempt := 1; attempt <= embedMaxAttempts; attempt++ {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: chunk},
		})
		if err == nil {
			return chunkVectors(resp, len(chunk))
		}
		lastErr = err
		e.log.Warnw("embedding call failed", "attempt", attempt, "size", len(chunk), "error", err)

		if attempt == embedMaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	return nil, fmt.Errorf("embedding API after %d attempts: %w", embedMaxAttempts, lastErr)
}

// chunkVectors places each returned vector by its index so ordering holds
// even if the API ever answers out of order.
func chunkVectors(resp *openai.CreateEmbeddingResponse, want int) ([][]float32, error) {
	if len(resp.Data) != want {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(resp.Data), want)
	}
	vecs := make([][]float32, want)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[d.Index] = vec
	}
	return vecs, nil
}
