package embed

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
)

// RemoteConfig configures the remote transformer embedder.
type RemoteConfig struct {
	// Host is the base URL of the embedding server (e.g. http://localhost:11434).
	Host string
	// Model is the sentence-transformer model name.
	Model string
	// Dimensions is the expected vector dimension; 0 auto-detects.
	Dimensions int
	// BatchSize caps how many texts go to the model per request.
	BatchSize int
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int
	// SkipHealthCheck disables the startup probe (tests only).
	SkipHealthCheck bool
}

// RemoteEmbedder generates embeddings via an HTTP embedding server.
// Access to the model is serialized: one batch is in flight at a time,
// concurrent callers queue on the mutex.
type RemoteEmbedder struct {
	client *http.Client
	config RemoteConfig

	// modelMu serializes inference requests against the model.
	modelMu sync.Mutex

	mu     sync.RWMutex
	closed bool
	dims   int
}

// Verify interface implementation at compile time.
var _ Embedder = (*RemoteEmbedder)(nil)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewRemoteEmbedder creates a remote embedder and verifies the model is
// reachable. An unreachable model is a startup failure: the caller must
// treat it as fatal.
func NewRemoteEmbedder(ctx context.Context, cfg RemoteConfig) (*RemoteEmbedder, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("remote embedder requires a host")
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	e := &RemoteEmbedder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		vecs, err := e.doEmbed(probeCtx, []string{"startup probe"})
		if err != nil {
			return nil, fmt.Errorf("embedding model unavailable: %w", err)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return nil, fmt.Errorf("embedding model returned an empty vector")
		}
		if e.dims == 0 {
			e.dims = len(vecs[0])
		} else if e.dims != len(vecs[0]) {
			return nil, fmt.Errorf("embedding model produces %d dimensions, configured %d", len(vecs[0]), e.dims)
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// Embed generates an embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting the input
// into model-sized batches. All returned vectors are L2-normalized.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))

		batch, err := e.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	return results, nil
}

// embedBatchWithRetry serializes model access and retries transient
// failures with exponential backoff.
func (e *RemoteEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()

	var vecs [][]float32
	err := WithRetry(ctx, RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()

		var err error
		vecs, err = e.doEmbed(reqCtx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d texts", len(vecs), len(texts))
	}

	for i, v := range vecs {
		if len(v) != e.dims {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), e.dims)
		}
		vecs[i] = normalizeVector(v)
	}

	return vecs, nil
}

// doEmbed performs one HTTP embedding request.
func (e *RemoteEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// Blank inputs still occupy a slot so positions stay aligned.
	input := make([]string, len(texts))
	for i, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			input[i] = s
		} else {
			input[i] = " "
		}
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding server status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *RemoteEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the embedding server.
func (e *RemoteEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := e.doEmbed(probeCtx, []string{"ping"})
	return err == nil
}

// Close releases resources.
func (e *RemoteEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
