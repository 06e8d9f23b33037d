package embed

import (
	"context"
	"log/slog"
)

// Config selects and configures the embedding backend.
type Config struct {
	// Host is the remote embedding server URL; empty selects the static
	// backend.
	Host string
	// Model is the remote model name.
	Model string
	// Dimensions is the vector dimension (default 384).
	Dimensions int
	// BatchSize caps texts per model request (default 64).
	BatchSize int
	// CacheSize is the number of embeddings kept in the in-process cache.
	CacheSize int
}

// New builds the configured embedder wrapped in the LRU cache. A remote
// backend that cannot be reached is a fatal startup error per the
// service contract.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, error) {
	var inner Embedder

	if cfg.Host != "" {
		remote, err := NewRemoteEmbedder(ctx, RemoteConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = remote
		logger.Info("remote embedder ready",
			slog.String("model", remote.ModelName()),
			slog.Int("dimensions", remote.Dimensions()))
	} else {
		inner = NewStaticEmbedder(cfg.Dimensions)
		logger.Info("static embedder ready",
			slog.Int("dimensions", inner.Dimensions()))
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
