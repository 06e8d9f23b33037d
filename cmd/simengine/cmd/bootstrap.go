package cmd

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/xplagiax/simengine/internal/config"
	"github.com/xplagiax/simengine/internal/dedup"
	"github.com/xplagiax/simengine/internal/embed"
	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/federate"
	"github.com/xplagiax/simengine/internal/index"
	"github.com/xplagiax/simengine/internal/logging"
	"github.com/xplagiax/simengine/internal/ratelimit"
	"github.com/xplagiax/simengine/internal/rcache"
	"github.com/xplagiax/simengine/internal/similarity"
	"github.com/xplagiax/simengine/internal/sources"
	"github.com/xplagiax/simengine/internal/telemetry"
	"github.com/xplagiax/simengine/pkg/types"
)

// engine bundles everything a command needs after bootstrap.
type engine struct {
	cfg     config.Config
	svc     *similarity.Service
	logger  *slog.Logger
	cleanup func()
}

// bootstrap loads the configuration, sets up logging, and constructs
// the core context. An unreachable embedding backend fails startup.
func bootstrap(ctx context.Context) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	logCfg.FilePath = cfg.LogFile
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	embedder, err := embed.New(ctx, embed.Config{
		Host:       cfg.Embedding.Host,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		CacheSize:  cfg.Embedding.CacheSize,
	}, logger)
	if err != nil {
		logCleanup()
		return nil, err
	}

	deduper, err := dedup.Open(ctx, dedup.Config{
		LedgerPath:        cfg.LedgerPath(),
		ExpectedPapers:    cfg.Dedup.ExpectedPapers,
		FalsePositiveRate: cfg.Dedup.FalsePositiveRate,
	}, logger)
	if err != nil {
		logCleanup()
		return nil, err
	}

	ix := index.New(index.Config{
		Dimension: embedder.Dimensions(),
		DataDir:   cfg.DataDir,
	}, deduper, logger)
	if err := ix.Load(); err != nil {
		logger.Warn("index load failed, starting empty", slog.String("error", err.Error()))
	}

	limiter := ratelimit.New(rateLimits(cfg))
	breakers := engerr.NewBreakerSet(
		engerr.WithMaxFailures(cfg.Circuit.FailureThreshold),
		engerr.WithResetTimeout(time.Duration(cfg.Circuit.CooldownSeconds)*time.Second),
	)

	driver := sources.NewDriver(limiter, breakers, cfg.SourceTimeout(), logger)
	adapters := sources.All(sources.Config{
		ContactEmail:        cfg.Sources.ContactEmail,
		UserAgent:           cfg.Sources.UserAgent,
		SemanticScholarKey:  cfg.Sources.SemanticScholarKey,
		COREKey:             cfg.Sources.COREKey,
		MaxResultsPerSource: cfg.Sources.MaxResultsPerSource,
	})
	federator := federate.New(driver, adapters, cfg.FederationDeadline(), cfg.Sources.MaxResultsPerSource, logger)

	core := &similarity.CoreContext{
		Embedder:  embedder,
		Index:     ix,
		Dedup:     deduper,
		Federator: federator,
		Cache:     rcache.NewMemory(cfg.Similarity.ResultCacheSize),
		Limiter:   limiter,
		Metrics:   telemetry.NewRegistry(),
		Logger:    logger,
		Options: similarity.Options{
			DefaultThreshold: cfg.Similarity.DefaultThreshold,
			SaveDebounce:     time.Duration(cfg.Similarity.SaveDebounceSeconds) * time.Second,
			Deadline:         time.Duration(cfg.Similarity.DeadlineSeconds) * time.Second,
			CacheTTL:         time.Duration(cfg.Similarity.CacheTTLSeconds) * time.Second,
		},
	}

	svc := similarity.NewService(core)

	return &engine{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		cleanup: func() {
			svc.Flush()
			_ = embedder.Close()
			_ = deduper.Close()
			logCleanup()
		},
	}, nil
}

func rateLimits(cfg config.Config) map[string]ratelimit.Limit {
	if len(cfg.RateLimits) == 0 {
		return nil // package defaults
	}
	limits := ratelimit.DefaultLimits()
	for source, lim := range cfg.RateLimits {
		limits[source] = lim
	}
	return limits
}

// fragmentsFromArgs builds one fragment per positional argument.
func fragmentsFromArgs(args []string) []types.Fragment {
	out := make([]types.Fragment, len(args))
	for i, text := range args {
		out[i] = types.Fragment{
			Page:      "cli",
			Paragraph: strconv.Itoa(i),
			Text:      text,
		}
	}
	return out
}
