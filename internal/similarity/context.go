// Package similarity ties the engine together: the batch orchestrator
// that runs normalize → cache → index → federate → embed → rank →
// write-back, and the search/admin operations the transport layer
// exposes.
package similarity

import (
	"context"
	"log/slog"
	"time"

	"github.com/xplagiax/simengine/internal/dedup"
	"github.com/xplagiax/simengine/internal/embed"
	"github.com/xplagiax/simengine/internal/index"
	"github.com/xplagiax/simengine/internal/ratelimit"
	"github.com/xplagiax/simengine/internal/rcache"
	"github.com/xplagiax/simengine/internal/telemetry"
	"github.com/xplagiax/simengine/pkg/types"
)

// Orchestrator tuning defaults.
const (
	// DefaultThreshold is the similarity floor when the request omits one.
	DefaultThreshold = 0.70
	// ReportingFloor is the absolute minimum score ever returned.
	ReportingFloor = 0.50
	// DefaultSearchK is how many index candidates each query probes.
	DefaultSearchK = 20
	// DefaultSufficient is how many index hits make federation unnecessary.
	DefaultSufficient = 5
	// DefaultResultK caps results per query.
	DefaultResultK = 10
	// DefaultSaveDebounce coalesces index save requests.
	DefaultSaveDebounce = 5 * time.Second
	// DefaultDeadline bounds one whole run_batch call.
	DefaultDeadline = 30 * time.Second
	// minAbstractChars is the floor under which a fetched paper's
	// normalized abstract is unusable.
	minAbstractChars = 20
	// foundTextCap truncates the echoed abstract in match payloads.
	foundTextCap = 300
)

// Federator is the slice of the source federation layer the
// orchestrator consumes; mocked in tests.
type Federator interface {
	Search(ctx context.Context, query, theme, language string, allowed []string) ([]types.Paper, []types.AdapterResult)
	Sources() []string
}

// Options tunes the orchestrator.
type Options struct {
	DefaultThreshold float64
	SearchK          int
	Sufficient       int
	ResultK          int
	SaveDebounce     time.Duration
	Deadline         time.Duration
	CacheTTL         time.Duration
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.DefaultThreshold <= 0 {
		o.DefaultThreshold = DefaultThreshold
	}
	if o.SearchK <= 0 {
		o.SearchK = DefaultSearchK
	}
	if o.Sufficient <= 0 {
		o.Sufficient = DefaultSufficient
	}
	if o.ResultK <= 0 {
		o.ResultK = DefaultResultK
	}
	if o.SaveDebounce <= 0 {
		o.SaveDebounce = DefaultSaveDebounce
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = rcache.DefaultTTL
	}
	return o
}

// CoreContext bundles every shared component, constructed once at
// startup and threaded explicitly through orchestrator calls.
type CoreContext struct {
	Embedder  embed.Embedder
	Index     *index.Index
	Dedup     *dedup.Deduplicator
	Federator Federator
	Cache     rcache.Backend
	Limiter   ratelimit.Backend
	Metrics   *telemetry.Registry
	Logger    *slog.Logger
	Options   Options
}
