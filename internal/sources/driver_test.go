package sources

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/ratelimit"
)

const arxivFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Deep Learning</title>
    <summary>This paper surveys deep learning models for images.</summary>
    <published>2024-01-01T00:00:00Z</published>
    <author><name>Ada Lovelace</name></author>
  </entry>
</feed>`

func testDriver(limits map[string]ratelimit.Limit) *Driver {
	return NewDriver(
		ratelimit.New(limits),
		engerr.NewBreakerSet(engerr.WithResetTimeout(time.Minute)),
		2*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func swapEndpoint(t *testing.T, endpoint *string, url string) {
	t.Helper()
	old := *endpoint
	*endpoint = url
	t.Cleanup(func() { *endpoint = old })
}

func TestDriver_SuccessEnvelope(t *testing.T) {
	// Given: an arXiv stub returning one entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(arxivFeedFixture))
	}))
	defer srv.Close()
	swapEndpoint(t, &arxivBase, srv.URL)

	d := testDriver(nil)
	adapter := &Arxiv{cfg: Config{UserAgent: "simengine-test"}}

	// When: the driver runs the adapter
	result := d.Search(context.Background(), adapter, "neural networks", "ml", "en")

	// Then: the envelope reports success with the parsed paper
	assert.True(t, result.OK)
	assert.Equal(t, "arxiv", result.Source)
	assert.Empty(t, result.Error)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "Deep Learning", result.Papers[0].Title)
	assert.Equal(t, "arxiv", result.Papers[0].Source)
	assert.GreaterOrEqual(t, result.LatencyMS, int64(0))
}

func TestDriver_CircuitOpensAfterFiveFailures(t *testing.T) {
	// Given: a source that always returns 500
	var outbound atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outbound.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	swapEndpoint(t, &pubmedSearchBase, srv.URL)

	d := testDriver(nil)
	adapter := &PubMed{cfg: Config{UserAgent: "simengine-test"}}

	// When: five consecutive calls fail
	for i := 0; i < 5; i++ {
		result := d.Search(context.Background(), adapter, "q", "t", "en")
		assert.False(t, result.OK)
	}
	requestsAfterFive := outbound.Load()

	// Then: the sixth call is short-circuited without an outbound request
	result := d.Search(context.Background(), adapter, "q", "t", "en")
	assert.False(t, result.OK)
	assert.Equal(t, "circuit_open", result.Error)
	assert.Empty(t, result.Papers)
	assert.Equal(t, requestsAfterFive, outbound.Load())
}

func TestDriver_RateLimitedSkipsHTTP(t *testing.T) {
	var outbound atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outbound.Add(1)
	}))
	defer srv.Close()
	swapEndpoint(t, &arxivBase, srv.URL)

	d := testDriver(map[string]ratelimit.Limit{
		"arxiv": {Capacity: 1, PerSecond: 0.0001},
	})
	adapter := &Arxiv{cfg: Config{}}

	d.Search(context.Background(), adapter, "q", "t", "en")
	result := d.Search(context.Background(), adapter, "q", "t", "en")

	assert.False(t, result.OK)
	assert.Equal(t, "rate_limited", result.Error)
	assert.Equal(t, int64(1), outbound.Load())
}

func TestDriver_ClientErrorDoesNotTripCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()
	swapEndpoint(t, &arxivBase, srv.URL)

	d := testDriver(nil)
	adapter := &Arxiv{cfg: Config{}}

	for i := 0; i < 10; i++ {
		result := d.Search(context.Background(), adapter, "q", "t", "en")
		assert.False(t, result.OK)
		assert.Equal(t, "http_404", result.Error)
	}

	// The circuit never opened: calls still reach the server.
	result := d.Search(context.Background(), adapter, "q", "t", "en")
	assert.NotEqual(t, "circuit_open", result.Error)
}

func TestDriver_TooManyRequestsTripsCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	swapEndpoint(t, &arxivBase, srv.URL)

	d := testDriver(nil)
	adapter := &Arxiv{cfg: Config{}}

	for i := 0; i < 5; i++ {
		result := d.Search(context.Background(), adapter, "q", "t", "en")
		assert.Equal(t, "http_429", result.Error)
	}

	result := d.Search(context.Background(), adapter, "q", "t", "en")
	assert.Equal(t, "circuit_open", result.Error)
}

func TestDriver_UnconfiguredSourceSkippedOK(t *testing.T) {
	d := testDriver(nil)

	// CORE without a key is skipped with ok=true and no papers.
	result := d.Search(context.Background(), &CORE{cfg: Config{}}, "q", "t", "en")
	assert.True(t, result.OK)
	assert.Empty(t, result.Papers)
	assert.Empty(t, result.Error)
}

func TestDriver_SuccessResetsFailureCount(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(arxivFeedFixture))
	}))
	defer srv.Close()
	swapEndpoint(t, &arxivBase, srv.URL)

	d := testDriver(nil)
	adapter := &Arxiv{cfg: Config{}}

	// Four failures, then a success, then four more failures: the
	// circuit must stay closed because the success reset the count.
	for i := 0; i < 4; i++ {
		d.Search(context.Background(), adapter, "q", "t", "en")
	}
	fail.Store(false)
	result := d.Search(context.Background(), adapter, "q", "t", "en")
	require.True(t, result.OK)

	fail.Store(true)
	for i := 0; i < 4; i++ {
		result = d.Search(context.Background(), adapter, "q", "t", "en")
		assert.NotEqual(t, "circuit_open", result.Error)
	}
}
