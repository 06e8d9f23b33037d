// Package sources implements the twelve external bibliographic-API
// adapters behind a shared template-method driver. Concrete adapters
// supply two hooks — build the request, parse the response — while the
// driver owns rate limiting, circuit breaking, timeouts, and the result
// envelope. Adapters never fail a request: errors travel in the
// envelope.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/ratelimit"
	"github.com/xplagiax/simengine/pkg/types"
)

// DefaultTimeout bounds each outbound request.
const DefaultTimeout = 8 * time.Second

// errNotConfigured marks adapters whose required key or seed is missing;
// the driver skips them with ok=true and no papers.
var errNotConfigured = errors.New("source not configured")

// Request describes one outbound API call.
type Request struct {
	URL     string
	Params  url.Values
	Headers map[string]string
}

// Adapter is one external bibliographic source.
type Adapter interface {
	// Name returns the source tag (e.g. "crossref").
	Name() string

	// BuildRequest assembles the outbound call for a query. Returning
	// errNotConfigured skips the source silently.
	BuildRequest(query, theme, language string) (*Request, error)

	// ParseResponse converts a successful response body into papers.
	ParseResponse(body []byte, contentType string) ([]types.Paper, error)
}

// fetcher is an optional adapter hook for sources that need more than a
// single GET (PubMed's two-step esearch → efetch flow).
type fetcher interface {
	Fetch(ctx context.Context, client *http.Client, req *Request) (body []byte, contentType string, err error)
}

// Driver runs adapters with the shared protections.
type Driver struct {
	client   *http.Client
	limiter  ratelimit.Backend
	breakers *engerr.BreakerSet
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDriver creates the shared adapter driver.
func NewDriver(limiter ratelimit.Backend, breakers *engerr.BreakerSet, timeout time.Duration, logger *slog.Logger) *Driver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Driver{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		limiter:  limiter,
		breakers: breakers,
		timeout:  timeout,
		logger:   logger,
	}
}

// Search runs one adapter for one query. It never returns an error:
// failures are reported in the envelope and absorbed upstream.
func (d *Driver) Search(ctx context.Context, adapter Adapter, query, theme, language string) types.AdapterResult {
	source := adapter.Name()
	result := types.AdapterResult{Source: source, Papers: []types.Paper{}}
	start := time.Now()

	defer func() {
		result.LatencyMS = time.Since(start).Milliseconds()
	}()

	if !d.limiter.TryAcquire(source) {
		result.Error = "rate_limited"
		return result
	}

	breaker := d.breakers.Get(source)
	if !breaker.Allow() {
		result.Error = "circuit_open"
		return result
	}

	req, err := adapter.BuildRequest(query, theme, language)
	if err != nil {
		// A missing key or seed is not a failure of the source.
		breaker.RecordSuccess()
		if errors.Is(err, errNotConfigured) {
			result.OK = true
			return result
		}
		result.Error = "bad_request"
		return result
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	body, contentType, status, err := d.fetch(reqCtx, adapter, req)
	switch {
	case err != nil:
		// Timeout, cancellation, or network error: one circuit increment.
		breaker.RecordFailure()
		result.Error = "unreachable"
		d.logger.Warn("source call failed",
			slog.String("source", source), slog.String("error", err.Error()))
		return result

	case status == http.StatusTooManyRequests || status >= 500:
		breaker.RecordFailure()
		result.Error = fmt.Sprintf("http_%d", status)
		return result

	case status >= 400:
		// Client errors other than 429 do not trip the circuit: the
		// source answered, so the breaker records the contact (this also
		// releases a half-open probe slot).
		breaker.RecordSuccess()
		result.Error = fmt.Sprintf("http_%d", status)
		return result
	}

	breaker.RecordSuccess()

	papers, err := adapter.ParseResponse(body, contentType)
	if err != nil {
		result.Error = "parse_error"
		d.logger.Warn("source response unparseable",
			slog.String("source", source), slog.String("error", err.Error()))
		return result
	}

	for i := range papers {
		papers[i].Source = source
	}
	result.Papers = papers
	result.OK = true
	return result
}

// fetch issues the HTTP call, delegating to the adapter's own fetcher
// when it has one. A non-2xx status is returned without a body.
func (d *Driver) fetch(ctx context.Context, adapter Adapter, req *Request) (body []byte, contentType string, status int, err error) {
	if f, ok := adapter.(fetcher); ok {
		body, contentType, err = f.Fetch(ctx, d.client, req)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) {
				return nil, "", se.status, nil
			}
			return nil, "", 0, err
		}
		return body, contentType, http.StatusOK, nil
	}

	return doGet(ctx, d.client, req)
}

// statusError carries a non-2xx status out of custom fetchers.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d", e.status)
}

// doGet performs one GET with the request's params and headers.
func doGet(ctx context.Context, client *http.Client, req *Request) (body []byte, contentType string, status int, err error) {
	u := req.URL
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", 0, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", resp.StatusCode, nil
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, "", 0, err
	}
	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}
