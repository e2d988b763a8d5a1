// Package census implements the HTTP client for the external demographic
// service (spec.md §4.2), grounded in the pack's FRED client
// (derickschaefer-reserve/internal/fred/client.go): a token-bucket rate
// limiter, a concurrency gate, and exponential backoff on 429/5xx.
//
// Failure here is never fatal to a job — callers record a warning and
// proceed with an empty demographic context.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ncrc/justdata/pkg/core/engerr"
)

// Vintage names a census data edition (glossary: "Vintage").
type Vintage string

const (
	Vintage2010Decennial Vintage = "2010-decennial"
	Vintage2020Decennial Vintage = "2020-decennial"
	VintageLatestACS5yr  Vintage = "latest-acs-5yr"
)

// DemographicsRow is a county-level population/race-ethnicity record.
type DemographicsRow struct {
	CountyCode      string
	TotalPopulation int64
	HispanicLatino  int64
	NativeAmerican  int64
	Asian           int64
	Black           int64
	HawaiianPacific int64
	White           int64
	Other           int64
	TwoOrMore       int64
}

// TractRow is a tract-level income/minority record.
type TractRow struct {
	TractID         string // 11-char
	Households      int64
	MedianIncome    float64
	MinorityPercent float64
}

// Client fetches county demographics and tract distributions.
type Client interface {
	GetCountyDemographics(ctx context.Context, countyCodes []string, vintage Vintage) ([]DemographicsRow, error)
	GetTractDistributions(ctx context.Context, countyCodes []string, vintage Vintage) ([]TractRow, error)
}

const (
	maxRetries  = 5
	backoffBase = 500 * time.Millisecond
	backoffMax  = 8 * time.Second
)

// HTTPClient is the production Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	gate       *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]*coalescedCall
}

type coalescedCall struct {
	done chan struct{}
	data any
	err  error
}

// NewHTTPClient constructs a Client rate-limited to ratePerSecond requests
// per second and gated to maxConcurrency in-flight HTTP requests
// (spec.md §4.2 defaults: 4 in-flight, 10 req/s).
func NewHTTPClient(baseURL, apiKey string, maxConcurrency int64, ratePerSecond float64, timeout time.Duration) *HTTPClient {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		gate:       semaphore.NewWeighted(maxConcurrency),
		inFlight:   make(map[string]*coalescedCall),
	}
}

// GetCountyDemographics fetches population/race-ethnicity data for the
// given counties at one vintage, coalescing concurrent callers that share a
// (countyCodes, vintage) key.
func (c *HTTPClient) GetCountyDemographics(ctx context.Context, countyCodes []string, vintage Vintage) ([]DemographicsRow, error) {
	key := "county:" + vintage.String() + ":" + strings.Join(countyCodes, ",")
	result, err := c.coalesced(ctx, key, func(ctx context.Context) (any, error) {
		var out []DemographicsRow
		err := c.getJSON(ctx, string(vintage), "/demographics", map[string]string{
			"counties": strings.Join(countyCodes, ","),
			"vintage":  string(vintage),
		}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]DemographicsRow), nil
}

// GetTractDistributions fetches tract-level income/minority data for the
// given counties at one vintage.
func (c *HTTPClient) GetTractDistributions(ctx context.Context, countyCodes []string, vintage Vintage) ([]TractRow, error) {
	key := "tract:" + vintage.String() + ":" + strings.Join(countyCodes, ",")
	result, err := c.coalesced(ctx, key, func(ctx context.Context) (any, error) {
		var out []TractRow
		err := c.getJSON(ctx, string(vintage), "/tracts", map[string]string{
			"counties": strings.Join(countyCodes, ","),
			"vintage":  string(vintage),
		}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]TractRow), nil
}

// coalesced ensures at most one HTTP call is in flight per key: concurrent
// callers sharing a key await the same result (spec.md §4.2: "requests are
// coalesced per unique (countyCode, vintage) key").
func (c *HTTPClient) coalesced(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.data, call.err
		case <-ctx.Done():
			return nil, &engerr.Cancelled{Stage: "census-join"}
		}
	}
	call := &coalescedCall{done: make(chan struct{})}
	c.inFlight[key] = call
	c.mu.Unlock()

	call.data, call.err = fn(ctx)
	close(call.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return call.data, call.err
}

// getJSON performs a rate-limited, concurrency-gated GET with retry on
// 429/5xx (exponential backoff, base 0.5s, max 8s, 5 attempts), decoding
// the JSON body into out.
func (c *HTTPClient) getJSON(ctx context.Context, vintage, path string, params map[string]string, out any) error {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return &engerr.Cancelled{Stage: "census-join"}
	}
	defer c.gate.Release(1)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(float64(backoffMax), float64(backoffBase)*math.Pow(2, float64(attempt-1))))
			select {
			case <-ctx.Done():
				return &engerr.Cancelled{Stage: "census-join"}
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return &engerr.Cancelled{Stage: "census-join"}
		}

		status, body, err := c.doOnce(ctx, path, params)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("census http %d", status)
			continue
		}
		if status != http.StatusOK {
			return &engerr.CensusFailure{Vintage: vintage, Err: fmt.Errorf("census http %d: %s", status, string(body))}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return &engerr.CensusFailure{Vintage: vintage, Err: fmt.Errorf("decoding census response: %w", err)}
		}
		return nil
	}
	return &engerr.CensusFailure{Vintage: vintage, Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

func (c *HTTPClient) doOnce(ctx context.Context, path string, params map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (v Vintage) String() string { return string(v) }
