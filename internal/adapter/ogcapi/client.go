// Package ogcapi fetches features from OGC API - Features collection
// endpoints, following pagination links until the window is exhausted.
package ogcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/flume-producer/internal/domain"
	"github.com/couchcryptid/flume-producer/internal/observability"
)

// statusError marks a non-2xx response. It never leaves FetchSince: a bad
// page aborts the whole fetch and the cycle is treated as empty, because the
// watermark commit assumes the fetched set is complete for the window.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.status, e.url)
}

// Client pages through a collection endpoint. Safe for concurrent use across
// sources: each source gets its own circuit breaker.
type Client struct {
	httpClient *http.Client
	limit      int
	breakers   map[string]*gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a paginated client. timeout bounds each page request;
// pagination as a whole is unbounded in page count. limit is the per-page
// feature count requested from the API.
func NewClient(sources []domain.Source, timeout time.Duration, limit int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(sources))
	for _, src := range sources {
		breakers[src.Name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        src.Name,
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			// The breaker guards connection-level health only. A non-2xx
			// response means the host answered; it already aborts the fetch
			// and must not escalate into the fatal-transport class.
			IsSuccessful: func(err error) bool {
				var se *statusError
				return err == nil || errors.As(err, &se)
			},
		})
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limit:      limit,
		breakers:   breakers,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchSince returns every feature the source has published since start,
// concatenated across all pages in order.
//
// The first request carries datetime=<start>/.., limit, and lang=en; "next"
// links are followed as bare URLs with no parameters reattached. An HTTP
// status error on any page logs and returns an empty set with a nil error.
// A connection-level failure (or an open circuit breaker, which models a
// host that keeps failing at that level) returns an error, fatal to this
// source's run.
func (c *Client) FetchSince(ctx context.Context, src domain.Source, start time.Time) ([]domain.Feature, error) {
	firstURL, err := c.buildFirstURL(src, start)
	if err != nil {
		return nil, fmt.Errorf("build request url: %w", err)
	}

	var features []domain.Feature
	nextURL := firstURL

	for nextURL != "" {
		page, err := c.fetchPage(ctx, src, nextURL)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) {
				c.metrics.APIRequests.WithLabelValues(src.Name, "http_error").Inc()
				c.logger.Error("aborting fetch on http error, treating cycle as empty",
					"source", src.Name, "status", se.status, "url", se.url)
				return nil, nil
			}
			c.metrics.APIRequests.WithLabelValues(src.Name, "transport_error").Inc()
			return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
		}
		c.metrics.APIRequests.WithLabelValues(src.Name, "success").Inc()

		features = append(features, page.Features...)
		nextURL = nextLink(page.Links)
	}

	c.logger.Info("fetched features", "source", src.Name, "count", len(features))
	return features, nil
}

func (c *Client) buildFirstURL(src domain.Source, start time.Time) (string, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("datetime", start.Format(time.RFC3339)+"/..")
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("lang", "en")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetchPage(ctx context.Context, src domain.Source, pageURL string) (*domain.FeatureCollection, error) {
	result, err := c.breakers[src.Name].Execute(func() (any, error) {
		return c.doRequest(ctx, pageURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.FeatureCollection), nil
}

func (c *Client) doRequest(ctx context.Context, pageURL string) (*domain.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		return nil, &statusError{status: resp.StatusCode, url: pageURL}
	}

	var page domain.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func nextLink(links []domain.Link) string {
	for _, link := range links {
		if link.Rel == "next" && link.Href != "" {
			return link.Href
		}
	}
	return ""
}
