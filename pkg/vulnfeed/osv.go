// Package vulnfeed correlates resolved dependencies against the OSV.dev
// vulnerability feed.
package vulnfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/depsight/depsight/pkg/cache"
	"github.com/depsight/depsight/pkg/errors"
	"github.com/depsight/depsight/pkg/httputil"
	"github.com/depsight/depsight/pkg/model"
)

const (
	// DefaultBaseURL is the production OSV API endpoint.
	DefaultBaseURL = "https://api.osv.dev"

	defaultConcurrency      = 8
	defaultFailureThreshold = 0.5
	defaultCacheTTL         = 6 * time.Hour

	// maxBatchQueries is the feed's cap on queries per batch call.
	maxBatchQueries = 1000
)

// ecosystems maps catalog package types onto OSV ecosystem identifiers.
var ecosystems = map[model.PackageType]string{
	model.PackageGo:     "Go",
	model.PackageNPM:    "npm",
	model.PackagePython: "PyPI",
	model.PackageMaven:  "Maven",
}

// Feed looks up advisories for a set of resolved dependencies.
type Feed interface {
	Correlate(ctx context.Context, deps []model.Dependency) (map[uint64][]model.Advisory, []errors.Warning, error)
}

// Client queries the OSV HTTP API. Uncached coordinates go through the batch
// query endpoint; matched advisories are then fetched individually with a
// bounded concurrent fan-out. Results are cached per coordinate so repeated
// runs over the same catalog rows do not hammer the feed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *log.Logger

	concurrency      int
	failureThreshold float64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the feed endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithConcurrency bounds the number of in-flight feed queries.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithFailureThreshold sets the failed-query ratio above which a run is
// considered to have no usable feed.
func WithFailureThreshold(ratio float64) Option {
	return func(c *Client) {
		if ratio > 0 {
			c.failureThreshold = ratio
		}
	}
}

// WithCacheTTL sets how long feed responses stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// New creates an OSV feed client. A nil cache disables caching.
func New(c cache.Cache, logger *log.Logger, opts ...Option) *Client {
	if c == nil {
		c = &cache.NullCache{}
	}
	if logger == nil {
		logger = log.Default()
	}
	client := &Client{
		baseURL:          DefaultBaseURL,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		cache:            c,
		cacheTTL:         defaultCacheTTL,
		logger:           logger,
		concurrency:      defaultConcurrency,
		failureThreshold: defaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type queryRequest struct {
	Package queryPackage `json:"package"`
	Version string       `json:"version,omitempty"`
}

type queryPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type batchRequest struct {
	Queries []queryRequest `json:"queries"`
}

// batchResponse carries one result per query, in query order. Batch results
// hold advisory IDs only; details come from the per-vulnerability endpoint.
type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	Vulns []struct {
		ID string `json:"id"`
	} `json:"vulns"`
}

type osvVuln struct {
	ID               string        `json:"id"`
	Summary          string        `json:"summary"`
	Details          string        `json:"details"`
	Severity         []osvSeverity `json:"severity"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

type osvSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// Correlate looks up advisories for every dependency and returns them keyed
// by catalog ID. Coordinates not in the cache are resolved through the batch
// endpoint, then matched advisories are fetched individually. Failures for
// single coordinates degrade to warnings; the whole correlation fails only
// when too many lookups fail or the context is cancelled.
func (c *Client) Correlate(ctx context.Context, deps []model.Dependency) (map[uint64][]model.Advisory, []errors.Warning, error) {
	advisories := make(map[uint64][]model.Advisory)
	var warnings []errors.Warning
	if len(deps) == 0 {
		return advisories, nil, nil
	}

	var pending []model.Dependency
	attempted := 0
	for _, dep := range deps {
		if _, ok := ecosystems[dep.PackageType]; !ok {
			continue
		}
		attempted++
		if found, ok := c.cached(ctx, dep); ok {
			if len(found) > 0 {
				advisories[dep.ID] = found
			}
			continue
		}
		pending = append(pending, dep)
	}
	if len(pending) == 0 {
		return advisories, warnings, nil
	}

	// Batch calls resolve which coordinates have advisories. A failed chunk
	// fails every coordinate in it; the other chunks still proceed.
	ids := make([][]string, len(pending))
	lookupErrs := make([]error, len(pending))
	for start := 0; start < len(pending); start += maxBatchQueries {
		end := min(start+maxBatchQueries, len(pending))
		results, err := c.queryBatch(ctx, pending[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, errors.Wrap(errors.ErrCodeTimeout, ctx.Err(), "vulnerability correlation cancelled")
			}
			for i := start; i < end; i++ {
				lookupErrs[i] = err
			}
			continue
		}
		for i, r := range results {
			for _, v := range r.Vulns {
				ids[start+i] = append(ids[start+i], v.ID)
			}
		}
	}

	details, detailErrs := c.fetchDetails(ctx, ids)
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeTimeout, err, "vulnerability correlation cancelled")
	}

	failed := 0
	for i, dep := range pending {
		if lookupErrs[i] == nil {
			for _, id := range ids[i] {
				if err, ok := detailErrs[id]; ok {
					lookupErrs[i] = err
					break
				}
			}
		}
		if err := lookupErrs[i]; err != nil {
			failed++
			warnings = append(warnings, errors.Warnf(errors.WarnCorrelation,
				dep.Coordinate().String(), "feed lookup failed: %v", errors.UserMessage(err)))
			continue
		}

		found := make([]model.Advisory, 0, len(ids[i]))
		for _, id := range ids[i] {
			found = append(found, details[id])
		}
		if len(found) > 0 {
			advisories[dep.ID] = found
		}
		c.storeCached(ctx, dep, found)
	}

	if failed > 0 && float64(failed)/float64(attempted) > c.failureThreshold {
		return nil, nil, errors.New(errors.ErrCodeFeedUnavailable,
			"vulnerability feed unavailable: %d of %d lookups failed", failed, attempted)
	}
	return advisories, warnings, nil
}

// fetchDetails downloads each distinct advisory once with a bounded fan-out.
// Per-advisory failures are returned so the caller can degrade the affected
// coordinates.
func (c *Client) fetchDetails(ctx context.Context, ids [][]string) (map[string]model.Advisory, map[string]error) {
	distinct := make(map[string]struct{})
	for _, list := range ids {
		for _, id := range list {
			distinct[id] = struct{}{}
		}
	}
	details := make(map[string]model.Advisory, len(distinct))
	failures := make(map[string]error)
	if len(distinct) == 0 {
		return details, failures
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.concurrency)
	)
	for id := range distinct {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				failures[id] = ctx.Err()
				mu.Unlock()
				return
			}

			v, err := c.getVuln(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = err
				return
			}
			details[id] = model.Advisory{
				ID:       v.ID,
				Severity: severityOf(*v),
				Score:    scoreOf(*v),
				Summary:  summaryOf(*v),
				Source:   "osv.dev",
			}
		}(id)
	}
	wg.Wait()
	return details, failures
}

func cacheKey(dep model.Dependency) string {
	return cache.Hash([]byte("osv:" + dep.Coordinate().String()))
}

func (c *Client) cached(ctx context.Context, dep model.Dependency) ([]model.Advisory, bool) {
	data, ok, err := c.cache.Get(ctx, cacheKey(dep))
	if err != nil || !ok {
		return nil, false
	}
	var found []model.Advisory
	if err := json.Unmarshal(data, &found); err != nil {
		return nil, false
	}
	return found, true
}

func (c *Client) storeCached(ctx context.Context, dep model.Dependency, found []model.Advisory) {
	data, err := json.Marshal(found)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(dep), data, c.cacheTTL); err != nil {
		c.logger.Debug("feed cache write failed", "error", err)
	}
}

// queryBatch posts one chunk of coordinate queries. The feed returns one
// result per query in query order.
func (c *Client) queryBatch(ctx context.Context, deps []model.Dependency) ([]batchResult, error) {
	queries := make([]queryRequest, len(deps))
	for i, dep := range deps {
		queries[i] = queryRequest{
			Package: queryPackage{Name: dep.Name, Ecosystem: ecosystems[dep.PackageType]},
			Version: dep.Version,
		}
	}
	body, err := json.Marshal(batchRequest{Queries: queries})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encoding feed batch query")
	}

	var result batchResponse
	err = httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/querybatch", bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "building feed request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "feed request failed")}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&result)
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return &httputil.RetryableError{Err: fmt.Errorf("feed returned status %d", resp.StatusCode)}
		default:
			io.Copy(io.Discard, resp.Body)
			return errors.New(errors.ErrCodeFeedUnavailable, "feed returned status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(result.Results) != len(deps) {
		return nil, errors.New(errors.ErrCodeFeedUnavailable,
			"feed returned %d results for %d queries", len(result.Results), len(deps))
	}
	return result.Results, nil
}

// getVuln fetches one advisory's full record.
func (c *Client) getVuln(ctx context.Context, id string) (*osvVuln, error) {
	var v osvVuln
	err := httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/vulns/"+url.PathEscape(id), nil)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "building feed request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "feed request failed")}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&v)
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return &httputil.RetryableError{Err: fmt.Errorf("feed returned status %d", resp.StatusCode)}
		default:
			io.Copy(io.Discard, resp.Body)
			return errors.New(errors.ErrCodeFeedUnavailable, "feed returned status %d for %s", resp.StatusCode, id)
		}
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// severityOf normalizes the advisory severity. OSV entries carry severity in
// different places depending on the source database.
func severityOf(v osvVuln) string {
	if s := v.DatabaseSpecific.Severity; s != "" {
		return s
	}
	switch score := scoreOf(v); {
	case score >= 9.0:
		return "CRITICAL"
	case score >= 7.0:
		return "HIGH"
	case score >= 4.0:
		return "MEDIUM"
	case score > 0:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// scoreOf extracts a numeric CVSS score when the severity entry carries one.
// Vector strings (CVSS:3.1/...) have no plain number and yield zero.
func scoreOf(v osvVuln) float64 {
	for _, s := range v.Severity {
		if score, err := strconv.ParseFloat(s.Score, 64); err == nil {
			return score
		}
	}
	return 0
}

func summaryOf(v osvVuln) string {
	if v.Summary != "" {
		return v.Summary
	}
	const maxDetails = 200
	if len(v.Details) > maxDetails {
		return v.Details[:maxDetails]
	}
	return v.Details
}
