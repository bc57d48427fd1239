// Package uniprot implements the external enrichment gateway: it fetches
// canonical protein sequences from the UniProt REST API and known
// modification annotations from the EBI Proteins API.
package uniprot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ptmscope/ptmscope/internal/errors"
	"github.com/ptmscope/ptmscope/internal/logging"
)

// Package-level logger specific to the uniprot service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "uniprot.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "uniprot", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize uniprot file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "uniprot")
		closeLogger = func() error { return nil }
	}
}

// Feature types that map to PTM sites. Everything else in the feature
// document (domains, variants, topology) is ignored.
var ptmFeatureTypes = map[string]bool{
	"MOD_RES":  true,
	"CARBOHYD": true,
	"LIPID":    true,
	"CROSSLNK": true,
}

// Client provides access to the sequence and annotation reference APIs
type Client struct {
	config      Config
	httpClient  *http.Client
	cache       *cache.Cache
	rateLimiter *time.Ticker
	mu          sync.Mutex

	// Metrics
	metrics struct {
		apiCalls    int64
		cacheHits   int64
		cacheMisses int64
		apiErrors   int64
		mu          sync.RWMutex
	}
}

// NewClient creates a new enrichment gateway client
func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.ProteinsAPIURL == "" {
		config.ProteinsAPIURL = defaults.ProteinsAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:       cache.New(config.CacheTTL, config.CacheTTL*2),
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
	}

	logger.Info("uniprot client initialized",
		"base_url", config.BaseURL,
		"proteins_api_url", config.ProteinsAPIURL,
		"cache_ttl", config.CacheTTL,
		"rate_limit_ms", config.RateLimitMS)

	return client
}

// Close cleans up client resources
func (c *Client) Close() {
	c.rateLimiter.Stop()
	logger.Info("closing uniprot client")

	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing uniprot logger: %v", err)
		}
	}
}

// FetchSequence retrieves the canonical amino-acid sequence for an accession.
// A failure leaves nothing behind: the caller keeps whatever sequence state
// it already had.
func (c *Client) FetchSequence(ctx context.Context, accession string) (string, error) {
	cacheKey := "sequence:" + accession

	if cached, found := c.cache.Get(cacheKey); found {
		if seq, ok := cached.(string); ok {
			c.countCacheHit()
			logger.Debug("sequence cache hit", "accession", accession, "length", len(seq))
			return seq, nil
		}
	}
	c.countCacheMiss()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s.fasta", c.config.BaseURL, accession)
	body, err := c.doRequestWithRetry(reqCtx, url, "text/plain", accession)
	if err != nil {
		return "", err
	}

	sequence := parseFasta(string(body))
	if sequence == "" {
		return "", errors.Newf("no sequence in response for %s", accession).
			Category(errors.CategoryFileParsing).
			Context("accession", accession).
			Component("uniprot").
			Build()
	}

	c.cache.Set(cacheKey, sequence, cache.DefaultExpiration)

	logger.Info("sequence fetched", "accession", accession, "length", len(sequence))
	return sequence, nil
}

// FetchKnownSites retrieves the known-evidence modification annotations for
// an accession from the reference feature document.
func (c *Client) FetchKnownSites(ctx context.Context, accession string) ([]KnownSiteAnnotation, error) {
	cacheKey := "features:" + accession

	if cached, found := c.cache.Get(cacheKey); found {
		if sites, ok := cached.([]KnownSiteAnnotation); ok {
			c.countCacheHit()
			logger.Debug("features cache hit", "accession", accession, "sites", len(sites))
			return sites, nil
		}
	}
	c.countCacheMiss()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", c.config.ProteinsAPIURL, accession)
	body, err := c.doRequestWithRetry(reqCtx, url, "application/json", accession)
	if err != nil {
		return nil, err
	}

	var doc featuresResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Newf("failed to parse feature document: %w", err).
			Category(errors.CategoryFileParsing).
			Context("accession", accession).
			Context("response_size", len(body)).
			Component("uniprot").
			Build()
	}

	sites := extractPTMSites(&doc)
	c.cache.Set(cacheKey, sites, cache.DefaultExpiration)

	logger.Info("known sites fetched",
		"accession", accession,
		"features", len(doc.Features),
		"ptm_sites", len(sites))
	return sites, nil
}

// extractPTMSites filters the feature document down to single-residue PTM
// annotations.
func extractPTMSites(doc *featuresResponse) []KnownSiteAnnotation {
	var sites []KnownSiteAnnotation
	for i := range doc.Features {
		f := &doc.Features[i]
		if !ptmFeatureTypes[f.Type] {
			continue
		}
		begin, err := strconv.Atoi(f.Begin)
		if err != nil || begin < 1 {
			continue
		}
		// Multi-residue features (crosslink ranges) anchor at their start.
		site := KnownSiteAnnotation{
			Position:         begin,
			ModificationType: normalizeDescription(f.Description),
		}
		if site.ModificationType == "" {
			continue
		}
		if begin <= len(doc.Sequence) {
			site.AminoAcid = strings.ToUpper(string(doc.Sequence[begin-1]))
		}
		for j := range f.Evidences {
			src := f.Evidences[j].Source
			if src == nil || src.ID == "" {
				continue
			}
			if strings.EqualFold(src.Name, "PubMed") {
				site.References = append(site.References, "PMID:"+src.ID)
			}
		}
		sites = append(sites, site)
	}
	return sites
}

// normalizeDescription trims qualifier clauses like "; by CK2" or ";
// alternate" from a feature description, leaving the modification label.
func normalizeDescription(desc string) string {
	if idx := strings.Index(desc, ";"); idx >= 0 {
		desc = desc[:idx]
	}
	return strings.TrimSpace(desc)
}

// parseFasta concatenates the sequence lines of a single-record FASTA body.
func parseFasta(body string) string {
	var sb strings.Builder
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// doRequest performs a rate-limited GET and returns the response body.
func (c *Client) doRequest(ctx context.Context, url, accept, accession string) ([]byte, error) {
	// Rate limiting
	c.mu.Lock()
	<-c.rateLimiter.C
	c.mu.Unlock()

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.countError()
		return nil, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("uniprot").
			Build()
	}
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError()
		logger.Error("request failed", "error", err, "url", url)
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryTimeout
		}
		return nil, errors.Newf("HTTP request failed: %w", err).
			Category(category).
			NetworkContext(url, c.config.Timeout).
			Context("accession", accession).
			Component("uniprot").
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			_ = err
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError()
		return nil, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Component("uniprot").
			Build()
	}

	if resp.StatusCode >= 400 {
		c.countError()
		logger.Warn("API error response",
			"status_code", resp.StatusCode,
			"url", url,
			"accession", accession)
		return nil, errors.Newf("reference API error (status %d) for %s", resp.StatusCode, accession).
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", url).
			Context("accession", accession).
			Component("uniprot").
			Build()
	}

	logger.Debug("request successful",
		"url", url,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_size", len(body))

	return body, nil
}

// doRequestWithRetry wraps doRequest with retry logic for transient failures
func (c *Client) doRequestWithRetry(ctx context.Context, url, accept, accession string) ([]byte, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		body, err := c.doRequest(ctx, url, accept, accession)
		if err == nil {
			return body, nil
		}

		// Not-found and other client errors are permanent.
		var enhancedErr *errors.EnhancedError
		if errors.As(err, &enhancedErr) {
			if enhancedErr.Category == errors.CategoryNotFound ||
				enhancedErr.Category == errors.CategoryValidation {
				return nil, err
			}
			if statusCode, ok := enhancedErr.GetContext()["status_code"].(int); ok {
				if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
					return nil, err
				}
			}
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}

		delay := time.Duration(attempt+1) * 500 * time.Millisecond
		if attempt < maxRetries-1 {
			logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay_ms", delay.Milliseconds(),
				"url", url,
				"error", err.Error())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, lastErr
}

// ClearCache clears all cached data
func (c *Client) ClearCache() {
	c.cache.Flush()
	logger.Info("uniprot cache cleared")
}

// Metrics represents client performance counters
type Metrics struct {
	APICalls    int64 `json:"api_calls"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APIErrors   int64 `json:"api_errors"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	return Metrics{
		APICalls:    c.metrics.apiCalls,
		CacheHits:   c.metrics.cacheHits,
		CacheMisses: c.metrics.cacheMisses,
		APIErrors:   c.metrics.apiErrors,
	}
}

func (c *Client) countCacheHit() {
	c.metrics.mu.Lock()
	c.metrics.cacheHits++
	c.metrics.mu.Unlock()
}

func (c *Client) countCacheMiss() {
	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()
}

func (c *Client) countError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
}

// getErrorCategory determines the appropriate error category based on HTTP status code
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case 404:
		return errors.CategoryNotFound
	case 429:
		return errors.CategoryLimit
	case 500, 502, 503, 504:
		return errors.CategoryNetwork
	default:
		return errors.CategoryHTTP
	}
}
