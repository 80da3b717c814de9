// Package wikipedia is the encyclopedia adapter. Bios resolve in the primary
// language first (via a search to find the article title), then fall back to
// a direct slug lookup in the secondary language.
package wikipedia

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/livrario/ingest/pkg/config"
	"github.com/livrario/ingest/pkg/metadata"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"golang.org/x/time/rate"
)

type Client struct {
	primaryBaseURL  string
	primaryLang     string
	fallbackBaseURL string
	fallbackLang    string
	userAgent       string
	httpClient      *http.Client
	log             logger.Logger

	// limiter spaces out genuine network lookups as a courtesy to the API.
	// Cache hits are served without touching it.
	limiter *rate.Limiter

	mu        sync.Mutex
	bioCache  map[string]*metadata.AuthorBio
	cacheSize int
}

func New(cfg *config.Config) *Client {
	return &Client{
		primaryBaseURL:  cfg.WikipediaPrimaryURL,
		primaryLang:     cfg.PreferredLanguage,
		fallbackBaseURL: cfg.WikipediaFallbackURL,
		fallbackLang:    cfg.SecondaryLanguage,
		userAgent:       cfg.UserAgent,
		httpClient:      &http.Client{Timeout: cfg.HTTPTimeout},
		log:             logger.New(),
		limiter:         rate.NewLimiter(rate.Every(cfg.CourtesyDelay), 1),
		bioCache:        make(map[string]*metadata.AuthorBio),
		cacheSize:       cfg.ProviderCacheSize,
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type summaryResponse struct {
	Extract string `json:"extract"`
}

// FetchBio resolves a biographical extract for a person name. A nil bio with
// nil error means no article was found in either language; individual lookup
// failures degrade to the next fallback rather than erroring. Results
// (including misses) are memoized per name for the client's lifetime.
func (c *Client) FetchBio(ctx context.Context, name string) (*metadata.AuthorBio, error) {
	if name == "" {
		return nil, nil
	}

	c.mu.Lock()
	if bio, ok := c.bioCache[name]; ok {
		c.mu.Unlock()
		return bio, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	bio := c.lookup(ctx, name)

	c.mu.Lock()
	if len(c.bioCache) < c.cacheSize {
		c.bioCache[name] = bio
	}
	c.mu.Unlock()

	return bio, nil
}

func (c *Client) lookup(ctx context.Context, name string) *metadata.AuthorBio {
	// Primary language: search to find the article's real title, then pull
	// the summary extract for it.
	if title, ok := c.searchTitle(ctx, name); ok {
		slug := strings.ReplaceAll(title, " ", "_")
		if extract, ok := c.summary(ctx, c.primaryBaseURL, slug); ok {
			return &metadata.AuthorBio{
				Name:      name,
				Bio:       extract,
				Language:  c.primaryLang,
				SourceURL: c.primaryBaseURL + "/wiki/" + slug,
			}
		}
	}

	// Secondary language: no search pass, just the slugified name.
	slug := strings.ReplaceAll(name, " ", "_")
	if extract, ok := c.summary(ctx, c.fallbackBaseURL, slug); ok {
		return &metadata.AuthorBio{
			Name:      name,
			Bio:       extract,
			Language:  c.fallbackLang,
			SourceURL: c.fallbackBaseURL + "/wiki/" + slug,
		}
	}

	return nil
}

func (c *Client) searchTitle(ctx context.Context, name string) (string, bool) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", name)
	params.Set("format", "json")

	var payload searchResponse
	if err := c.getJSON(ctx, c.primaryBaseURL+"/w/api.php?"+params.Encode(), &payload); err != nil {
		c.log.Err(err).Warn("bio search failed", logger.Data{"name": name})
		return "", false
	}
	if len(payload.Query.Search) == 0 {
		return "", false
	}
	return payload.Query.Search[0].Title, true
}

func (c *Client) summary(ctx context.Context, baseURL, slug string) (string, bool) {
	var payload summaryResponse
	err := c.getJSON(ctx, baseURL+"/api/rest_v1/page/summary/"+url.PathEscape(slug), &payload)
	if err != nil {
		c.log.Err(err).Debug("bio summary failed", logger.Data{"slug": slug})
		return "", false
	}
	if payload.Extract == "" {
		return "", false
	}
	return payload.Extract, true
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("request returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response JSON")
	}
	return nil
}
