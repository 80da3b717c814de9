// Package openlibrary is the work-graph adapter: it resolves abstract works
// from identifiers or titles and aggregates subject tags across a work's
// editions under a caller-supplied scan budget.
package openlibrary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/livrario/ingest/pkg/config"
	"github.com/livrario/ingest/pkg/identifiers"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const workKeyPrefix = "/works/"

// editionPageSize caps how many editions one page request may ask for.
const editionPageSize = 50

var yearPattern = regexp.MustCompile(`(\d{4})`)

// marcCodes maps ISO 639-1 codes to the MARC codes the search API declares on
// result documents.
var marcCodes = map[string]string{
	"es": "spa",
	"en": "eng",
	"fr": "fre",
	"de": "ger",
	"it": "ita",
	"pt": "por",
}

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	log        logger.Logger

	// Work lookups repeat heavily within one reconciliation (the work stage
	// re-reads the primary work after resolution), so they are memoized for
	// the client's lifetime with a hard size bound.
	mu        sync.Mutex
	workCache map[string]*workResponse
	cacheSize int
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.OpenLibraryBaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        logger.New(),
		workCache:  make(map[string]*workResponse),
		cacheSize:  cfg.ProviderCacheSize,
	}
}

type isbnResponse struct {
	Works []struct {
		Key string `json:"key"`
	} `json:"works"`
}

type searchResponse struct {
	Docs []searchDoc `json:"docs"`
}

type searchDoc struct {
	Key              string   `json:"key"`
	Language         []string `json:"language"`
	ISBN             []string `json:"isbn"`
	EditionCount     int      `json:"edition_count"`
	FirstPublishYear int      `json:"first_publish_year"`
}

type workResponse struct {
	Subjects         []string        `json:"subjects"`
	Description      json.RawMessage `json:"description"`
	FirstPublishDate string          `json:"first_publish_date"`
}

// description unwraps the work description, which may be a plain string or a
// {type, value} wrapper.
func (w *workResponse) description() string {
	if len(w.Description) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(w.Description, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(w.Description, &wrapped); err == nil {
		return strings.TrimSpace(wrapped.Value)
	}
	return ""
}

type editionsResponse struct {
	Size    int            `json:"size"`
	Entries []editionEntry `json:"entries"`
}

type editionEntry struct {
	Subjects []string `json:"subjects"`
}

// ResolveWorkFromISBN returns the first work key associated with the edition
// identified by isbn13, or "" when the edition is unknown.
func (c *Client) ResolveWorkFromISBN(ctx context.Context, isbn13 string) (string, error) {
	var payload isbnResponse
	notFound, err := c.getJSON(ctx, fmt.Sprintf("%s/isbn/%s.json", c.baseURL, url.PathEscape(isbn13)), &payload)
	if err != nil {
		return "", err
	}
	if notFound || len(payload.Works) == 0 {
		return "", nil
	}
	return payload.Works[0].Key, nil
}

// SearchTitle searches works by title and ranks the result documents by
// (has-preferred-language, has-any-identifier, first-publish-year)
// descending. It returns the best document's work key plus the canonical-form
// ISBN-13 candidates harvested from the top limit documents.
func (c *Client) SearchTitle(ctx context.Context, title, language string, limit int) (string, []string, error) {
	params := url.Values{}
	params.Set("title", title)
	params.Set("limit", strconv.Itoa(limit))

	var payload searchResponse
	notFound, err := c.getJSON(ctx, c.baseURL+"/search.json?"+params.Encode(), &payload)
	if err != nil {
		return "", nil, err
	}
	if notFound || len(payload.Docs) == 0 {
		return "", nil, nil
	}

	docs := payload.Docs
	marc := marcCodes[language]
	rank := func(d searchDoc) (int, int, int) {
		hasLang := 0
		for _, l := range d.Language {
			if marc != "" && strings.HasPrefix(l, marc) {
				hasLang = 1
				break
			}
		}
		hasISBN := 0
		if len(d.ISBN) > 0 {
			hasISBN = 1
		}
		return hasLang, hasISBN, d.FirstPublishYear
	}
	sort.SliceStable(docs, func(i, j int) bool {
		li, ii, yi := rank(docs[i])
		lj, ij, yj := rank(docs[j])
		if li != lj {
			return li > lj
		}
		if ii != ij {
			return ii > ij
		}
		return yi > yj
	})

	var isbn13s []string
	top := docs
	if len(top) > limit {
		top = top[:limit]
	}
	for _, d := range top {
		for _, raw := range d.ISBN {
			v := identifiers.Digits(raw)
			if identifiers.IsISBN13(v) {
				isbn13s = append(isbn13s, v)
			}
		}
	}

	return docs[0].Key, identifiers.Dedup(isbn13s), nil
}

// WorkTagsAndDescription fetches the work entity and returns its subject tags
// and unwrapped description.
func (c *Client) WorkTagsAndDescription(ctx context.Context, workKey string) ([]string, string, error) {
	work, err := c.getWork(ctx, workKey)
	if err != nil {
		return nil, "", err
	}
	if work == nil {
		return nil, "", nil
	}

	tags := make([]string, 0, len(work.Subjects))
	for _, s := range work.Subjects {
		if strings.TrimSpace(s) != "" {
			tags = append(tags, s)
		}
	}
	return tags, work.description(), nil
}

// WorkStats returns the work's edition count and first publication year
// (zero when unknown).
func (c *Client) WorkStats(ctx context.Context, workKey string) (int, int, error) {
	var eds editionsResponse
	notFound, err := c.getJSON(ctx, c.editionsURL(workKey, 1, 0), &eds)
	if err != nil {
		return 0, 0, err
	}
	editionCount := 0
	if !notFound {
		editionCount = eds.Size
	}

	year := 0
	work, err := c.getWork(ctx, workKey)
	if err != nil {
		return editionCount, 0, err
	}
	if work != nil {
		if m := yearPattern.FindStringSubmatch(work.FirstPublishDate); m != nil {
			year, _ = strconv.Atoi(m[1])
		}
	}
	return editionCount, year, nil
}

// CollectEditionTags paginates through the work's editions, collecting every
// edition-level subject string, until at most scanBudget editions have been
// scanned or a short page signals the end of data. A budget of zero or less
// returns immediately without any network call. The result is deduplicated
// and order-preserving.
func (c *Client) CollectEditionTags(ctx context.Context, workKey string, scanBudget int) ([]string, error) {
	if scanBudget <= 0 {
		return []string{}, nil
	}

	var collected []string
	remaining := scanBudget
	offset := 0
	step := scanBudget
	if step > editionPageSize {
		step = editionPageSize
	}

	for remaining > 0 {
		limit := step
		if remaining < limit {
			limit = remaining
		}

		var page editionsResponse
		notFound, err := c.getJSON(ctx, c.editionsURL(workKey, limit, offset), &page)
		if err != nil {
			return identifiers.Dedup(collected), err
		}
		if notFound || len(page.Entries) == 0 {
			break
		}

		for _, entry := range page.Entries {
			for _, s := range entry.Subjects {
				if strings.TrimSpace(s) != "" {
					collected = append(collected, s)
				}
			}
		}

		got := len(page.Entries)
		if got < limit {
			break
		}
		remaining -= got
		offset += got
	}

	return identifiers.Dedup(collected), nil
}

// SearchRelatedWorks finds other works sharing the title, for series and
// reissue fragmentation. Only keys in the work namespace are returned.
func (c *Client) SearchRelatedWorks(ctx context.Context, title string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("q", title)
	params.Set("fields", "key,edition_count,first_publish_year")
	params.Set("limit", strconv.Itoa(limit))

	var payload searchResponse
	notFound, err := c.getJSON(ctx, c.baseURL+"/search.json?"+params.Encode(), &payload)
	if err != nil || notFound {
		return nil, err
	}

	var keys []string
	for _, d := range payload.Docs {
		if strings.HasPrefix(d.Key, workKeyPrefix) {
			keys = append(keys, d.Key)
		}
	}
	return keys, nil
}

func (c *Client) editionsURL(workKey string, limit, offset int) string {
	return fmt.Sprintf("%s%s/editions.json?limit=%d&offset=%d", c.baseURL, workKey, limit, offset)
}

// getWork fetches a work by key, memoized per client. A nil result with nil
// error means the work does not exist.
func (c *Client) getWork(ctx context.Context, workKey string) (*workResponse, error) {
	if !strings.HasPrefix(workKey, workKeyPrefix) {
		workKey = workKeyPrefix + workKey
	}

	c.mu.Lock()
	if cached, ok := c.workCache[workKey]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var payload workResponse
	notFound, err := c.getJSON(ctx, c.baseURL+workKey+".json", &payload)
	if err != nil {
		return nil, err
	}

	var result *workResponse
	if !notFound {
		result = &payload
	}

	c.mu.Lock()
	// Bounded cache: once full, new entries are simply not retained.
	if len(c.workCache) < c.cacheSize {
		c.workCache[workKey] = result
	}
	c.mu.Unlock()

	return result, nil
}

// getJSON performs a GET and decodes the body into out. A 404 is reported via
// the notFound result instead of an error, since missing entities are an
// expected outcome for this provider.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) (notFound bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, errors.Errorf("request returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "failed to read response")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, errors.Wrap(err, "failed to parse response JSON")
	}
	return false, nil
}
