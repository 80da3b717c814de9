// Package googlebooks is the bibliographic-search adapter. It parses the
// volumes API payload into metadata.Candidate at the edge so nothing past
// this package touches raw provider JSON.
package googlebooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/livrario/ingest/pkg/config"
	"github.com/livrario/ingest/pkg/metadata"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"
)

// volumeFields limits the payload to what reconciliation consumes.
const volumeFields = "items(id,volumeInfo(title,subtitle,authors,description,categories,industryIdentifiers,language,canonicalVolumeLink,publishedDate))"

const defaultMaxResults = 20

type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	log        logger.Logger
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.GoogleBooksBaseURL,
		apiKey:     cfg.GoogleBooksAPIKey,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        logger.New(),
	}
}

// volumesResponse is the wire schema of a volumes search.
type volumesResponse struct {
	Items []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle"`
	Authors             []string             `json:"authors"`
	Description         string               `json:"description"`
	Categories          []string             `json:"categories"`
	IndustryIdentifiers []industryIdentifier `json:"industryIdentifiers"`
	Language            string               `json:"language"`
	CanonicalVolumeLink string               `json:"canonicalVolumeLink"`
	PublishedDate       string               `json:"publishedDate"`
}

type industryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// SearchByISBN queries for a single ISBN, optionally restricted to a
// language ("" means unrestricted).
func (c *Client) SearchByISBN(ctx context.Context, isbn13, language string) ([]metadata.Candidate, error) {
	return c.search(ctx, "isbn:"+isbn13, language)
}

// SearchTitleAuthor issues a quoted exact-title query, adding an author
// restriction when the hint is present.
func (c *Client) SearchTitleAuthor(ctx context.Context, title, author, language string) ([]metadata.Candidate, error) {
	q := fmt.Sprintf("intitle:%q", title)
	if author != "" {
		q += fmt.Sprintf(" inauthor:%q", author)
	}
	return c.search(ctx, q, language)
}

// SearchTitleVariants issues the three title query variants (quoted with
// language restriction, unquoted with language restriction, unquoted without)
// concurrently and unions the results by provider id, preserving variant
// order. Individual variant failures are absorbed; the union may be empty.
func (c *Client) SearchTitleVariants(ctx context.Context, title, language string) ([]metadata.Candidate, error) {
	queries := []struct {
		q    string
		lang string
	}{
		{fmt.Sprintf("intitle:%q", title), language},
		{"intitle:" + title, language},
		{"intitle:" + title, ""},
	}

	results := make([][]metadata.Candidate, len(queries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			candidates, err := c.search(gctx, query.q, query.lang)
			if err != nil {
				c.log.Err(err).Warn("title variant search failed", logger.Data{"query": query.q})
				return nil
			}
			mu.Lock()
			results[i] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}

	var union []metadata.Candidate
	seen := make(map[string]struct{})
	for _, candidates := range results {
		for _, candidate := range candidates {
			if _, ok := seen[candidate.ProviderID]; ok {
				continue
			}
			seen[candidate.ProviderID] = struct{}{}
			union = append(union, candidate)
		}
	}
	return union, nil
}

func (c *Client) search(ctx context.Context, query, language string) ([]metadata.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("printType", "books")
	params.Set("projection", "full")
	params.Set("maxResults", strconv.Itoa(defaultMaxResults))
	params.Set("fields", volumeFields)
	if language != "" {
		params.Set("langRestrict", language)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create volumes request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query volumes")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("volumes search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read volumes response")
	}

	var payload volumesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse volumes JSON")
	}

	c.log.Debug("volumes search", logger.Data{
		"query":    query,
		"language": language,
		"items":    len(payload.Items),
		"elapsed":  time.Since(start).String(),
	})

	candidates := make([]metadata.Candidate, 0, len(payload.Items))
	for _, item := range payload.Items {
		candidates = append(candidates, toCandidate(item))
	}
	return candidates, nil
}

func toCandidate(v volume) metadata.Candidate {
	ids := make([]metadata.Identifier, 0, len(v.VolumeInfo.IndustryIdentifiers))
	for _, id := range v.VolumeInfo.IndustryIdentifiers {
		ids = append(ids, metadata.Identifier{Type: id.Type, Value: id.Identifier})
	}

	return metadata.Candidate{
		ProviderID:    v.ID,
		Title:         v.VolumeInfo.Title,
		Subtitle:      v.VolumeInfo.Subtitle,
		Authors:       v.VolumeInfo.Authors,
		Description:   v.VolumeInfo.Description,
		Language:      v.VolumeInfo.Language,
		Categories:    v.VolumeInfo.Categories,
		Identifiers:   ids,
		PublishedDate: v.VolumeInfo.PublishedDate,
		CanonicalLink: v.VolumeInfo.CanonicalVolumeLink,
	}
}
