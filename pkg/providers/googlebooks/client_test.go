package googlebooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/livrario/ingest/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return New(&config.Config{
		GoogleBooksBaseURL: baseURL,
		HTTPTimeout:        5 * time.Second,
		UserAgent:          "livrario-ingest-test",
	})
}

const volumePayload = `{
	"items": [
		{
			"id": "zyTCAlFPjgYC",
			"volumeInfo": {
				"title": "The Google Story",
				"subtitle": "Inside the Hottest Business",
				"authors": ["David A. Vise", "Mark Malseed"],
				"description": "<b>The</b> definitive account.",
				"categories": ["Business & Economics"],
				"industryIdentifiers": [
					{"type": "ISBN_13", "identifier": "978-0-553-80457-7"},
					{"type": "ISBN_10", "identifier": "055380457X"}
				],
				"language": "en",
				"canonicalVolumeLink": "https://books.google.com/books/about/The_Google_Story.html",
				"publishedDate": "2005-11-15"
			}
		}
	]
}`

func TestSearchByISBN(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		assert.Equal(t, "es", r.URL.Query().Get("langRestrict"))
		assert.Equal(t, "books", r.URL.Query().Get("printType"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(volumePayload))
	}))
	defer server.Close()

	client := testClient(server.URL)
	candidates, err := client.SearchByISBN(context.Background(), "9780553804577", "es")
	require.NoError(t, err)
	assert.Equal(t, "isbn:9780553804577", query)

	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "zyTCAlFPjgYC", c.ProviderID)
	assert.Equal(t, "The Google Story", c.Title)
	assert.Equal(t, []string{"David A. Vise", "Mark Malseed"}, c.Authors)
	assert.Equal(t, "en", c.Language)
	assert.Equal(t, "2005-11-15", c.PublishedDate)
	require.Len(t, c.Identifiers, 2)
	assert.Equal(t, "ISBN_13", c.Identifiers[0].Type)

	// Only the canonical-form ISBN-13 survives extraction.
	assert.Equal(t, []string{"9780553804577"}, c.ISBN13s())
}

func TestSearchByISBNUnrestrictedLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasLang := r.URL.Query()["langRestrict"]
		assert.False(t, hasLang)
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	candidates, err := client.SearchByISBN(context.Background(), "9780553804577", "")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSearchTitleAuthorQuery(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.SearchTitleAuthor(context.Background(), "Dune", "Frank Herbert", "es")
	require.NoError(t, err)
	assert.Equal(t, `intitle:"Dune" inauthor:"Frank Herbert"`, query)

	_, err = client.SearchTitleAuthor(context.Background(), "Dune", "", "es")
	require.NoError(t, err)
	assert.Equal(t, `intitle:"Dune"`, query)
}

func TestSearchTitleVariantsUnion(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		q := r.URL.Query().Get("q")
		_, restricted := r.URL.Query()["langRestrict"]

		switch {
		case q == `intitle:"Dune"`:
			_, _ = w.Write([]byte(`{"items": [{"id": "quoted", "volumeInfo": {"title": "Dune"}}]}`))
		case restricted:
			_, _ = w.Write([]byte(`{"items": [{"id": "quoted", "volumeInfo": {"title": "Dune"}}, {"id": "loose", "volumeInfo": {"title": "Dune"}}]}`))
		default:
			_, _ = w.Write([]byte(`{"items": [{"id": "anylang", "volumeInfo": {"title": "Dune"}}]}`))
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	candidates, err := client.SearchTitleVariants(context.Background(), "Dune", "es")
	require.NoError(t, err)

	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))

	// Union by provider id, variant order preserved.
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ProviderID)
	}
	assert.Equal(t, []string{"quoted", "loose", "anylang"}, ids)
}

func TestSearchTitleVariantsAbsorbsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == `intitle:"Dune"` {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"items": [{"id": "ok", "volumeInfo": {"title": "Dune"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	candidates, err := client.SearchTitleVariants(context.Background(), "Dune", "es")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "ok", candidates[0].ProviderID)
}

func TestSearchNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.SearchByISBN(context.Background(), "9780553804577", "es")
	assert.Error(t, err)
}
