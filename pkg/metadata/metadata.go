// Package metadata holds the record types shared between the provider
// adapters and the reconciliation engine. Candidates and work entities are
// request-scoped inputs; CanonicalRecord is the one reconciled output.
package metadata

import (
	"github.com/livrario/ingest/pkg/identifiers"
)

// Identifier is a typed identifier as declared by a provider (e.g. ISBN_10,
// ISBN_13, or a provider-specific scheme).
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"identifier"`
}

// Candidate is one provider's raw, unreconciled view of a book edition.
// Candidates are never mutated after the adapter builds them; the engine
// builds new records instead of patching these in place.
type Candidate struct {
	ProviderID    string       `json:"provider_id"`
	Title         string       `json:"title"`
	Subtitle      string       `json:"subtitle,omitempty"`
	Authors       []string     `json:"authors"`
	Description   string       `json:"description"`
	Language      string       `json:"language"`
	Categories    []string     `json:"categories"`
	Identifiers   []Identifier `json:"identifiers"`
	PublishedDate string       `json:"published_date"`
	CanonicalLink string       `json:"canonical_link"`
}

// ISBN13s extracts the candidate's declared ISBN-13 identifiers in canonical
// form, deduplicated and order-preserving.
func (c *Candidate) ISBN13s() []string {
	var out []string
	for _, id := range c.Identifiers {
		if id.Type != "ISBN_13" {
			continue
		}
		v := identifiers.Digits(id.Value)
		if identifiers.IsISBN13(v) {
			out = append(out, v)
		}
	}
	return identifiers.Dedup(out)
}

// HasRichMetadata reports whether the candidate carries a description and
// whether it carries categories. Candidates with neither are only useful as
// a last-resort title/author source.
func (c *Candidate) HasRichMetadata() (hasDescription, hasCategories bool) {
	return c.Description != "", len(c.Categories) > 0
}

// WorkEntity is the abstract work behind one or more editions, as resolved
// from the work graph. Tags may be incomplete at the work level; the edition
// scan fills them in.
type WorkEntity struct {
	Key              string   `json:"key"`
	Tags             []string `json:"tags"`
	Description      string   `json:"description"`
	FirstPublishYear int      `json:"first_publish_year"`
	EditionCount     int      `json:"edition_count"`
}

// AuthorBio is a resolved biographical extract for a person name.
type AuthorBio struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Language  string `json:"lang"`
	SourceURL string `json:"url"`
}

// AuthorEntry is one author on the canonical record, with its bio when one
// could be resolved.
type AuthorEntry struct {
	Name         string `json:"name"`
	Bio          string `json:"bio,omitempty"`
	BioLanguage  string `json:"bio_lang,omitempty"`
	WikipediaURL string `json:"wikipedia_url,omitempty"`
}

// WorkSummary carries the resolved work's aggregate stats on the canonical
// record.
type WorkSummary struct {
	WorkID           string `json:"work_id"`
	EditionCount     int    `json:"edition_count"`
	FirstPublishYear int    `json:"first_publish_year"`
}

// SourcesUsed records which providers contributed to a canonical record.
type SourcesUsed struct {
	GoogleBooks    bool `json:"google_books"`
	OpenLibrary    bool `json:"openlibrary"`
	Wikipedia      bool `json:"wikipedia"`
	LibreTranslate bool `json:"libretranslate"`
}

// CanonicalRecord is the reconciled result of one reconciliation request.
type CanonicalRecord struct {
	// ID is the work key when one resolved, else a provider-prefixed
	// synthetic id. Never empty.
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Authors []AuthorEntry `json:"authors"`

	PreferredISBN13 string   `json:"preferred_isbn13"`
	AllISBN13       []string `json:"all_isbn13"`

	// Genres is the final genre list (canonical labels first, then the raw
	// tags that produced them); GenresRaw is the aggregated tag set behind
	// it. GenresSearch/GenresSearchRaw hold the provisional set derived from
	// bibliographic-search categories, kept separately so the precedence
	// policy stays visible in the output.
	Genres          []string `json:"genres"`
	GenresRaw       []string `json:"genres_raw"`
	GenresSearch    []string `json:"genres_search"`
	GenresSearchRaw []string `json:"genres_search_raw"`

	Synopsis               string `json:"synopsis"`
	SynopsisSourceLanguage string `json:"synopsis_source_lang,omitempty"`
	// SynopsisTranslation is the translation provider on success, or the
	// degradation reason ("empty", "no-provider", "provider-error:<code>",
	// "provider-exc:<desc>"). Empty when no translation was attempted.
	SynopsisTranslation string `json:"synopsis_translation,omitempty"`

	ProviderVolumeID string `json:"google_volume_id"`
	Language         string `json:"language"`
	CanonicalLink    string `json:"canonical_volume_link,omitempty"`
	PublishedDate    string `json:"published_date,omitempty"`

	Work        *WorkSummary `json:"openlibrary,omitempty"`
	SourcesUsed SourcesUsed  `json:"sources_used"`
}
