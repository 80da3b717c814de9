package reconcile

import (
	"context"

	"github.com/livrario/ingest/pkg/metadata"
)

// BibliographicSearcher is the candidate-acquisition capability (Google
// Books in production). Errors are absorbed by the engine as "no data".
type BibliographicSearcher interface {
	SearchByISBN(ctx context.Context, isbn13, language string) ([]metadata.Candidate, error)
	SearchTitleAuthor(ctx context.Context, title, author, language string) ([]metadata.Candidate, error)
	SearchTitleVariants(ctx context.Context, title, language string) ([]metadata.Candidate, error)
}

// WorkGraph resolves abstract works and aggregates tags across editions
// (Open Library in production).
type WorkGraph interface {
	ResolveWorkFromISBN(ctx context.Context, isbn13 string) (string, error)
	SearchTitle(ctx context.Context, title, language string, limit int) (workKey string, isbn13s []string, err error)
	WorkTagsAndDescription(ctx context.Context, workKey string) (tags []string, description string, err error)
	CollectEditionTags(ctx context.Context, workKey string, scanBudget int) ([]string, error)
	SearchRelatedWorks(ctx context.Context, title string, limit int) ([]string, error)
	WorkStats(ctx context.Context, workKey string) (editionCount, firstPublishYear int, err error)
}

// Encyclopedia resolves short biographical extracts for person names
// (Wikipedia in production). A nil bio with nil error means "no article".
type Encyclopedia interface {
	FetchBio(ctx context.Context, name string) (*metadata.AuthorBio, error)
}

// Translator is best-effort translation. It never fails: the second result
// is the provider name on success or a degradation reason code.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, string)
}
