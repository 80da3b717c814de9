package reconcile

import (
	"context"
	"testing"

	"github.com/livrario/ingest/pkg/config"
	"github.com/livrario/ingest/pkg/errcodes"
	"github.com/livrario/ingest/pkg/metadata"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	byISBN        func(isbn, lang string) ([]metadata.Candidate, error)
	titleAuthor   func(title, author, lang string) ([]metadata.Candidate, error)
	titleVariants func(title, lang string) ([]metadata.Candidate, error)
}

func (s *stubSearcher) SearchByISBN(_ context.Context, isbn, lang string) ([]metadata.Candidate, error) {
	if s.byISBN == nil {
		return nil, nil
	}
	return s.byISBN(isbn, lang)
}

func (s *stubSearcher) SearchTitleAuthor(_ context.Context, title, author, lang string) ([]metadata.Candidate, error) {
	if s.titleAuthor == nil {
		return nil, nil
	}
	return s.titleAuthor(title, author, lang)
}

func (s *stubSearcher) SearchTitleVariants(_ context.Context, title, lang string) ([]metadata.Candidate, error) {
	if s.titleVariants == nil {
		return nil, nil
	}
	return s.titleVariants(title, lang)
}

type editionScan struct {
	workKey string
	budget  int
}

type stubWorks struct {
	workForISBN  map[string]string
	titleWorkKey string
	titleISBNs   []string
	workTags     map[string][]string
	workDesc     map[string]string
	editionTags  map[string][]string
	relatedKeys  []string
	editionCount int
	firstYear    int

	scans []editionScan
}

func (s *stubWorks) ResolveWorkFromISBN(_ context.Context, isbn13 string) (string, error) {
	return s.workForISBN[isbn13], nil
}

func (s *stubWorks) SearchTitle(_ context.Context, _, _ string, _ int) (string, []string, error) {
	return s.titleWorkKey, s.titleISBNs, nil
}

func (s *stubWorks) WorkTagsAndDescription(_ context.Context, workKey string) ([]string, string, error) {
	return s.workTags[workKey], s.workDesc[workKey], nil
}

func (s *stubWorks) CollectEditionTags(_ context.Context, workKey string, scanBudget int) ([]string, error) {
	s.scans = append(s.scans, editionScan{workKey: workKey, budget: scanBudget})
	return s.editionTags[workKey], nil
}

func (s *stubWorks) SearchRelatedWorks(_ context.Context, _ string, _ int) ([]string, error) {
	return s.relatedKeys, nil
}

func (s *stubWorks) WorkStats(_ context.Context, _ string) (int, int, error) {
	return s.editionCount, s.firstYear, nil
}

type stubEncyclopedia struct {
	bios map[string]*metadata.AuthorBio
	err  error
}

func (s *stubEncyclopedia) FetchBio(_ context.Context, name string) (*metadata.AuthorBio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bios[name], nil
}

type stubTranslator struct {
	translate func(text, sourceLang, targetLang string) (string, string)
	calls     int
}

func (s *stubTranslator) Translate(_ context.Context, text, sourceLang, targetLang string) (string, string) {
	s.calls++
	if s.translate == nil {
		return text, "no-provider"
	}
	return s.translate(text, sourceLang, targetLang)
}

func testConfig() *config.Config {
	return &config.Config{
		PreferredLanguage: "es",
		SecondaryLanguage: "en",
		EditionScanBudget: 60,
		TranslateSynopsis: true,
	}
}

func newTestEngine(search BibliographicSearcher, works WorkGraph, enc Encyclopedia, tr Translator) *Engine {
	if search == nil {
		search = &stubSearcher{}
	}
	if works == nil {
		works = &stubWorks{}
	}
	if enc == nil {
		enc = &stubEncyclopedia{}
	}
	if tr == nil {
		tr = &stubTranslator{}
	}
	return New(testConfig(), search, works, enc, tr)
}

func richCandidate(id, lang string, isbns ...string) metadata.Candidate {
	ids := make([]metadata.Identifier, 0, len(isbns))
	for _, v := range isbns {
		ids = append(ids, metadata.Identifier{Type: "ISBN_13", Value: v})
	}
	return metadata.Candidate{
		ProviderID:    id,
		Title:         "La sombra del viento",
		Authors:       []string{"Carlos Ruiz Zafón"},
		Description:   "Un muchacho descubre un libro misterioso.",
		Language:      lang,
		Categories:    []string{"Fiction"},
		Identifiers:   ids,
		PublishedDate: "2001",
		CanonicalLink: "https://books.example/" + id,
	}
}

func TestReconcileRequiresISBNOrTitle(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{})
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, errcodes.ValidationError("")))
}

func TestReconcileNotFound(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{Title: "A Book Nobody Wrote"})
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, errcodes.NotFound("")))
}

func TestReconcileByISBN(t *testing.T) {
	candidate := richCandidate("vol-1", "es", "978-84-08-16338-1")
	search := &stubSearcher{
		byISBN: func(isbn, lang string) ([]metadata.Candidate, error) {
			if isbn == "9788408163381" && lang == "es" {
				return []metadata.Candidate{candidate}, nil
			}
			return nil, nil
		},
	}
	works := &stubWorks{
		workForISBN:  map[string]string{"9788408163381": "/works/OL123W"},
		workTags:     map[string][]string{"/works/OL123W": {"Fantasy"}},
		editionTags:  map[string][]string{"/works/OL123W": {"Magic", "Fantasy"}},
		editionCount: 42,
		firstYear:    2001,
	}
	enc := &stubEncyclopedia{bios: map[string]*metadata.AuthorBio{
		"Carlos Ruiz Zafón": {
			Name:      "Carlos Ruiz Zafón",
			Bio:       "Novelista español.",
			Language:  "es",
			SourceURL: "https://es.wikipedia.org/wiki/Carlos_Ruiz_Zafón",
		},
	}}
	tr := &stubTranslator{}
	engine := newTestEngine(search, works, enc, tr)

	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "978-84-08-16338-1"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "OL123W", rec.ID)
	assert.Equal(t, "La sombra del viento", rec.Title)
	assert.Equal(t, "9788408163381", rec.PreferredISBN13)
	assert.Equal(t, []string{"9788408163381"}, rec.AllISBN13)
	assert.Equal(t, "Un muchacho descubre un libro misterioso.", rec.Synopsis)
	assert.Equal(t, "es", rec.SynopsisSourceLanguage)
	assert.Empty(t, rec.SynopsisTranslation)
	assert.Equal(t, "vol-1", rec.ProviderVolumeID)

	// Work-graph tags win over search categories: canonical labels first,
	// then the raw tags.
	assert.Equal(t, []string{"Fantasía", "Fantasy", "Magic"}, rec.Genres)
	assert.Equal(t, []string{"Fantasy", "Magic"}, rec.GenresRaw)
	assert.Equal(t, []string{"Ficción"}, rec.GenresSearch)

	require.Len(t, rec.Authors, 1)
	assert.Equal(t, "Novelista español.", rec.Authors[0].Bio)
	assert.Equal(t, "es", rec.Authors[0].BioLanguage)

	require.NotNil(t, rec.Work)
	assert.Equal(t, "OL123W", rec.Work.WorkID)
	assert.Equal(t, 42, rec.Work.EditionCount)
	assert.Equal(t, 2001, rec.Work.FirstPublishYear)

	assert.True(t, rec.SourcesUsed.GoogleBooks)
	assert.True(t, rec.SourcesUsed.OpenLibrary)
	assert.True(t, rec.SourcesUsed.Wikipedia)
	assert.False(t, rec.SourcesUsed.LibreTranslate)

	// Same-language synopsis is never sent to the translator.
	assert.Zero(t, tr.calls)
}

func TestReconcileTranslatesForeignSynopsis(t *testing.T) {
	candidate := richCandidate("vol-en", "en", "9780143034902")
	candidate.Description = "A boy discovers a mysterious book."
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	tr := &stubTranslator{
		translate: func(text, sourceLang, targetLang string) (string, string) {
			assert.Equal(t, "en", sourceLang)
			assert.Equal(t, "es", targetLang)
			return "Un chico descubre un libro misterioso.", "libretranslate"
		},
	}
	engine := newTestEngine(search, nil, nil, tr)

	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "9780143034902"})
	require.NoError(t, err)

	assert.Equal(t, "Un chico descubre un libro misterioso.", rec.Synopsis)
	assert.Equal(t, "en", rec.SynopsisSourceLanguage)
	assert.Equal(t, "libretranslate", rec.SynopsisTranslation)
	assert.True(t, rec.SourcesUsed.LibreTranslate)
}

func TestReconcileTranslationUnconfigured(t *testing.T) {
	candidate := richCandidate("vol-en", "en", "9780143034902")
	candidate.Description = "A boy discovers a mysterious book."
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	engine := newTestEngine(search, nil, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "9780143034902"})
	require.NoError(t, err)

	// The synopsis passes through untouched with the reason recorded.
	assert.Equal(t, "A boy discovers a mysterious book.", rec.Synopsis)
	assert.Equal(t, "no-provider", rec.SynopsisTranslation)
	assert.False(t, rec.SourcesUsed.LibreTranslate)
}

func TestReconcileTranslateDisabled(t *testing.T) {
	candidate := richCandidate("vol-en", "en", "9780143034902")
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	tr := &stubTranslator{}
	engine := newTestEngine(search, nil, nil, tr)

	rec, err := engine.Reconcile(context.Background(), &Request{
		ISBN:      "9780143034902",
		Translate: pointerutil.Bool(false),
	})
	require.NoError(t, err)
	assert.Zero(t, tr.calls)
	assert.Empty(t, rec.SynopsisTranslation)
}

func TestReconcileNoUsableISBN(t *testing.T) {
	candidate := richCandidate("vol-no-isbn", "es")
	search := &stubSearcher{
		titleVariants: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	engine := newTestEngine(search, nil, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{Title: "La sombra del viento"})
	assert.True(t, errors.Is(err, errcodes.NoUsableISBN()))

	// The record still comes back for callers that can live without the
	// identifier.
	require.NotNil(t, rec)
	assert.Equal(t, "GB:vol-no-isbn", rec.ID)
	assert.Empty(t, rec.PreferredISBN13)
}

func TestReconcileTitleFallbackThroughWorkGraph(t *testing.T) {
	candidate := richCandidate("vol-2", "es", "9780306406157", "9788408163381")
	search := &stubSearcher{
		byISBN: func(isbn, _ string) ([]metadata.Candidate, error) {
			if isbn == "9780306406157" {
				return []metadata.Candidate{candidate}, nil
			}
			return nil, nil
		},
	}
	works := &stubWorks{
		titleWorkKey: "/works/OL77W",
		titleISBNs:   []string{"9780306406157"},
	}
	engine := newTestEngine(search, works, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{Title: "La sombra del viento"})
	require.NoError(t, err)

	// The harvested identifier that produced the hit becomes the preferred
	// one, and the hinted work key sticks.
	assert.Equal(t, "9780306406157", rec.PreferredISBN13)
	assert.Equal(t, []string{"9780306406157", "9788408163381"}, rec.AllISBN13)
	assert.Equal(t, "OL77W", rec.ID)
	assert.True(t, rec.SourcesUsed.OpenLibrary)
}

func TestReconcileFallbackFillsDescription(t *testing.T) {
	primary := metadata.Candidate{
		ProviderID:  "es-cats",
		Title:       "Dune",
		Language:    "es",
		Categories:  []string{"Science Fiction"},
		Identifiers: []metadata.Identifier{{Type: "ISBN_13", Value: "9780441013593"}},
	}
	fallback := metadata.Candidate{
		ProviderID:  "en-rich",
		Title:       "Dune",
		Language:    "en",
		Description: "<p>Desert planet epic.</p>",
		Categories:  []string{"Science Fiction", "Classics"},
	}
	search := &stubSearcher{
		titleVariants: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{primary, fallback}, nil
		},
	}
	engine := newTestEngine(search, nil, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{
		Title:     "Dune",
		Translate: pointerutil.Bool(false),
	})
	require.NoError(t, err)

	// The primary stays the preferred-language pick, but the fallback's
	// description is adopted along with its language.
	assert.Equal(t, "es-cats", rec.ProviderVolumeID)
	assert.Equal(t, "Desert planet epic.", rec.Synopsis)
	assert.Equal(t, "en", rec.SynopsisSourceLanguage)
	assert.Equal(t, "es", rec.Language)
}

func TestReconcileSharedEditionScanBudget(t *testing.T) {
	candidate := richCandidate("vol-3", "es", "9788408163381")
	search := &stubSearcher{
		titleVariants: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	works := &stubWorks{
		relatedKeys: []string{"/works/OL1W", "/works/OL2W", "/works/OL1W", "/works/OL3W"},
	}
	engine := newTestEngine(search, works, nil, nil)

	_, err := engine.Reconcile(context.Background(), &Request{
		Title:      "La sombra del viento",
		ScanBudget: pointerutil.Int(25),
	})
	require.NoError(t, err)

	// No primary work resolved, so the siblings share the whole budget: 10,
	// 10, then the 5 that remain. The repeated key is visited once.
	assert.Equal(t, []editionScan{
		{workKey: "/works/OL1W", budget: 10},
		{workKey: "/works/OL2W", budget: 10},
		{workKey: "/works/OL3W", budget: 5},
	}, works.scans)
}

func TestReconcilePrimaryWorkConsumesBudgetFirst(t *testing.T) {
	candidate := richCandidate("vol-4", "es", "9788408163381")
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	works := &stubWorks{
		workForISBN: map[string]string{"9788408163381": "/works/OL9W"},
		relatedKeys: []string{"/works/OL5W"},
	}
	engine := newTestEngine(search, works, nil, nil)

	_, err := engine.Reconcile(context.Background(), &Request{
		ISBN:       "9788408163381",
		Title:      "La sombra del viento",
		ScanBudget: pointerutil.Int(30),
	})
	require.NoError(t, err)

	// The primary work may spend everything; exhausted siblings are still
	// visited for work-level tags but scan no editions.
	assert.Equal(t, []editionScan{{workKey: "/works/OL9W", budget: 30}}, works.scans)
}

func TestReconcileZeroScanBudget(t *testing.T) {
	candidate := richCandidate("vol-5", "es", "9788408163381")
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	works := &stubWorks{
		workForISBN: map[string]string{"9788408163381": "/works/OL9W"},
		workTags:    map[string][]string{"/works/OL9W": {"Fantasy"}},
	}
	engine := newTestEngine(search, works, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{
		ISBN:       "9788408163381",
		ScanBudget: pointerutil.Int(0),
	})
	require.NoError(t, err)

	// Work-level tags still arrive; the edition scan never runs.
	assert.Empty(t, works.scans)
	assert.Equal(t, []string{"Fantasy"}, rec.GenresRaw)
}

func TestReconcileWorkDescriptionCompletesSynopsis(t *testing.T) {
	candidate := richCandidate("vol-6", "es", "9788408163381")
	candidate.Description = ""
	candidate.Language = ""
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	works := &stubWorks{
		workForISBN: map[string]string{"9788408163381": "/works/OL9W"},
		workDesc:    map[string]string{"/works/OL9W": "<b>From the work graph.</b>"},
	}
	engine := newTestEngine(search, works, nil, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "9788408163381"})
	require.NoError(t, err)

	assert.Equal(t, "From the work graph.", rec.Synopsis)
	assert.Equal(t, "unknown", rec.SynopsisSourceLanguage)
	assert.Equal(t, "no-provider", rec.SynopsisTranslation)
}

func TestReconcileGenrePolicySearchFirst(t *testing.T) {
	newEngine := func() (*Engine, *stubWorks) {
		candidate := richCandidate("vol-7", "es", "9788408163381")
		candidate.Categories = []string{"Horror"}
		search := &stubSearcher{
			byISBN: func(_, _ string) ([]metadata.Candidate, error) {
				return []metadata.Candidate{candidate}, nil
			},
		}
		works := &stubWorks{
			workForISBN: map[string]string{"9788408163381": "/works/OL9W"},
			workTags:    map[string][]string{"/works/OL9W": {"Fantasy"}},
		}
		return newTestEngine(search, works, nil, nil), works
	}

	engine, _ := newEngine()
	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "9788408163381"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Fantasía", "Fantasy"}, rec.Genres)

	engine, _ = newEngine()
	engine.SetGenrePolicy(GenrePolicySearchFirst)
	rec, err = engine.Reconcile(context.Background(), &Request{ISBN: "9788408163381"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Terror"}, rec.Genres)
	assert.Equal(t, []string{"Horror"}, rec.GenresRaw)
}

func TestReconcileAbsorbsEncyclopediaFailure(t *testing.T) {
	candidate := richCandidate("vol-8", "es", "9788408163381")
	search := &stubSearcher{
		byISBN: func(_, _ string) ([]metadata.Candidate, error) {
			return []metadata.Candidate{candidate}, nil
		},
	}
	enc := &stubEncyclopedia{err: errors.New("encyclopedia down")}
	engine := newTestEngine(search, nil, enc, nil)

	rec, err := engine.Reconcile(context.Background(), &Request{ISBN: "9788408163381"})
	require.NoError(t, err)

	require.Len(t, rec.Authors, 1)
	assert.Equal(t, "Carlos Ruiz Zafón", rec.Authors[0].Name)
	assert.Empty(t, rec.Authors[0].Bio)
	assert.False(t, rec.SourcesUsed.Wikipedia)
}
