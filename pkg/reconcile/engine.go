// Package reconcile merges the views of the bibliographic-search, work-graph,
// encyclopedia, and translation providers into one canonical book record.
// Provider failures are absorbed as missing data; the only terminal errors a
// caller sees are the errcodes outcomes.
package reconcile

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/livrario/ingest/pkg/config"
	"github.com/livrario/ingest/pkg/errcodes"
	"github.com/livrario/ingest/pkg/genres"
	"github.com/livrario/ingest/pkg/htmlutil"
	"github.com/livrario/ingest/pkg/identifiers"
	"github.com/livrario/ingest/pkg/metadata"
	"github.com/livrario/ingest/pkg/providers/googlebooks"
	"github.com/livrario/ingest/pkg/providers/openlibrary"
	"github.com/livrario/ingest/pkg/providers/translate"
	"github.com/livrario/ingest/pkg/providers/wikipedia"
	"github.com/robinjoseph08/golib/logger"
)

// GenrePolicy selects which tag source wins when both the work graph and the
// bibliographic search produced genres.
type GenrePolicy string

const (
	// GenrePolicyWorkGraphFirst prefers aggregated work-graph tags and falls
	// back to search categories only when the aggregation came back empty.
	GenrePolicyWorkGraphFirst GenrePolicy = "workgraph-first"
	// GenrePolicySearchFirst prefers the search-derived genres.
	GenrePolicySearchFirst GenrePolicy = "search-first"
)

// relatedWorksLimit bounds how many sibling works the tag aggregation may
// visit, and how many editions each of them may contribute to the scan budget.
const relatedWorksLimit = 10

// titleSearchLimit is how many work-graph documents the title fallback ranks
// and harvests identifier candidates from.
const titleSearchLimit = 5

// Request describes one reconciliation. At least one of ISBN or Title must be
// set. Nil optionals take the engine defaults.
type Request struct {
	ISBN              string
	Title             string
	AuthorHint        string
	PreferredLanguage string
	ScanBudget        *int
	Translate         *bool
}

type Engine struct {
	search       BibliographicSearcher
	works        WorkGraph
	encyclopedia Encyclopedia
	translator   Translator

	log               logger.Logger
	preferredLanguage string
	scanBudget        int
	translateDefault  bool
	genrePolicy       GenrePolicy
}

func New(cfg *config.Config, search BibliographicSearcher, works WorkGraph, encyclopedia Encyclopedia, translator Translator) *Engine {
	return &Engine{
		search:            search,
		works:             works,
		encyclopedia:      encyclopedia,
		translator:        translator,
		log:               logger.New(),
		preferredLanguage: cfg.PreferredLanguage,
		scanBudget:        cfg.EditionScanBudget,
		translateDefault:  cfg.TranslateSynopsis,
		genrePolicy:       GenrePolicyWorkGraphFirst,
	}
}

// NewFromConfig wires an engine against the production provider clients.
func NewFromConfig(cfg *config.Config) *Engine {
	return New(cfg, googlebooks.New(cfg), openlibrary.New(cfg), wikipedia.New(cfg), translate.New(cfg))
}

// SetGenrePolicy overrides the default genre precedence.
func (e *Engine) SetGenrePolicy(policy GenrePolicy) {
	e.genrePolicy = policy
}

// Reconcile runs the full pipeline for one request. When the reconciled
// record has no valid ISBN-13, the record is returned alongside an
// errcodes.NoUsableISBN error so callers can still use it where identifiers
// are optional.
func (e *Engine) Reconcile(ctx context.Context, req *Request) (*metadata.CanonicalRecord, error) {
	isbn := identifiers.Digits(req.ISBN)
	title := strings.TrimSpace(req.Title)
	if isbn == "" && title == "" {
		return nil, errcodes.ValidationError("Either an ISBN or a title is required.")
	}

	lang := req.PreferredLanguage
	if lang == "" {
		lang = e.preferredLanguage
	}
	budget := e.scanBudget
	if req.ScanBudget != nil {
		budget = *req.ScanBudget
	}
	translateFlag := e.translateDefault
	if req.Translate != nil {
		translateFlag = *req.Translate
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	log := e.log.ID(id.String()).Root(logger.Data{"isbn": isbn, "title": title})
	ctx = log.WithContext(ctx)

	var sources metadata.SourcesUsed

	candidates, preferISBN, workKeyHint := e.acquire(ctx, isbn, title, req.AuthorHint, lang, &sources)
	if len(candidates) == 0 {
		log.Info("no candidates after all acquisition attempts")
		return nil, errcodes.NotFound("book")
	}
	sources.GoogleBooks = true

	primary, fallback := ChooseBest(candidates, lang, title)

	allISBN13 := primary.ISBN13s()
	if fallback != nil && fallback != primary {
		allISBN13 = identifiers.Dedup(append(allISBN13, fallback.ISBN13s()...))
	}

	workKey := workKeyHint
	if workKey == "" && len(allISBN13) > 0 {
		workKey = e.resolveWork(ctx, preferISBN, allISBN13)
	}
	if workKey != "" {
		sources.OpenLibrary = true
	}

	bios := e.fetchBios(ctx, primary.Authors, &sources)

	rec := e.buildRecord(ctx, primary, fallback, allISBN13, workKey, bios, preferISBN, translateFlag, lang)
	e.mergeWorkGraph(ctx, rec, workKey, title, budget, translateFlag, lang, &sources)

	if translate.Succeeded(rec.SynopsisTranslation) {
		sources.LibreTranslate = true
	}
	rec.SourcesUsed = sources

	if !identifiers.IsISBN13(rec.PreferredISBN13) {
		return rec, errcodes.NoUsableISBN()
	}
	return rec, nil
}

// acquire runs the candidate acquisition ladder: identifier search in the
// preferred language, then unrestricted; or title search plus variants, then
// the work-graph title fallback that trades a title for identifier candidates
// to retry the identifier search with.
func (e *Engine) acquire(ctx context.Context, isbn, title, authorHint, lang string, sources *metadata.SourcesUsed) (candidates []metadata.Candidate, preferISBN, workKeyHint string) {
	log := logger.FromContext(ctx)

	if isbn != "" {
		candidates = e.searchByISBN(ctx, isbn, lang)
		if len(candidates) == 0 {
			candidates = e.searchByISBN(ctx, isbn, "")
		}
		if len(candidates) > 0 {
			return candidates, isbn, ""
		}
	}

	if title == "" {
		return nil, "", ""
	}

	byAuthor, err := e.search.SearchTitleAuthor(ctx, title, authorHint, lang)
	if err != nil {
		log.Err(err).Warn("title/author search failed")
	}
	variants, err := e.search.SearchTitleVariants(ctx, title, lang)
	if err != nil {
		log.Err(err).Warn("title variant search failed")
	}

	seen := make(map[string]struct{})
	for _, c := range append(byAuthor, variants...) {
		if _, ok := seen[c.ProviderID]; ok {
			continue
		}
		seen[c.ProviderID] = struct{}{}
		candidates = append(candidates, c)
	}
	if len(candidates) > 0 {
		return candidates, "", ""
	}

	// Last resort: resolve the title in the work graph and retry the
	// identifier search with its harvested candidates.
	wk, isbnCandidates, err := e.works.SearchTitle(ctx, title, lang, titleSearchLimit)
	if err != nil {
		log.Err(err).Warn("work-graph title search failed")
	}
	if wk != "" {
		workKeyHint = wk
		sources.OpenLibrary = true
	}
	for _, cand := range isbnCandidates {
		if !identifiers.IsISBN13(cand) {
			continue
		}
		if found := e.searchByISBN(ctx, cand, lang); len(found) > 0 {
			return found, cand, workKeyHint
		}
	}
	return nil, "", workKeyHint
}

func (e *Engine) searchByISBN(ctx context.Context, isbn, lang string) []metadata.Candidate {
	candidates, err := e.search.SearchByISBN(ctx, isbn, lang)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("isbn search failed", logger.Data{"language": lang})
		return nil
	}
	return candidates
}

// resolveWork tries the preferred identifier first, then the rest of the
// union, and returns the first work key that resolves.
func (e *Engine) resolveWork(ctx context.Context, preferISBN string, allISBN13 []string) string {
	log := logger.FromContext(ctx)

	ordered := allISBN13
	if preferISBN != "" {
		ordered = identifiers.Dedup(append([]string{preferISBN}, allISBN13...))
	}
	for _, isbn := range ordered {
		if !identifiers.IsISBN13(isbn) {
			continue
		}
		wk, err := e.works.ResolveWorkFromISBN(ctx, isbn)
		if err != nil {
			log.Err(err).Warn("work resolution failed", logger.Data{"isbn": isbn})
			continue
		}
		if wk != "" {
			return wk
		}
	}
	return ""
}

func (e *Engine) fetchBios(ctx context.Context, authors []string, sources *metadata.SourcesUsed) map[string]*metadata.AuthorBio {
	log := logger.FromContext(ctx)

	bios := make(map[string]*metadata.AuthorBio, len(authors))
	for _, name := range authors {
		bio, err := e.encyclopedia.FetchBio(ctx, name)
		if err != nil {
			log.Err(err).Warn("bio fetch failed", logger.Data{"author": name})
			continue
		}
		bios[name] = bio
		if bio != nil {
			sources.Wikipedia = true
		}
	}
	return bios
}

// buildRecord assembles the base record from the ranked candidates. The
// fallback only fills fields the primary is missing; when its description is
// adopted, its language is adopted with it so the synopsis source language
// stays truthful.
func (e *Engine) buildRecord(ctx context.Context, primary, fallback *metadata.Candidate, allISBN13 []string, workKey string, bios map[string]*metadata.AuthorBio, preferISBN string, translateFlag bool, targetLang string) *metadata.CanonicalRecord {
	description := primary.Description
	descLang := primary.Language
	searchCats := primary.Categories

	if fallback != nil && fallback != primary {
		if description == "" && fallback.Description != "" {
			description = fallback.Description
			if fallback.Language != "" {
				descLang = fallback.Language
			}
		}
		if len(searchCats) == 0 && len(fallback.Categories) > 0 {
			searchCats = fallback.Categories
		}
	}

	preferred := preferISBN
	if !contains(allISBN13, preferred) {
		if len(allISBN13) > 0 {
			preferred = allISBN13[0]
		}
	}

	authors := make([]metadata.AuthorEntry, 0, len(primary.Authors))
	for _, name := range primary.Authors {
		entry := metadata.AuthorEntry{Name: name}
		if bio := bios[name]; bio != nil {
			entry.Bio = bio.Bio
			entry.BioLanguage = bio.Language
			entry.WikipediaURL = bio.SourceURL
		}
		authors = append(authors, entry)
	}

	finalID := "GB:" + primary.ProviderID
	if workKey != "" {
		finalID = strings.TrimPrefix(workKey, "/works/")
	}

	synopsisRaw := htmlutil.StripMarkup(description)
	synopsis := synopsisRaw
	srcLang := strings.ToLower(descLang)
	translation := ""
	if translateFlag && synopsisRaw != "" && srcLang != "" && srcLang != targetLang {
		synopsis, translation = e.translator.Translate(ctx, synopsisRaw, srcLang, targetLang)
	}

	genresSearch, genresSearchRaw := genres.Classify(searchCats)

	return &metadata.CanonicalRecord{
		ID:                     finalID,
		Title:                  primary.Title,
		Authors:                authors,
		PreferredISBN13:        preferred,
		AllISBN13:              allISBN13,
		Genres:                 []string{},
		GenresRaw:              []string{},
		GenresSearch:           genresSearch,
		GenresSearchRaw:        genresSearchRaw,
		Synopsis:               synopsis,
		SynopsisSourceLanguage: srcLang,
		SynopsisTranslation:    translation,
		ProviderVolumeID:       primary.ProviderID,
		Language:               primary.Language,
		CanonicalLink:          primary.CanonicalLink,
		PublishedDate:          primary.PublishedDate,
	}
}

// mergeWorkGraph is the second merge stage: aggregate tags across the primary
// work and its title siblings, complete the synopsis from the work description
// when the search stage produced none, apply the genre precedence policy, and
// attach the work summary.
func (e *Engine) mergeWorkGraph(ctx context.Context, rec *metadata.CanonicalRecord, workKey, title string, budget int, translateFlag bool, targetLang string, sources *metadata.SourcesUsed) {
	log := logger.FromContext(ctx)

	tags, workDesc := e.aggregateWorkTags(ctx, workKey, title, budget)
	if len(tags) > 0 || workDesc != "" {
		sources.OpenLibrary = true
	}

	if rec.Synopsis == "" && workDesc != "" {
		cleaned := htmlutil.StripMarkup(workDesc)
		synopsis := cleaned
		translation := ""
		if translateFlag {
			synopsis, translation = e.translator.Translate(ctx, cleaned, "", targetLang)
		}
		rec.Synopsis = synopsis
		if rec.SynopsisSourceLanguage == "" {
			rec.SynopsisSourceLanguage = "unknown"
		}
		if rec.SynopsisTranslation == "" {
			rec.SynopsisTranslation = translation
		}
	}

	workGraphHasTags := len(tags) > 0
	useWorkGraph := workGraphHasTags
	if e.genrePolicy == GenrePolicySearchFirst && len(rec.GenresSearch) > 0 {
		useWorkGraph = false
	}
	if useWorkGraph {
		mapped, _ := genres.Classify(tags)
		rec.Genres = identifiers.Dedup(append(mapped, tags...))
		rec.GenresRaw = tags
	} else {
		rec.Genres = rec.GenresSearch
		rec.GenresRaw = rec.GenresSearchRaw
	}

	if workKey != "" {
		editionCount, firstYear, err := e.works.WorkStats(ctx, workKey)
		if err != nil {
			log.Err(err).Warn("work stats failed", logger.Data{"work": workKey})
		}
		rec.Work = &metadata.WorkSummary{
			WorkID:           strings.TrimPrefix(workKey, "/works/"),
			EditionCount:     editionCount,
			FirstPublishYear: firstYear,
		}
	}
}

// aggregateWorkTags collects subject tags from the primary work and up to
// relatedWorksLimit title siblings. One shared budget caps the total number
// of editions scanned across all visited works; the primary work may consume
// all of it, each sibling at most relatedWorksLimit editions of what is left.
// Works are visited at most once.
func (e *Engine) aggregateWorkTags(ctx context.Context, workKey, title string, budget int) ([]string, string) {
	log := logger.FromContext(ctx)

	var tags []string
	workDesc := ""
	remaining := budget
	if remaining < 0 {
		remaining = 0
	}
	seen := make(map[string]struct{})

	addFromWork := func(wk string, perWork int) {
		if wk == "" {
			return
		}
		if _, ok := seen[wk]; ok {
			return
		}
		seen[wk] = struct{}{}

		workTags, desc, err := e.works.WorkTagsAndDescription(ctx, wk)
		if err != nil {
			log.Err(err).Warn("work tags fetch failed", logger.Data{"work": wk})
		}
		tags = append(tags, workTags...)
		if workDesc == "" && desc != "" {
			workDesc = desc
		}

		scan := perWork
		if scan > remaining {
			scan = remaining
		}
		if scan > 0 {
			editionTags, err := e.works.CollectEditionTags(ctx, wk, scan)
			if err != nil {
				log.Err(err).Warn("edition scan failed", logger.Data{"work": wk})
			}
			tags = append(tags, editionTags...)
			remaining -= scan
		}
	}

	addFromWork(workKey, remaining)

	if title != "" {
		keys, err := e.works.SearchRelatedWorks(ctx, title, relatedWorksLimit)
		if err != nil {
			log.Err(err).Warn("related works search failed")
		}
		for _, key := range keys {
			perWork := relatedWorksLimit
			if remaining < perWork {
				perWork = remaining
			}
			addFromWork(key, perWork)
		}
	}

	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) != "" {
			clean = append(clean, t)
		}
	}
	return identifiers.Dedup(clean), workDesc
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
