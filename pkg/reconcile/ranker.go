package reconcile

import (
	"strings"

	"github.com/livrario/ingest/pkg/metadata"
)

// score measures how useful a candidate is as a reconciliation base. The
// language bonus only applies when preferLang is non-empty, so the fallback
// pick stays language-neutral.
func score(c *metadata.Candidate, preferLang, titleQuery string) int {
	hasDesc, hasCats := c.HasRichMetadata()

	s := 0
	if hasDesc {
		s += 6
	}
	if hasCats {
		n := len(c.Categories)
		if n > 3 {
			n = 3
		}
		s += 5 + n
	}
	if n := len(c.ISBN13s()); n > 0 {
		if n > 2 {
			n = 2
		}
		s += n
	}
	if c.PublishedDate != "" {
		s += 1
	}
	if preferLang != "" && c.Language == preferLang {
		s += 4
	}
	if titleQuery != "" {
		tq := strings.ToLower(titleQuery)
		title := strings.ToLower(c.Title)
		if tq == title {
			s += 3
		} else if strings.Contains(title, tq) {
			s += 2
		}
	}
	return s
}

// ChooseBest picks the primary candidate and an independent rich fallback.
//
// The primary is the best-scoring rich candidate in the preferred language;
// when no candidate is both rich and in that language, the best rich candidate
// in any language; when no candidate is rich at all, the first candidate. The
// fallback is always the best rich candidate scored without the language
// bonus, and may coincide with the primary. Ties resolve to the earliest
// candidate, so identical inputs always produce identical picks.
func ChooseBest(candidates []metadata.Candidate, preferredLanguage, titleQuery string) (primary, fallback *metadata.Candidate) {
	if len(candidates) == 0 {
		return nil, nil
	}

	best := func(pool []*metadata.Candidate, preferLang string) *metadata.Candidate {
		var top *metadata.Candidate
		topScore := -1
		for _, c := range pool {
			if s := score(c, preferLang, titleQuery); s > topScore {
				top = c
				topScore = s
			}
		}
		return top
	}

	var richPreferred, richAny []*metadata.Candidate
	for i := range candidates {
		c := &candidates[i]
		hasDesc, hasCats := c.HasRichMetadata()
		if !hasDesc && !hasCats {
			continue
		}
		richAny = append(richAny, c)
		if c.Language == preferredLanguage {
			richPreferred = append(richPreferred, c)
		}
	}

	switch {
	case len(richPreferred) > 0:
		primary = best(richPreferred, preferredLanguage)
	case len(richAny) > 0:
		primary = best(richAny, "")
	default:
		primary = &candidates[0]
	}

	fallback = best(richAny, "")
	return primary, fallback
}
