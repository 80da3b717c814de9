package genres

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/livrario/ingest/pkg/identifiers"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical genre labels. Priority is the single source of truth for both
// keyword lookup order and output ordering: when one tag's tokens could match
// several labels, the earliest label in this slice wins for each token, and
// the final canonical list is emitted in this order regardless of input
// order. Treat it as a tunable constant; tests pin the current order.
var Priority = []string{
	"Ciencia ficción",
	"Fantasía",
	"Terror",
	"Policial",
	"Suspenso",
	"Romance",
	"Histórica",
	"Aventuras",
	"Juvenil",
	"No ficción",
	"Biografía",
	"Infantil",
	"Clásico",
	"Poesía",
	"Cómic",
	"Ficción",
}

// keywords maps each canonical label to the (folded, lowercase) substrings
// that signal it. A token matches a label when it contains any keyword.
var keywords = map[string][]string{
	"Ciencia ficción": {"science fiction", "sci-fi", "scifi", "ciencia ficcion", "space opera", "dystop", "cyberpunk", "robots", "life on other planets"},
	"Fantasía":        {"fantasy", "fantasia", "magic", "magia", "sword", "witch", "dragon", "wizard"},
	"Terror":          {"horror", "terror", "supernatural", "ghost", "vampire", "werewolf"},
	"Policial":        {"detective", "crime", "noir", "policial", "police procedural"},
	"Suspenso":        {"mystery", "thriller", "suspense", "suspenso", "misterio"},
	"Romance":         {"romance", "love stories", "romantic"},
	"Histórica":       {"historical", "history", "historia", "historica"},
	"Aventuras":       {"adventure", "journey", "quest", "aventuras"},
	"Juvenil":         {"young adult", "juvenile fiction", "teen fiction", "juvenil"},
	"No ficción":      {"nonfiction", "non-fiction", "no ficcion", "essay", "memoir", "reportage"},
	"Biografía":       {"biography", "autobiography", "biografia"},
	"Infantil":        {"children", "picture book", "juvenile literature", "infantil"},
	"Clásico":         {"classic", "clasico"},
	"Poesía":          {"poetry", "poesia"},
	"Cómic":           {"comics", "graphic novel", "manga", "comic"},
	"Ficción":         {"fiction", "ficcion", "novela"},
}

// passthroughPrefixes marks provider tag namespaces that are neither
// classified nor counted as unmapped (e.g. LibraryThing's "nyt:bestseller").
var passthroughPrefixes = []string{"nyt:"}

// delimiterPattern splits multi-value tags on the separators providers
// actually use: slash, semicolon, comma, hyphen, and en/em dashes.
var delimiterPattern = regexp.MustCompile(`[/;,\x{2013}\x{2014}-]+`)

// foldedKeywords caches the diacritic-folded form of every keyword so that
// matching is accent-insensitive without re-folding the table per call.
var foldedKeywords = foldKeywordTable()

// Classify maps free-text subject/category strings onto the canonical label
// set. It returns the canonical labels (Priority order, deduplicated) and the
// original tags (input order, deduplicated, preserved verbatim). Tokens that
// match no keyword set are dropped from the canonical list but remain visible
// in raw. Empty input yields two empty slices.
func Classify(tags []string) (canonical []string, raw []string) {
	canonical = []string{}
	raw = []string{}
	if len(tags) == 0 {
		return canonical, raw
	}

	matched := make(map[string]struct{})
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		raw = append(raw, tag)

		for _, token := range delimiterPattern.Split(tag, -1) {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if isPassthrough(token) {
				continue
			}
			if label, ok := classifyToken(token); ok {
				matched[label] = struct{}{}
			}
		}
	}

	for _, label := range Priority {
		if _, ok := matched[label]; ok {
			canonical = append(canonical, label)
		}
	}
	return canonical, identifiers.Dedup(raw)
}

// classifyToken finds the highest-priority label whose keyword set matches
// the token. The first matching keyword wins.
func classifyToken(token string) (string, bool) {
	folded := Fold(token)
	for _, label := range Priority {
		for _, kw := range foldedKeywords[label] {
			if strings.Contains(folded, kw) {
				return label, true
			}
		}
	}
	return "", false
}

func isPassthrough(token string) bool {
	lower := strings.ToLower(token)
	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Fold lowercases and strips diacritics for comparison purposes only; output
// labels and raw tags always keep their original spelling.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

func foldKeywordTable() map[string][]string {
	out := make(map[string][]string, len(keywords))
	for label, kws := range keywords {
		folded := make([]string, len(kws))
		for i, kw := range kws {
			folded[i] = Fold(kw)
		}
		out[label] = folded
	}
	return out
}
