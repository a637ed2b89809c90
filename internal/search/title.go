package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"aerial/internal/media"
)

var (
	parensPattern      = regexp.MustCompile(`\s*\([^)]*\)`)
	punctSpacePattern  = regexp.MustCompile(`[&()\[\]*+,\-./:;<=>?@\\^_{|}"]`)
	punctRemovePattern = regexp.MustCompile("[!\"#$%:;<=>`']")
	spacePattern       = regexp.MustCompile(`\s+`)

	// Release names embed diacritic-free ASCII, so fold accents before
	// matching.
	foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {},
}

// CleanTitle strips punctuation, parentheticals, accents, and stop words
// from a series title so it can be matched against release names.
func CleanTitle(title string) string {
	title = parensPattern.ReplaceAllString(title, "")
	if folded, _, err := transform.String(foldTransformer, title); err == nil {
		title = folded
	}
	title = punctSpacePattern.ReplaceAllString(title, " ")
	title = punctRemovePattern.ReplaceAllString(title, "")

	words := strings.Fields(title)
	kept := words[:0]
	for _, word := range words {
		if _, stop := stopWords[strings.ToLower(word)]; stop {
			continue
		}
		kept = append(kept, word)
	}
	return spacePattern.ReplaceAllString(strings.Join(kept, " "), " ")
}

// episodeCodePattern matches the common ways a release names an episode:
// the canonical SxxEyy code, the NxMM form, and the airdate.
func episodeCodePattern(ep *media.Episode) string {
	parts := []string{
		ep.Code(),
		fmt.Sprintf(`%dx%02d`, ep.Season, ep.Number),
	}
	if !ep.AirDate.IsZero() {
		parts = append(parts, fmt.Sprintf(`%d[-.]?%02d[-.]?%02d`,
			ep.AirDate.Year(), int(ep.AirDate.Month()), ep.AirDate.Day()))
	}
	return `(` + strings.Join(parts, `|`) + `)`
}

// EpisodeCodesPattern builds an alternation matching any of the episodes'
// codes or airdates, for embedding in provider queries.
func EpisodeCodesPattern(episodes []*media.Episode) string {
	var parts []string
	for _, ep := range episodes {
		parts = append(parts, ep.Code(), fmt.Sprintf(`%dx%02d`, ep.Season, ep.Number))
		if !ep.AirDate.IsZero() {
			parts = append(parts, fmt.Sprintf(`%d[-.]?%02d[-.]?%02d`,
				ep.AirDate.Year(), int(ep.AirDate.Month()), ep.AirDate.Day()))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return `(` + strings.Join(parts, `|`) + `)`
}

// NameMatcher returns a predicate reporting whether a release name refers
// to the given episode: the episode code must appear, and every word of the
// cleaned series title must appear, in any order.
func NameMatcher(series *media.Series, ep *media.Episode) func(string) bool {
	code := regexp.MustCompile(`(?i)\b` + episodeCodePattern(ep) + `\b`)

	title := CleanTitle(series.SearchName())
	var words []*regexp.Regexp
	for _, word := range strings.Fields(title) {
		words = append(words, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(word)+`\b`))
	}

	return func(name string) bool {
		if name == "" || !code.MatchString(name) {
			return false
		}
		for _, word := range words {
			if !word.MatchString(name) {
				return false
			}
		}
		return true
	}
}
