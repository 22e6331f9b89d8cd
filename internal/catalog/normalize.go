package catalog

import (
	"regexp"
	"strings"
)

var (
	nonWordRe        = regexp.MustCompile(`[^\w\s]`)
	leadingArticleRe = regexp.MustCompile(`^(the|a|an)\s+`)
	spaceRunRe       = regexp.MustCompile(`\s+`)
)

// NormalizeTitle derives the duplicate-detection key for a title: lowercase,
// punctuation stripped, leading article removed, whitespace collapsed. The
// result is never displayed.
func NormalizeTitle(title string) string {
	n := strings.ToLower(strings.TrimSpace(title))
	n = nonWordRe.ReplaceAllString(n, "")
	n = leadingArticleRe.ReplaceAllString(n, "")
	n = spaceRunRe.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// TitleSlug converts a title to the underscore form used for derived image
// URLs (spaces to underscores, colons dropped).
func TitleSlug(title string) string {
	s := strings.ReplaceAll(title, " ", "_")
	return strings.ReplaceAll(s, ":", "")
}

// Merge applies rec onto g with fill-or-overwrite semantics: a non-empty
// incoming value replaces the stored one, an incoming blank never clears an
// existing value. ReleaseDate is set only when previously unknown. Genres and
// platforms are unioned as sets. Returns true when any field changed.
func Merge(g *Game, rec Record) bool {
	changed := false
	setStr := func(dst *string, v string) {
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	setStr(&g.Description, rec.Description)
	setStr(&g.Publisher, rec.Publisher)
	setStr(&g.Developer, rec.Developer)
	setStr(&g.AgeRating, rec.AgeRating)
	setStr(&g.ImageURL, rec.ImageURL)
	setStr(&g.SourceURL, rec.SourceURL)
	setStr(&g.SourceName, rec.SourceName)

	if rec.Metascore != nil && (g.MetacriticScore == nil || *g.MetacriticScore != *rec.Metascore) {
		v := *rec.Metascore
		g.MetacriticScore = &v
		changed = true
	}
	if rec.UserScore != nil && (g.UserScore == nil || *g.UserScore != *rec.UserScore) {
		v := *rec.UserScore
		g.UserScore = &v
		changed = true
	}
	if g.ReleaseDate == nil && rec.ReleaseDate != nil {
		v := *rec.ReleaseDate
		g.ReleaseDate = &v
		changed = true
	}
	if unionInto(&g.Genres, rec.Genres) {
		changed = true
	}
	if rec.Platform != "" && unionInto(&g.Platforms, []string{rec.Platform}) {
		changed = true
	}
	return changed
}

// NewGame builds a fresh catalog entry from an extracted record.
func NewGame(rec Record) Game {
	g := Game{
		Title:           rec.Title,
		NormalizedTitle: NormalizeTitle(rec.Title),
	}
	Merge(&g, rec)
	return g
}

func unionInto(dst *[]string, add []string) bool {
	if len(add) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(*dst))
	for _, v := range *dst {
		seen[v] = struct{}{}
	}
	changed := false
	for _, v := range add {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			*dst = append(*dst, v)
			seen[v] = struct{}{}
			changed = true
		}
	}
	return changed
}
