package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateFormats are tried in order; sources disagree on date layout.
var dateFormats = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

// ParseReleaseDate parses a date against the accepted formats, nil when none
// match.
func ParseReleaseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseScore parses a review score as an integer, nil for unparsable input.
// tenPointScale marks sources scoring out of 10; their values are lifted onto
// the 0-100 scale. Sources already on 0-100 must pass false so a legitimate
// low score is not inflated.
func ParseScore(s string, tenPointScale bool) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if tenPointScale && f <= 10 {
		f *= 10
	}
	v := int(f)
	return &v
}

// ParseUserScore parses a 0-10 user score, nil when unparsable.
func ParseUserScore(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

var ratingCodeRe = regexp.MustCompile(`([ETKMA](?:\d+)?)`)

// ExtractRatingCode pulls a short ESRB code ("M", "T", "E10") out of free
// text, falling back to the trimmed text itself.
func ExtractRatingCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m := ratingCodeRe.FindString(s); m != "" {
		return m
	}
	return s
}

// AbsoluteURL resolves href against the page it appeared on. Protocol-relative
// and already-absolute URLs pass through correctly; unresolvable input returns
// the href unchanged.
func AbsoluteURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

var backgroundImageRe = regexp.MustCompile(`url\(['"]?(.*?)['"]?\)`)

// BackgroundImageURL extracts the URL from a CSS background-image style value.
func BackgroundImageURL(style string) string {
	m := backgroundImageRe.FindStringSubmatch(style)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// CleanText trims whitespace and collapses interior newlines left by HTML
// extraction.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
