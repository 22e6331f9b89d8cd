package imaging

import "strings"

// knownCovers maps frequently requested titles to hand-checked cover URLs.
// These back-stop the lookup providers for titles the APIs routinely miss.
var knownCovers = map[string]string{
	"the legend of zelda: breath of the wild": "https://upload.wikimedia.org/wikipedia/en/c/c6/The_Legend_of_Zelda_Breath_of_the_Wild.jpg",
	"red dead redemption 2":                   "https://upload.wikimedia.org/wikipedia/en/4/44/Red_Dead_Redemption_II.jpg",
	"the witcher 3: wild hunt":                "https://upload.wikimedia.org/wikipedia/en/0/0c/Witcher_3_cover_art.jpg",
	"god of war":                              "https://upload.wikimedia.org/wikipedia/en/a/a7/God_of_War_4_cover.jpg",
	"elden ring":                              "https://upload.wikimedia.org/wikipedia/en/b/b9/Elden_Ring_Box_art.jpg",
}

// KnownCoverURL returns the curated cover URL for a title, matching
// case-insensitively and tolerating subtitle differences in either direction.
// Returns "" when the title is not in the table.
func KnownCoverURL(title string) string {
	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return ""
	}
	if u, ok := knownCovers[want]; ok {
		return u
	}
	for name, u := range knownCovers {
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return u
		}
	}
	return ""
}
