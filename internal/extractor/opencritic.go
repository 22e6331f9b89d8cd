package extractor

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const opencriticStartURL = "https://opencritic.com/browse/pc"

// OpenCritic extracts the PC browse listing. All links on the site are
// relative and get joined against the page URL.
type OpenCritic struct{}

// NewOpenCritic returns the OpenCritic extractor.
func NewOpenCritic() *OpenCritic { return &OpenCritic{} }

func (o *OpenCritic) Key() string { return "opencritic" }

func (o *OpenCritic) StartURL(baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	return opencriticStartURL
}

func (o *OpenCritic) ParseListing(doc *goquery.Document, pageURL string, remaining int) (ListingResult, error) {
	var res ListingResult
	rank := 0

	doc.Find(`div[data-testid="game"]`).EachWithBreak(func(_ int, game *goquery.Selection) bool {
		if len(res.Follows) >= remaining {
			return false
		}
		title := CleanText(game.Find("div.game-name a").First().Text())
		if title == "" {
			title = CleanText(game.Find(`a[href*="/game/"]`).First().Text())
		}
		if title == "" {
			return true
		}
		href, _ := game.Find(`a[href*="/game/"]`).Attr("href")
		if href == "" {
			return true
		}
		rank++

		res.Follows = append(res.Follows, FollowLink{
			URL: AbsoluteURL(pageURL, href),
			Inherited: catalog.Record{
				Title:      title,
				Platform:   "PC",
				Metascore:  ParseScore(game.Find("span.score").First().Text(), false),
				SourceName: "OpenCritic",
				Rank:       rank,
			},
		})
		return true
	})

	if len(res.Follows) < remaining {
		if next, ok := doc.Find(`a[aria-label="Next page"]`).Attr("href"); ok {
			res.NextPage = AbsoluteURL(pageURL, next)
		}
	}
	return res, nil
}

func (o *OpenCritic) ParseDetail(doc *goquery.Document, pageURL string, inherited catalog.Record) (catalog.Record, error) {
	rec := inherited
	rec.Platform = "PC"
	rec.SourceName = "OpenCritic"
	rec.SourceURL = pageURL

	if rec.Title == "" {
		return catalog.Record{}, fmt.Errorf("opencritic detail page %s: missing title", pageURL)
	}

	if src, ok := doc.Find("div.game-image img").Attr("src"); ok && src != "" {
		rec.ImageURL = AbsoluteURL(pageURL, src)
	} else if src, ok := doc.Find("img.game-boxart").Attr("src"); ok && src != "" {
		rec.ImageURL = AbsoluteURL(pageURL, src)
	}

	if rec.Metascore == nil {
		rec.Metascore = ParseScore(doc.Find("div.score").First().Text(), false)
	}

	date := doc.Find("div.release-date").First().Text()
	if CleanText(date) == "" {
		date = doc.Find(`span[itemprop="datePublished"]`).First().Text()
	}
	if d := ParseReleaseDate(CleanText(date)); d != nil {
		rec.ReleaseDate = d
	}

	desc := CleanText(doc.Find("div.description").First().Text())
	if desc == "" {
		desc = CleanText(doc.Find("div.summary p").First().Text())
	}
	if desc != "" {
		rec.Description = desc
	}

	doc.Find("span.genre").Each(func(_ int, s *goquery.Selection) {
		if g := CleanText(s.Text()); g != "" {
			rec.Genres = append(rec.Genres, g)
		}
	})

	if v := CleanText(doc.Find(`span[itemprop="publisher"]`).First().Text()); v != "" {
		rec.Publisher = v
	}
	if v := CleanText(doc.Find(`span[itemprop="developer"]`).First().Text()); v != "" {
		rec.Developer = v
	}
	if v := ParseUserScore(doc.Find("div.user-score").First().Text()); v != nil {
		rec.UserScore = v
	}
	return rec, nil
}
