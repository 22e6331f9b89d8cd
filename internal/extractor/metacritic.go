package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const metacriticStartURL = "https://www.metacritic.com/browse/games/score/metascore/all/pc/filtered"

// Metacritic extracts the PC browse listing and per-game detail pages.
type Metacritic struct{}

// NewMetacritic returns the Metacritic extractor.
func NewMetacritic() *Metacritic { return &Metacritic{} }

func (m *Metacritic) Key() string { return "metacritic" }

func (m *Metacritic) StartURL(baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	return metacriticStartURL
}

// ParseListing walks the score-ordered browse table. Every row becomes a
// detail follow carrying the title, metascore, and rank seen on the listing.
func (m *Metacritic) ParseListing(doc *goquery.Document, pageURL string, remaining int) (ListingResult, error) {
	var res ListingResult
	rank := 0

	doc.Find("td.clamp-summary-wrap").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(res.Follows) >= remaining {
			return false
		}
		title := CleanText(row.Find("a.title h3").Text())
		if title == "" {
			return true
		}
		href, _ := row.Find("a.title").Attr("href")
		rank++

		rec := catalog.Record{
			Title:      title,
			Platform:   "PC",
			Metascore:  ParseScore(row.Find("div.metascore_w").First().Text(), false),
			SourceName: "Metacritic",
			Rank:       rank,
		}
		if href == "" {
			res.Records = append(res.Records, rec)
			return true
		}
		res.Follows = append(res.Follows, FollowLink{
			URL:       AbsoluteURL(pageURL, href),
			Inherited: rec,
		})
		return true
	})

	if len(res.Follows)+len(res.Records) < remaining {
		if next, ok := doc.Find("a.action.next").Attr("href"); ok {
			res.NextPage = AbsoluteURL(pageURL, next)
		}
	}
	return res, nil
}

// ParseDetail reads a game page, layering richer fields over what the listing
// supplied.
func (m *Metacritic) ParseDetail(doc *goquery.Document, pageURL string, inherited catalog.Record) (catalog.Record, error) {
	rec := inherited
	rec.Platform = "PC"
	rec.SourceName = "Metacritic"
	rec.SourceURL = pageURL

	if rec.Title == "" {
		rec.Title = CleanText(doc.Find("div.product_title h1").Text())
	}
	if rec.Title == "" {
		return catalog.Record{}, fmt.Errorf("metacritic detail page %s: missing title", pageURL)
	}

	details := doc.Find("div.details_section")
	if d := ParseReleaseDate(details.Find("li.summary_detail.release_data span.data").Text()); d != nil {
		rec.ReleaseDate = d
	}
	if v := CleanText(details.Find("li.summary_detail.publisher span.data a").First().Text()); v != "" {
		rec.Publisher = v
	}
	if v := CleanText(details.Find("li.summary_detail.developer span.data a").First().Text()); v != "" {
		rec.Developer = v
	}
	if v := ParseUserScore(doc.Find("div.userscore_wrap a.metascore_anchor div.user").First().Text()); v != nil {
		rec.UserScore = v
	}

	desc := CleanText(doc.Find("div.product_details span.blurb_expanded").Text())
	if desc == "" {
		desc = CleanText(doc.Find("div.product_details span.blurb").Text())
	}
	if desc != "" {
		rec.Description = desc
	}

	details.Find("li.summary_detail.product_genre span.data").Each(func(_ int, s *goquery.Selection) {
		if g := CleanText(s.Text()); g != "" {
			rec.Genres = append(rec.Genres, g)
		}
	})

	if src, ok := doc.Find("div.product_image img").Attr("src"); ok {
		rec.ImageURL = AbsoluteURL(pageURL, src)
	}
	if v := strings.TrimSpace(details.Find("li.summary_detail.product_rating span.data").Text()); v != "" {
		rec.AgeRating = v
	}
	return rec, nil
}
