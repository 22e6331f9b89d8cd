package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

const gamespotStartURL = "https://www.gamespot.com/gallery/best-pc-games/2900-4143/"

// GameSpot extracts the best-PC-games gallery. Gallery items without a detail
// link are saved as-is; items linking to a game page are followed for richer
// fields.
type GameSpot struct{}

// NewGameSpot returns the GameSpot extractor.
func NewGameSpot() *GameSpot { return &GameSpot{} }

func (g *GameSpot) Key() string { return "gamespot" }

func (g *GameSpot) StartURL(baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	return gamespotStartURL
}

func (g *GameSpot) ParseListing(doc *goquery.Document, pageURL string, remaining int) (ListingResult, error) {
	var res ListingResult
	rank := 0

	doc.Find("div.gallery-embed__item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(res.Records)+len(res.Follows) >= remaining {
			return false
		}
		title := CleanText(item.Find("h3").First().Text())
		if title == "" {
			title = CleanText(item.Find("h2").First().Text())
		}
		if title == "" {
			return true
		}
		rank++

		rec := catalog.Record{
			Title:       title,
			Platform:    "PC",
			Description: CleanText(item.Find("p").First().Text()),
			ImageURL:    galleryImageURL(item, pageURL),
			SourceName:  "GameSpot Gallery",
			Rank:        rank,
		}

		link, _ := item.Find("a").First().Attr("href")
		if link == "" {
			link, _ = item.Find(`a[href*="/game/"]`).Attr("href")
		}
		if strings.HasPrefix(link, "/game/") {
			rec.SourceName = "GameSpot"
			res.Follows = append(res.Follows, FollowLink{
				URL:       AbsoluteURL(pageURL, link),
				Inherited: rec,
			})
			return true
		}
		res.Records = append(res.Records, rec)
		return true
	})

	if len(res.Records)+len(res.Follows) < remaining {
		if next, ok := doc.Find("a.btn-load-more").Attr("href"); ok {
			res.NextPage = AbsoluteURL(pageURL, next)
		}
	}
	return res, nil
}

// galleryImageURL finds an item's image, trying an <img> first and then a
// background-image style. Protocol-relative URLs get an https scheme.
func galleryImageURL(item *goquery.Selection, pageURL string) string {
	src, ok := item.Find("img").First().Attr("src")
	if !ok || src == "" {
		style, _ := item.Find(`div[style*="background-image"]`).Attr("style")
		src = BackgroundImageURL(style)
	}
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return AbsoluteURL(pageURL, src)
}

func (g *GameSpot) ParseDetail(doc *goquery.Document, pageURL string, inherited catalog.Record) (catalog.Record, error) {
	rec := inherited
	rec.Platform = "PC"
	rec.SourceName = "GameSpot"
	rec.SourceURL = pageURL

	if rec.Title == "" {
		return catalog.Record{}, fmt.Errorf("gamespot detail page %s: missing title", pageURL)
	}

	info := doc.Find("div.kubrick-info")

	if rec.Description == "" {
		for _, sel := range []string{
			"div.kubrick-game-overview p",
			"div.game-summary p",
			"div.pod-description",
		} {
			if d := CleanText(doc.Find(sel).First().Text()); d != "" {
				rec.Description = d
				break
			}
		}
	}

	if d := ParseReleaseDate(info.Find("li.release-date time").Text()); d != nil {
		rec.ReleaseDate = d
	}
	if v := CleanText(info.Find("li.publisher").Text()); v != "" {
		rec.Publisher = v
	}
	if v := CleanText(info.Find("li.developer").Text()); v != "" {
		rec.Developer = v
	}
	// GameSpot scores on 0-10; ParseScore lifts them to the shared scale.
	if v := ParseScore(doc.Find("div.gs-score__cell span").First().Text(), true); v != nil {
		rec.Metascore = v
	}

	info.Find("li.genre a").Each(func(_ int, s *goquery.Selection) {
		if g := CleanText(s.Text()); g != "" {
			rec.Genres = append(rec.Genres, g)
		}
	})

	if rec.ImageURL == "" {
		rec.ImageURL = heroImageURL(doc, pageURL)
	}
	if v := ExtractRatingCode(info.Find("li.rating").Text()); v != "" {
		rec.AgeRating = v
	}
	return rec, nil
}

// heroImageURL works through GameSpot's rotating hero image layouts.
func heroImageURL(doc *goquery.Document, pageURL string) string {
	if src, ok := doc.Find("div.kubrick-hero__image img").Attr("src"); ok && src != "" {
		return AbsoluteURL(pageURL, src)
	}
	if src, ok := doc.Find("img.hero-image").Attr("src"); ok && src != "" {
		return AbsoluteURL(pageURL, src)
	}
	if srcset, ok := doc.Find("picture.hero-image source").Attr("srcset"); ok && srcset != "" {
		// Take the largest image from the srcset.
		parts := strings.Split(srcset, ",")
		last := strings.TrimSpace(parts[len(parts)-1])
		if fields := strings.Fields(last); len(fields) > 0 {
			return AbsoluteURL(pageURL, fields[0])
		}
	}
	if src, ok := doc.Find("div.article-image img").Attr("src"); ok && src != "" {
		return AbsoluteURL(pageURL, src)
	}
	return ""
}
