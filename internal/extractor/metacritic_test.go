package extractor

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/playdex/catalog-crawler/internal/catalog"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const metacriticListingHTML = `
<html><body><table>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/disco-elysium"><h3>Disco Elysium</h3></a>
  <div class="metascore_w">91</div>
</td></tr>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/half-life-2"><h3>Half-Life 2</h3></a>
  <div class="metascore_w">96</div>
</td></tr>
<tr><td class="clamp-summary-wrap">
  <a class="title" href="/game/pc/portal-2"><h3>Portal 2</h3></a>
  <div class="metascore_w">95</div>
</td></tr>
</table>
<a class="action next" href="/browse/games/score/metascore/all/pc/filtered?page=1">next</a>
</body></html>`

func TestMetacriticParseListing(t *testing.T) {
	t.Parallel()
	m := NewMetacritic()
	doc := docFrom(t, metacriticListingHTML)

	res, err := m.ParseListing(doc, metacriticStartURL, 100)
	require.NoError(t, err)
	require.Empty(t, res.Records)
	require.Len(t, res.Follows, 3)

	first := res.Follows[0]
	require.Equal(t, "https://www.metacritic.com/game/pc/disco-elysium", first.URL)
	require.Equal(t, "Disco Elysium", first.Inherited.Title)
	require.Equal(t, "PC", first.Inherited.Platform)
	require.NotNil(t, first.Inherited.Metascore)
	require.Equal(t, 91, *first.Inherited.Metascore)
	require.Equal(t, 1, first.Inherited.Rank)

	require.Equal(t,
		"https://www.metacritic.com/browse/games/score/metascore/all/pc/filtered?page=1",
		res.NextPage)
}

func TestMetacriticListingHonorsLimit(t *testing.T) {
	t.Parallel()
	m := NewMetacritic()
	doc := docFrom(t, metacriticListingHTML)

	res, err := m.ParseListing(doc, metacriticStartURL, 2)
	require.NoError(t, err)
	require.Len(t, res.Follows, 2)
	// At the limit: no next page even though the document has one.
	require.Empty(t, res.NextPage)
}

const metacriticDetailHTML = `
<html><body>
<div class="product_title"><h1>Disco Elysium</h1></div>
<div class="details_section">
  <ul>
    <li class="summary_detail release_data"><span class="data">Oct 15, 2019</span></li>
    <li class="summary_detail publisher"><span class="data"><a>ZA/UM</a></span></li>
    <li class="summary_detail developer"><span class="data"><a>ZA/UM</a></span></li>
    <li class="summary_detail product_genre"><span class="data">RPG</span></li>
    <li class="summary_detail product_genre"><span class="data">Adventure</span></li>
    <li class="summary_detail product_rating"><span class="data">M</span></li>
  </ul>
</div>
<div class="userscore_wrap"><a class="metascore_anchor"><div class="user">8.3</div></a></div>
<div class="product_details"><span class="blurb_expanded">A groundbreaking role playing game.</span></div>
<div class="product_image"><img src="https://static.metacritic.com/images/disco.jpg"></div>
</body></html>`

func TestMetacriticParseDetail(t *testing.T) {
	t.Parallel()
	m := NewMetacritic()
	doc := docFrom(t, metacriticDetailHTML)

	score := 91
	rec, err := m.ParseDetail(doc, "https://www.metacritic.com/game/pc/disco-elysium", catalog.Record{
		Title:     "Disco Elysium",
		Metascore: &score,
		Rank:      1,
	})
	require.NoError(t, err)

	require.Equal(t, "Disco Elysium", rec.Title)
	require.Equal(t, "Metacritic", rec.SourceName)
	require.Equal(t, "ZA/UM", rec.Publisher)
	require.Equal(t, "ZA/UM", rec.Developer)
	require.NotNil(t, rec.ReleaseDate)
	require.Equal(t, "2019-10-15", rec.ReleaseDate.Format(time.DateOnly))
	require.NotNil(t, rec.UserScore)
	require.InDelta(t, 8.3, *rec.UserScore, 0.001)
	require.Equal(t, "A groundbreaking role playing game.", rec.Description)
	require.Equal(t, []string{"RPG", "Adventure"}, rec.Genres)
	require.Equal(t, "https://static.metacritic.com/images/disco.jpg", rec.ImageURL)
	require.Equal(t, "M", rec.AgeRating)
	require.NotNil(t, rec.Metascore)
	require.Equal(t, 91, *rec.Metascore)
}

func TestMetacriticDetailMissingTitle(t *testing.T) {
	t.Parallel()
	m := NewMetacritic()
	doc := docFrom(t, `<html><body><p>layout changed</p></body></html>`)

	_, err := m.ParseDetail(doc, "https://www.metacritic.com/game/pc/gone", catalog.Record{})
	require.Error(t, err)
}
