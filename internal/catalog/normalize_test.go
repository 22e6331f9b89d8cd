package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"The Legend of Zelda: Breath of the Wild", "legend of zelda breath of the wild"},
		{"Breath of the Wild", "breath of the wild"},
		{"ELDEN RING", "elden ring"},
		{"A Plague Tale: Innocence", "plague tale innocence"},
		{"  Half-Life 2  ", "halflife 2"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeTitle(tc.in), "input %q", tc.in)
	}
}

func TestTitleSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "God_of_War", TitleSlug("God of War"))
	require.Equal(t, "The_Witcher_3_Wild_Hunt", TitleSlug("The Witcher 3: Wild Hunt"))
}

func TestMergeFillsBlanksOnly(t *testing.T) {
	t.Parallel()

	score := 97
	g := Game{
		Title:     "Elden Ring",
		Publisher: "Bandai Namco",
	}
	changed := Merge(&g, Record{
		Title:      "Elden Ring",
		Publisher:  "",
		Developer:  "FromSoftware",
		Metascore:  &score,
		SourceName: "Metacritic",
	})
	require.True(t, changed)
	require.Equal(t, "Bandai Namco", g.Publisher, "blank incoming publisher must not clear existing")
	require.Equal(t, "FromSoftware", g.Developer)
	require.Equal(t, 97, *g.MetacriticScore)
	require.Equal(t, "Metacritic", g.SourceName)
}

func TestMergeOverwritesWithNonEmpty(t *testing.T) {
	t.Parallel()

	g := Game{Title: "Hades", SourceName: "OpenCritic"}
	Merge(&g, Record{Title: "Hades", SourceName: "GameSpot"})
	require.Equal(t, "GameSpot", g.SourceName)
}

func TestMergeReleaseDateOnlySetWhenUnknown(t *testing.T) {
	t.Parallel()

	first := time.Date(2017, 3, 3, 0, 0, 0, 0, time.UTC)
	second := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

	g := Game{Title: "Breath of the Wild"}
	Merge(&g, Record{Title: "Breath of the Wild", ReleaseDate: &first})
	Merge(&g, Record{Title: "Breath of the Wild", ReleaseDate: &second})
	require.Equal(t, first, *g.ReleaseDate)
}

func TestMergeUnionsGenresAndPlatforms(t *testing.T) {
	t.Parallel()

	g := Game{Title: "Portal 2", Genres: []string{"Puzzle"}, Platforms: []string{"PC"}}
	Merge(&g, Record{Title: "Portal 2", Genres: []string{"Puzzle", "Action"}, Platform: "PC"})
	Merge(&g, Record{Title: "Portal 2", Platform: "Xbox 360"})
	require.ElementsMatch(t, []string{"Puzzle", "Action"}, g.Genres)
	require.ElementsMatch(t, []string{"PC", "Xbox 360"}, g.Platforms)
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	score := 93.0
	rec := Record{
		Title:     "Celeste",
		Platform:  "PC",
		Publisher: "Maddy Makes Games",
		UserScore: &score,
		Genres:    []string{"Platformer"},
	}
	g := NewGame(rec)
	require.False(t, Merge(&g, rec), "second merge of identical record must not change fields")
}
