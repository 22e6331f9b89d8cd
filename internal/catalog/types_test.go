package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBestURLPrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		entry ImageCacheEntry
		want  string
	}{
		{
			name:  "verified primary wins",
			entry: ImageCacheEntry{PrimaryURL: "https://img/p.jpg", IsVerified: true, BackupURL1: "https://img/b1.jpg"},
			want:  "https://img/p.jpg",
		},
		{
			name:  "unverified primary is skipped",
			entry: ImageCacheEntry{PrimaryURL: "https://img/p.jpg", BackupURL1: "https://img/b1.jpg"},
			want:  "https://img/b1.jpg",
		},
		{
			name:  "backup2 before fallback",
			entry: ImageCacheEntry{BackupURL2: "https://img/b2.jpg", FallbackURL: "https://img/f.jpg"},
			want:  "https://img/b2.jpg",
		},
		{
			name:  "fallback last",
			entry: ImageCacheEntry{FallbackURL: "https://img/f.jpg"},
			want:  "https://img/f.jpg",
		},
		{
			name:  "placeholder when empty",
			entry: ImageCacheEntry{},
			want:  PlaceholderImageURL,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.entry.BestURL())
		})
	}
}

func TestAddBackupFillsEmptySlots(t *testing.T) {
	t.Parallel()

	e := ImageCacheEntry{PrimaryURL: "https://img/p.jpg"}
	e.AddBackup("https://img/b1.jpg")
	e.AddBackup("https://img/b1.jpg") // duplicate ignored
	e.AddBackup("https://img/p.jpg")  // matches primary, ignored
	e.AddBackup("https://img/b2.jpg")
	e.AddBackup("https://img/b3.jpg") // both slots full, dropped
	require.Equal(t, "https://img/b1.jpg", e.BackupURL1)
	require.Equal(t, "https://img/b2.jpg", e.BackupURL2)
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, JobStatusCompleted.IsTerminal())
	require.True(t, JobStatusFailed.IsTerminal())
	require.False(t, JobStatusPending.IsTerminal())
	require.False(t, JobStatusRunning.IsTerminal())
}
