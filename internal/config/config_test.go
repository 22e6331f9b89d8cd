package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.DB.Provider)
	require.Equal(t, 7, cfg.Images.StalenessDays)
	require.Equal(t, 30, cfg.Retention.JobDays)
	require.Equal(t, 7*24*time.Hour, cfg.StalenessWindow())
	require.Equal(t, 15*time.Second, cfg.CrawlTimeout())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
server:
  port: 9191
crawler:
  default_item_limit: 25
images:
  staleness_days: 3
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, 25, cfg.Crawler.DefaultItemLimit)
	require.Equal(t, 3, cfg.Images.StalenessDays)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.DB.Provider = "postgres"
	bad.DB.DSN = ""
	require.Error(t, bad.Validate())

	bad = cfg
	bad.PubSub.Provider = "pubsub"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Images.StalenessDays = 0
	require.Error(t, bad.Validate())
}
