// Package catalog defines core types shared across the ingestion pipeline.
package catalog

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ErrorKind classifies extraction failures recorded per item.
type ErrorKind string

// Error kinds persisted on JobError rows.
const (
	ErrKindTransientNetwork ErrorKind = "transient_network"
	ErrKindUpstreamFormat   ErrorKind = "upstream_format"
	ErrKindAuthExpired      ErrorKind = "auth_expired"
	ErrKindRateLimited      ErrorKind = "rate_limited"
	ErrKindCancelled        ErrorKind = "cancelled"
	ErrKindFatal            ErrorKind = "fatal"
)

// Source is a configured external site from which game data is extracted.
type Source struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	BaseURL           string     `json:"base_url"`
	ExtractorKey      string     `json:"extractor_key"`
	IsActive          bool       `json:"is_active"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
}

// Job is one execution instance of crawling a Source.
type Job struct {
	ID              string     `json:"id"`
	SourceID        int64      `json:"source_id"`
	Status          JobStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ItemsDiscovered int        `json:"items_discovered"`
	ItemsSaved      int        `json:"items_saved"`
	ErrorSummary    string     `json:"error_summary,omitempty"`
}

// JobError records one extraction failure. Rows are append-only.
type JobError struct {
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the tagged field-set an extractor yields for one game. Pointer
// fields distinguish "absent" from zero where the merge policy needs it;
// string fields treat empty as absent.
type Record struct {
	Title       string     `json:"title"`
	Platform    string     `json:"platform,omitempty"`
	Description string     `json:"description,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	Developer   string     `json:"developer,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Metascore   *int       `json:"metascore,omitempty"`
	UserScore   *float64   `json:"user_score,omitempty"`
	AgeRating   string     `json:"age_rating,omitempty"`
	Genres      []string   `json:"genres,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceName  string     `json:"source_name,omitempty"`
	Rank        int        `json:"rank,omitempty"`
}

// Game is the canonical catalog entry for one game.
type Game struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	NormalizedTitle string     `json:"-"`
	Description     string     `json:"description,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	Developer       string     `json:"developer,omitempty"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	MetacriticScore *int       `json:"metacritic_score,omitempty"`
	UserScore       *float64   `json:"user_score,omitempty"`
	AgeRating       string     `json:"age_rating,omitempty"`
	Genres          []string   `json:"genres,omitempty"`
	Platforms       []string   `json:"platforms,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	CachedImageID   *int64     `json:"cached_image_id,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	SourceName      string     `json:"source_name,omitempty"`
	LastUpdated     time.Time  `json:"last_updated"`
}

// ReleaseYear returns the release year or 0 when unknown.
func (g Game) ReleaseYear() int {
	if g.ReleaseDate == nil {
		return 0
	}
	return g.ReleaseDate.Year()
}

// PlaceholderImageURL is served when no candidate URL survives verification.
const PlaceholderImageURL = "https://via.placeholder.com/300x400?text=No+Game+Image"

// ImageCacheEntry holds the verified cover URL for a catalog entry plus
// backup candidates. One row per game, keyed by Identifier.
type ImageCacheEntry struct {
	ID             int64      `json:"id"`
	Identifier     string     `json:"identifier"`
	PrimaryURL     string     `json:"primary_url,omitempty"`
	BackupURL1     string     `json:"backup_url_1,omitempty"`
	BackupURL2     string     `json:"backup_url_2,omitempty"`
	FallbackURL    string     `json:"fallback_url,omitempty"`
	IsVerified     bool       `json:"is_verified"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	SourceTag      string     `json:"source_tag,omitempty"`
}

// BestURL returns the first usable URL: the primary when verified, then the
// backups, then the fallback, then the shared placeholder.
func (e ImageCacheEntry) BestURL() string {
	switch {
	case e.IsVerified && e.PrimaryURL != "":
		return e.PrimaryURL
	case e.BackupURL1 != "":
		return e.BackupURL1
	case e.BackupURL2 != "":
		return e.BackupURL2
	case e.FallbackURL != "":
		return e.FallbackURL
	default:
		return PlaceholderImageURL
	}
}

// AddBackup places url into the first empty backup slot. Occupied slots and
// duplicates of already-held URLs are left alone.
func (e *ImageCacheEntry) AddBackup(url string) {
	if url == "" || url == e.PrimaryURL || url == e.BackupURL1 || url == e.BackupURL2 {
		return
	}
	switch {
	case e.BackupURL1 == "":
		e.BackupURL1 = url
	case e.BackupURL2 == "":
		e.BackupURL2 = url
	}
}
