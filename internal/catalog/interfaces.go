package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// SourceStore persists crawl source configuration.
type SourceStore interface {
	GetSource(ctx context.Context, id int64) (Source, error)
	GetSourceByName(ctx context.Context, name string) (Source, error)
	ListActiveSources(ctx context.Context) ([]Source, error)
	UpsertSource(ctx context.Context, src Source) (Source, error)
	TouchLastRun(ctx context.Context, id int64, at time.Time) error
}

// JobStore persists jobs and their per-item errors.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	RecordError(ctx context.Context, jobErr JobError) error
	ListErrors(ctx context.Context, jobID string) ([]JobError, error)
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// GameStore persists canonical catalog entries.
type GameStore interface {
	// Upsert finds-or-creates by (normalized title, platform) and applies
	// the fill-blank-only merge policy. Safe for concurrent callers.
	Upsert(ctx context.Context, rec Record) (Game, error)
	GetGame(ctx context.Context, id int64) (Game, error)
	ListGames(ctx context.Context, limit, offset int) ([]Game, error)
	// ListMissingImageCache returns entries with no cache row at all.
	ListMissingImageCache(ctx context.Context, limit int) ([]Game, error)
	// ListStaleImageCache returns entries whose cache row was last verified
	// before the cutoff.
	ListStaleImageCache(ctx context.Context, cutoff time.Time, limit int) ([]Game, error)
	SetCachedImage(ctx context.Context, gameID, imageID int64) error
	DeleteGame(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]Game, error)
}

// ImageStore persists image cache rows, one per catalog entry.
type ImageStore interface {
	GetOrCreate(ctx context.Context, identifier string) (ImageCacheEntry, error)
	GetByIdentifier(ctx context.Context, identifier string) (ImageCacheEntry, error)
	Update(ctx context.Context, entry ImageCacheEntry) error
}

// Publisher pushes job completion events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
