// Package memory provides in-memory store implementations used in tests and
// for single-process deployments without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playdex/catalog-crawler/internal/catalog"
	"github.com/playdex/catalog-crawler/internal/clock/system"
)

// Store is an in-memory implementation of every persistence interface the
// pipeline uses. All methods are safe for concurrent callers.
type Store struct {
	mu    sync.RWMutex
	clock catalog.Clock

	sources      map[int64]catalog.Source
	nextSourceID int64

	jobs      map[string]catalog.Job
	jobErrors map[string][]catalog.JobError

	games      map[int64]catalog.Game
	byTitle    map[string]int64
	nextGameID int64

	images      map[string]catalog.ImageCacheEntry
	nextImageID int64
	imagesByID  map[int64]string
}

// New returns an empty Store on the wall clock.
func New() *Store {
	return NewWithClock(system.New())
}

// NewWithClock returns an empty Store stamping rows with the supplied clock.
func NewWithClock(clock catalog.Clock) *Store {
	return &Store{
		clock:      clock,
		sources:    make(map[int64]catalog.Source),
		jobs:       make(map[string]catalog.Job),
		jobErrors:  make(map[string][]catalog.JobError),
		games:      make(map[int64]catalog.Game),
		byTitle:    make(map[string]int64),
		images:     make(map[string]catalog.ImageCacheEntry),
		imagesByID: make(map[int64]string),
	}
}

// --- SourceStore ---

func (s *Store) GetSource(ctx context.Context, id int64) (catalog.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return catalog.Source{}, catalog.ErrNotFound
	}
	return src, nil
}

func (s *Store) GetSourceByName(ctx context.Context, name string) (catalog.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.Name == name {
			return src, nil
		}
	}
	return catalog.Source{}, catalog.ErrNotFound
}

func (s *Store) ListActiveSources(ctx context.Context) ([]catalog.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Source
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertSource inserts or replaces a source, matching existing rows by name.
func (s *Store) UpsertSource(ctx context.Context, src catalog.Source) (catalog.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.sources {
		if existing.Name == src.Name {
			src.ID = id
			s.sources[id] = src
			return src, nil
		}
	}
	s.nextSourceID++
	src.ID = s.nextSourceID
	s.sources[src.ID] = src
	return src, nil
}

func (s *Store) TouchLastRun(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return catalog.ErrNotFound
	}
	src.LastRunAt = &at
	s.sources[id] = src
	return nil
}

// --- JobStore ---

func (s *Store) CreateJob(ctx context.Context, job catalog.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job catalog.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return catalog.ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.Job{}, catalog.ErrNotFound
	}
	return job, nil
}

func (s *Store) RecordError(ctx context.Context, jobErr catalog.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobErrors[jobErr.JobID] = append(s.jobErrors[jobErr.JobID], jobErr)
	return nil
}

func (s *Store) ListErrors(ctx context.Context, jobID string) ([]catalog.JobError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.JobError, len(s.jobErrors[jobID]))
	copy(out, s.jobErrors[jobID])
	return out, nil
}

// DeleteJobsBefore removes jobs started before the cutoff together with
// their error rows. Returns how many jobs were removed.
func (s *Store) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.StartedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.jobErrors, id)
			removed++
		}
	}
	return removed, nil
}

// --- GameStore ---

// Upsert applies the fill-blank-only merge policy, matching existing entries
// by normalized title. The write lock serializes racing upserts for the same
// title so no duplicate rows appear.
func (s *Store) Upsert(ctx context.Context, rec catalog.Record) (catalog.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := catalog.NormalizeTitle(rec.Title)
	if id, ok := s.byTitle[norm]; ok {
		g := s.games[id]
		if catalog.Merge(&g, rec) {
			g.LastUpdated = s.clock.Now().UTC()
		}
		s.games[id] = g
		return g, nil
	}

	g := catalog.NewGame(rec)
	s.nextGameID++
	g.ID = s.nextGameID
	g.LastUpdated = s.clock.Now().UTC()
	s.games[g.ID] = g
	s.byTitle[norm] = g.ID
	return g, nil
}

func (s *Store) GetGame(ctx context.Context, id int64) (catalog.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return catalog.Game{}, catalog.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListGames(ctx context.Context, limit, offset int) ([]catalog.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sortedGames()
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) ListMissingImageCache(ctx context.Context, limit int) ([]catalog.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Game
	for _, g := range s.sortedGames() {
		if g.CachedImageID == nil {
			out = append(out, g)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListStaleImageCache(ctx context.Context, cutoff time.Time, limit int) ([]catalog.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Game
	for _, g := range s.sortedGames() {
		if g.CachedImageID == nil {
			continue
		}
		ident, ok := s.imagesByID[*g.CachedImageID]
		if !ok {
			continue
		}
		entry := s.images[ident]
		if entry.LastVerifiedAt == nil || entry.LastVerifiedAt.Before(cutoff) {
			out = append(out, g)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) SetCachedImage(ctx context.Context, gameID, imageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return catalog.ErrNotFound
	}
	g.CachedImageID = &imageID
	s.games[gameID] = g
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return catalog.ErrNotFound
	}
	delete(s.games, id)
	if s.byTitle[g.NormalizedTitle] == id {
		delete(s.byTitle, g.NormalizedTitle)
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]catalog.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedGames(), nil
}

// sortedGames returns games ordered by ID. Callers hold at least a read lock.
func (s *Store) sortedGames() []catalog.Game {
	out := make([]catalog.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- ImageStore ---

func (s *Store) GetOrCreate(ctx context.Context, identifier string) (catalog.ImageCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.images[identifier]; ok {
		return entry, nil
	}
	s.nextImageID++
	entry := catalog.ImageCacheEntry{ID: s.nextImageID, Identifier: identifier}
	s.images[identifier] = entry
	s.imagesByID[entry.ID] = identifier
	return entry, nil
}

func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (catalog.ImageCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.images[identifier]
	if !ok {
		return catalog.ImageCacheEntry{}, catalog.ErrNotFound
	}
	return entry, nil
}

func (s *Store) Update(ctx context.Context, entry catalog.ImageCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[entry.Identifier]; !ok {
		return catalog.ErrNotFound
	}
	s.images[entry.Identifier] = entry
	return nil
}
