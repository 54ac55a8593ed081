package repositories

import (
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
)

// TrackCacheAdapter implements tasks.TrackCacher using TrackRepository.
//
// Lookups are served from an in-memory index keyed by shared.NormalizeTrackKey;
// stores write through to the database. Duplicate tracks are silently ignored
// (UNIQUE constraint violations on catalog_id).
type TrackCacheAdapter struct {
	repo *TrackRepository

	mu   sync.RWMutex
	keys map[string]models.Track
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{
		repo: repo,
		keys: make(map[string]models.Track),
	}
}

// Warm loads previously persisted tracks into the in-memory index.
// An unwarmed adapter still works; it just starts cold.
func (a *TrackCacheAdapter) Warm() error {
	tracks, err := a.repo.List(map[string]any{})
	if err != nil {
		return fmt.Errorf("failed to warm track cache: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, track := range tracks {
		a.keys[shared.NormalizeTrackKey(track.Title(), track.Artist())] = track.DTO()
	}

	return nil
}

// Lookup returns the cached track for a (title, artist) pair, if any
func (a *TrackCacheAdapter) Lookup(title, artist string) (*models.Track, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	track, ok := a.keys[shared.NormalizeTrackKey(title, artist)]
	if !ok {
		return nil, false
	}

	return &track, true
}

// Store records a resolved track in the index and persists it.
// Persistence failures are dropped; the in-memory entry still serves lookups.
func (a *TrackCacheAdapter) Store(track models.Track) {
	key := shared.NormalizeTrackKey(track.Title, track.Artist)

	a.mu.Lock()
	_, seen := a.keys[key]
	a.keys[key] = track
	a.mu.Unlock()

	if seen {
		return
	}

	_ = a.CacheTrack(track)
}

// CacheTrack persists a resolved catalog track.
// Returns nil if the track already exists (deduplication).
// Only returns errors for actual failures (not constraint violations).
func (a *TrackCacheAdapter) CacheTrack(track models.Track) error {
	existing, err := a.repo.GetByCatalogID(track.ID)
	if err == nil && existing != nil {
		return nil
	}

	persistedTrack := models.NewPersistedTrack(0, track)

	err = a.repo.Create(persistedTrack)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache track: %w", err)
	}

	return nil
}
