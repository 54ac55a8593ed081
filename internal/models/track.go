package models

import (
	"fmt"
	"time"
)

// PersistedTrack is a catalog track cached locally so repeat lookups and
// history listings avoid another round trip to the catalog API.
type PersistedTrack struct {
	id        string
	sequence  int
	catalogID string
	title     string
	artist    string
	album     string
	duration  int
	uri       string
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPersistedTrack creates a cache entry from a catalog track DTO.
// The ID is assigned by the repository on Create.
func NewPersistedTrack(sequence int, track Track) *PersistedTrack {
	now := time.Now()
	return &PersistedTrack{
		sequence:  sequence,
		catalogID: track.ID,
		title:     track.Title,
		artist:    track.Artist,
		album:     track.Album,
		duration:  track.Duration,
		uri:       track.URI,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *PersistedTrack) ID() string            { return t.id }
func (t *PersistedTrack) Sequence() int         { return t.sequence }
func (t *PersistedTrack) CatalogID() string     { return t.catalogID }
func (t *PersistedTrack) Title() string         { return t.title }
func (t *PersistedTrack) Artist() string        { return t.artist }
func (t *PersistedTrack) Album() string         { return t.album }
func (t *PersistedTrack) Duration() int         { return t.duration }
func (t *PersistedTrack) URI() string           { return t.uri }
func (t *PersistedTrack) CreatedAt() time.Time  { return t.createdAt }
func (t *PersistedTrack) UpdatedAt() time.Time  { return t.updatedAt }
func (t *PersistedTrack) DeletedAt() *time.Time { return t.deletedAt }

func (t *PersistedTrack) SetID(id string)            { t.id = id }
func (t *PersistedTrack) SetCreatedAt(at time.Time)  { t.createdAt = at }
func (t *PersistedTrack) SetUpdatedAt(at time.Time)  { t.updatedAt = at }
func (t *PersistedTrack) SetDeletedAt(at *time.Time) { t.deletedAt = at }

// DTO converts the cache entry back to the catalog track shape.
func (t *PersistedTrack) DTO() Track {
	return Track{
		ID:       t.catalogID,
		Title:    t.title,
		Artist:   t.artist,
		Album:    t.album,
		Duration: t.duration,
		URI:      t.uri,
	}
}

// Validate checks if the track's data is valid.
func (t *PersistedTrack) Validate() error {
	if t.catalogID == "" {
		return fmt.Errorf("catalog id must not be empty")
	}
	if t.title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if t.artist == "" {
		return fmt.Errorf("artist must not be empty")
	}
	if t.duration < 0 {
		return fmt.Errorf("duration must not be negative, got %d", t.duration)
	}
	return nil
}
