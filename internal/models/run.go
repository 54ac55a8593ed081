package models

import (
	"fmt"
	"time"
)

// GenerationRun is the persisted record of one playlist-generation request.
// It tracks the prompt, the resolution outcome, and the materialized playlist.
type GenerationRun struct {
	id             string
	sequence       int
	prompt         string
	title          string
	status         ResolutionStatus
	requestedCount int
	achievedCount  int
	roundsUsed     int
	playlistID     string
	playlistURL    string
	errorMessage   string
	startedAt      *time.Time
	completedAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewGenerationRun creates a run in its initial state.
// The ID is assigned by the repository on Create.
func NewGenerationRun(sequence int, prompt, title string, requestedCount int) *GenerationRun {
	now := time.Now()
	return &GenerationRun{
		sequence:       sequence,
		prompt:         prompt,
		title:          title,
		status:         StatusPending,
		requestedCount: requestedCount,
		createdAt:      now,
		updatedAt:      now,
	}
}

func (r *GenerationRun) ID() string            { return r.id }
func (r *GenerationRun) Sequence() int         { return r.sequence }
func (r *GenerationRun) Prompt() string        { return r.prompt }
func (r *GenerationRun) Title() string         { return r.title }
func (r *GenerationRun) RequestedCount() int   { return r.requestedCount }
func (r *GenerationRun) AchievedCount() int    { return r.achievedCount }
func (r *GenerationRun) RoundsUsed() int       { return r.roundsUsed }
func (r *GenerationRun) PlaylistID() string    { return r.playlistID }
func (r *GenerationRun) PlaylistURL() string   { return r.playlistURL }
func (r *GenerationRun) ErrorMessage() string  { return r.errorMessage }
func (r *GenerationRun) CreatedAt() time.Time  { return r.createdAt }
func (r *GenerationRun) UpdatedAt() time.Time  { return r.updatedAt }
func (r *GenerationRun) DeletedAt() *time.Time { return r.deletedAt }

// Status returns the resolution outcome recorded for this run.
func (r *GenerationRun) Status() ResolutionStatus { return r.status }

// StartedAt returns when the resolution loop began, nil if never started.
func (r *GenerationRun) StartedAt() *time.Time { return r.startedAt }

// CompletedAt returns when the run finished, nil while in flight.
func (r *GenerationRun) CompletedAt() *time.Time { return r.completedAt }

func (r *GenerationRun) SetID(id string)                   { r.id = id }
func (r *GenerationRun) SetTitle(title string)             { r.title = title }
func (r *GenerationRun) SetStatus(status ResolutionStatus) { r.status = status }
func (r *GenerationRun) SetAchievedCount(count int)        { r.achievedCount = count }
func (r *GenerationRun) SetRoundsUsed(rounds int)          { r.roundsUsed = rounds }
func (r *GenerationRun) SetPlaylistID(id string)           { r.playlistID = id }
func (r *GenerationRun) SetPlaylistURL(url string)         { r.playlistURL = url }
func (r *GenerationRun) SetErrorMessage(msg string)        { r.errorMessage = msg }
func (r *GenerationRun) SetStartedAt(t *time.Time)         { r.startedAt = t }
func (r *GenerationRun) SetCompletedAt(t *time.Time)       { r.completedAt = t }
func (r *GenerationRun) SetCreatedAt(t time.Time)          { r.createdAt = t }
func (r *GenerationRun) SetUpdatedAt(t time.Time)          { r.updatedAt = t }
func (r *GenerationRun) SetDeletedAt(t *time.Time)         { r.deletedAt = t }

// Validate checks if the run's data is valid.
func (r *GenerationRun) Validate() error {
	if r.prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if r.title == "" {
		return fmt.Errorf("title must not be empty")
	}
	if r.requestedCount <= 0 {
		return fmt.Errorf("requested count must be positive, got %d", r.requestedCount)
	}
	if !r.status.Valid() {
		return fmt.Errorf("unknown status: %s", r.status)
	}
	if r.achievedCount < 0 {
		return fmt.Errorf("achieved count must not be negative, got %d", r.achievedCount)
	}
	if r.roundsUsed < 0 {
		return fmt.Errorf("rounds used must not be negative, got %d", r.roundsUsed)
	}
	return nil
}
