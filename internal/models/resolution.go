package models

import "fmt"

// Suggestion is one AI-proposed (title, artist) pair.
// Rank preserves the generator's ordering within a round; suggestions are
// produced per round and never mutated.
type Suggestion struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Rank   int    `json:"rank"`
}

// ResolvedTrack is a Suggestion matched to a concrete catalog entry.
// Identity is CatalogID; Title and Artist carry the catalog's canonical forms.
type ResolvedTrack struct {
	CatalogID string `json:"catalog_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Rank      int    `json:"rank"`
}

// PlaylistSpec is the caller's request: what playlist to build and from what prompt.
type PlaylistSpec struct {
	Title          string  `json:"title"`
	RequestedCount int     `json:"requested_count"`
	Prompt         string  `json:"prompt"`
	Seed           []Track `json:"seed,omitempty"`
}

// Validate checks that the spec can drive a resolution request.
func (s PlaylistSpec) Validate() error {
	if s.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	if s.RequestedCount <= 0 {
		return fmt.Errorf("requested count must be positive, got %d", s.RequestedCount)
	}
	return nil
}

// ResolutionStatus classifies how a resolution request ended.
// A shortfall is never an error; it is one of the partial statuses below.
type ResolutionStatus string

const (
	// StatusComplete means the requested count was fully resolved.
	StatusComplete ResolutionStatus = "complete"

	// StatusPartialExhausted means the round budget ran out before the
	// requested count was reached.
	StatusPartialExhausted ResolutionStatus = "partial-exhausted"

	// StatusPartialCancelled means the caller requested cancellation; the
	// result holds everything resolved up to the last round boundary.
	StatusPartialCancelled ResolutionStatus = "partial-cancelled"

	// StatusPartialGeneratorError means the suggestion provider failed hard
	// mid-request; the result holds everything resolved before the failure.
	StatusPartialGeneratorError ResolutionStatus = "partial-generator-error"
)

// Run lifecycle states. A persisted run starts pending, moves to running when
// the resolution loop begins, and ends in one of the outcome statuses above.
const (
	StatusPending ResolutionStatus = "pending"
	StatusRunning ResolutionStatus = "running"
)

// String returns the string representation of the status.
func (s ResolutionStatus) String() string {
	return string(s)
}

// Partial reports whether the result fell short of the requested count.
func (s ResolutionStatus) Partial() bool {
	return s == StatusPartialExhausted || s == StatusPartialCancelled || s == StatusPartialGeneratorError
}

// Terminal reports whether the status is a finished outcome.
func (s ResolutionStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusPartialExhausted, StatusPartialCancelled, StatusPartialGeneratorError:
		return true
	}
	return false
}

// Valid reports whether the status is a known lifecycle or outcome value.
func (s ResolutionStatus) Valid() bool {
	return s == StatusPending || s == StatusRunning || s.Terminal()
}

// PlaylistPayload is the assembler's output: everything the platform-specific
// playlist-creation collaborator needs to materialize the playlist.
type PlaylistPayload struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Prompt         string           `json:"prompt"`
	TrackIDs       []string         `json:"track_ids"`
	Tracks         []ResolvedTrack  `json:"tracks"`
	RequestedCount int              `json:"requested_count"`
	AchievedCount  int              `json:"achieved_count"`
	Partial        bool             `json:"partial"`
	Status         ResolutionStatus `json:"status"`
	Public         bool             `json:"public"`
}
