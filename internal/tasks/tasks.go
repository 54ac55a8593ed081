// package tasks implements the iterative prompt-to-playlist resolution engine.
//
// The core abstraction is GenerationEngine, which turns a mood prompt into
// concrete catalog tracks over bounded retry rounds and materializes the
// result as a playlist. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/services"
	"github.com/desertthunder/moodlist/internal/shared"
)

// ResolutionResult is the outcome of the iterative resolve loop.
//
// A shortfall is not an error: Status records how the loop ended and Tracks
// holds everything resolved before that point, in resolution order.
type ResolutionResult struct {
	Tracks     []models.ResolvedTrack  // Resolved tracks, deduplicated, in order
	Status     models.ResolutionStatus // How the loop ended
	Requested  int                     // Track count the caller asked for
	RoundsUsed int                     // Rounds actually consumed
	Seen       []models.Suggestion     // Every pair sent to lookup, in first-seen order
	Err        error                   // Underlying generator error for partial-generator-error
}

// Achieved returns the number of tracks the loop resolved.
func (r *ResolutionResult) Achieved() int {
	return len(r.Tracks)
}

// RunResult contains all data from a full prompt-to-playlist run.
type RunResult struct {
	Resolution *ResolutionResult       // Resolve loop outcome
	Payload    *models.PlaylistPayload // Assembled creation payload
	Playlist   *models.Playlist        // Created playlist (nil if creation failed or was skipped)
}

// ResolveOpts contains tuning knobs for the resolution loop.
type ResolveOpts struct {
	MaxRounds         int            // Generation rounds before giving up (default: 5)
	OverfetchFactor   float64        // Suggestions requested per track still needed (default: 1.5)
	LookupTimeout     time.Duration  // Per-lookup catalog timeout (default: 10s)
	LookupConcurrency int            // Concurrent lookups per round; 1 means sequential
	SeedLimit         int            // Top tracks fetched for prompt inspiration; 0 disables seeding
	Public            bool           // Whether created playlists are public
	Cancel            *CancelFlag    // Optional cooperative cancellation handle
}

// OptsFromConfig builds resolve options from the generation config section.
func OptsFromConfig(cfg shared.GenerationConfig) ResolveOpts {
	return ResolveOpts{
		MaxRounds:         cfg.MaxRounds,
		OverfetchFactor:   cfg.OverfetchFactor,
		LookupTimeout:     cfg.LookupTimeout(),
		LookupConcurrency: cfg.LookupConcurrency,
		SeedLimit:         cfg.SeedLimit,
		Public:            cfg.PublicPlaylists,
	}
}

func (o ResolveOpts) withDefaults() ResolveOpts {
	if o.MaxRounds <= 0 {
		o.MaxRounds = 5
	}
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = 1.5
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 10 * time.Second
	}
	if o.LookupConcurrency <= 0 {
		o.LookupConcurrency = 1
	}
	return o
}

// TrackCacher caches catalog lookups so repeat (title, artist) searches skip
// the network. Implementations must be safe for concurrent use.
type TrackCacher interface {
	// Lookup returns the cached track for a (title, artist) pair, if any.
	Lookup(title, artist string) (*models.Track, bool)

	// Store records a resolved track for future lookups.
	Store(track models.Track)
}

// GenerationEngine defines operations for resolving a prompt into a playlist.
type GenerationEngine interface {
	// Resolve runs the iterative suggestion/lookup loop for the spec and
	// returns everything it could resolve along with how the loop ended.
	Resolve(ctx context.Context, spec models.PlaylistSpec, progress chan<- ProgressUpdate) (*ResolutionResult, error)

	// Assemble converts a resolution outcome into a playlist creation
	// payload, truncated to the requested count and never padded.
	Assemble(spec models.PlaylistSpec, resolution *ResolutionResult) *models.PlaylistPayload

	// Run performs the full pipeline: seed fetch, resolve, assemble, create.
	Run(ctx context.Context, spec models.PlaylistSpec, progress chan<- ProgressUpdate) (*RunResult, error)
}

// PlaylistEngine implements GenerationEngine.
// Contains dependencies on the suggestion generator and catalog services.
type PlaylistEngine struct {
	generator services.SuggestionGenerator
	catalog   services.CatalogService
	cache     TrackCacher
	opts      ResolveOpts
}

// NewPlaylistEngine creates a new PlaylistEngine with the provided services.
// cache may be nil to disable lookup caching.
func NewPlaylistEngine(generator services.SuggestionGenerator, catalog services.CatalogService, cache TrackCacher, opts ResolveOpts) *PlaylistEngine {
	return &PlaylistEngine{
		generator: generator,
		catalog:   catalog,
		cache:     cache,
		opts:      opts.withDefaults(),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// Resolve runs the suggestion/lookup loop until the requested count is met,
// the round budget runs out, the caller cancels, or the generator fails.
//
// Each round asks the generator for more suggestions than tracks are still
// needed, excludes every pair already tried, resolves the fresh pairs against
// the catalog, and appends hits deduplicated by catalog ID. Cancellation is
// observed at round boundaries, so the result never loses a completed round.
func (e *PlaylistEngine) Resolve(ctx context.Context, spec models.PlaylistSpec, progress chan<- ProgressUpdate) (*ResolutionResult, error) {
	if e.generator == nil {
		return nil, fmt.Errorf("%w: suggestion generator not initialized", shared.ErrServiceUnavailable)
	}
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog service not initialized", shared.ErrServiceUnavailable)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	opts := e.opts

	result := &ResolutionResult{
		Requested: spec.RequestedCount,
		Status:    models.StatusPartialExhausted,
	}

	resolved := make([]models.ResolvedTrack, 0, spec.RequestedCount)
	seenPairs := make(map[string]bool)
	seenIDs := make(map[string]bool)
	var exclude []models.Suggestion

	for round := 1; round <= opts.MaxRounds; round++ {
		if cancelled(ctx, opts.Cancel) {
			result.Status = models.StatusPartialCancelled
			break
		}

		needed := spec.RequestedCount - len(resolved)
		ask := overfetch(needed, opts.OverfetchFactor)

		e.sendProgress(progress, generatingUpdate(round, opts.MaxRounds, ask))

		suggestions, err := e.generator.Generate(ctx, spec.Prompt, ask, exclude, spec.Seed)
		if err != nil {
			result.Status = models.StatusPartialGeneratorError
			result.Err = err
			result.RoundsUsed = round
			break
		}

		fresh := make([]models.Suggestion, 0, len(suggestions))
		for _, s := range suggestions {
			key := shared.NormalizeTrackKey(s.Title, s.Artist)
			if seenPairs[key] {
				continue
			}
			seenPairs[key] = true
			exclude = append(exclude, s)
			fresh = append(fresh, s)
		}

		outcomes := e.lookupRound(ctx, fresh, progress)

		for i, outcome := range outcomes {
			if len(resolved) >= spec.RequestedCount {
				break
			}
			if outcome.track == nil {
				e.sendProgress(progress, lookupMissUpdate(i+1, len(outcomes), outcome.suggestion))
				continue
			}
			if seenIDs[outcome.track.ID] {
				e.sendProgress(progress, duplicateUpdate(i+1, len(outcomes), outcome.suggestion))
				continue
			}

			seenIDs[outcome.track.ID] = true
			track := models.ResolvedTrack{
				CatalogID: outcome.track.ID,
				Title:     outcome.track.Title,
				Artist:    outcome.track.Artist,
				Rank:      len(resolved) + 1,
			}
			resolved = append(resolved, track)
			e.sendProgress(progress, lookupHitUpdate(i+1, len(outcomes), track))
		}

		result.RoundsUsed = round
		e.sendProgress(progress, roundCompleteUpdate(round, len(resolved), spec.RequestedCount))

		if len(resolved) >= spec.RequestedCount {
			result.Status = models.StatusComplete
			break
		}
	}

	result.Tracks = resolved
	result.Seen = exclude

	return result, nil
}

// Assemble converts a resolution outcome into a playlist creation payload.
//
// The track list is truncated to the requested count and never padded; a
// shortfall is reported through AchievedCount and the partial flag.
func (e *PlaylistEngine) Assemble(spec models.PlaylistSpec, resolution *ResolutionResult) *models.PlaylistPayload {
	tracks := resolution.Tracks
	if len(tracks) > spec.RequestedCount {
		tracks = tracks[:spec.RequestedCount]
	}

	ids := make([]string, len(tracks))
	for i, track := range tracks {
		ids[i] = track.CatalogID
	}

	title := spec.Title
	if title == "" {
		title = titleFromPrompt(spec.Prompt)
	}

	return &models.PlaylistPayload{
		Title:          title,
		Description:    fmt.Sprintf("%s (generated by moodlist)", spec.Prompt),
		Prompt:         spec.Prompt,
		TrackIDs:       ids,
		Tracks:         tracks,
		RequestedCount: spec.RequestedCount,
		AchievedCount:  len(tracks),
		Partial:        resolution.Status.Partial(),
		Status:         resolution.Status,
		Public:         e.opts.Public,
	}
}

// Run performs the full prompt-to-playlist pipeline.
//
// Fetches seed tracks when the spec has none, resolves the prompt, assembles
// the payload, and creates the playlist on the catalog. A partial resolution
// still produces a playlist; only an empty one stops the pipeline.
func (e *PlaylistEngine) Run(ctx context.Context, spec models.PlaylistSpec, progress chan<- ProgressUpdate) (*RunResult, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog service not initialized", shared.ErrServiceUnavailable)
	}

	if len(spec.Seed) == 0 && e.opts.SeedLimit > 0 {
		e.sendProgress(progress, seedingUpdate(e.opts.SeedLimit))
		if seed, err := e.catalog.TopTracks(ctx, e.opts.SeedLimit); err == nil {
			spec.Seed = seed
		}
		// A seed failure is not fatal; generation proceeds on the prompt alone.
	}

	resolution, err := e.Resolve(ctx, spec, progress)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, assemblingUpdate(resolution.Achieved(), spec.RequestedCount))
	payload := e.Assemble(spec, resolution)

	result := &RunResult{
		Resolution: resolution,
		Payload:    payload,
	}

	if len(payload.TrackIDs) == 0 {
		err := fmt.Errorf("no tracks were resolved - cannot create empty playlist")
		e.sendProgress(progress, failedUpdate(err))
		return result, err
	}

	e.sendProgress(progress, creatingPlaylistUpdate(payload.Title))

	playlist, err := e.catalog.CreatePlaylist(ctx, payload)
	if err != nil {
		err = fmt.Errorf("%w: failed to create playlist: %v", shared.ErrAPIRequest, err)
		e.sendProgress(progress, failedUpdate(err))
		return result, err
	}

	result.Playlist = playlist
	e.sendProgress(progress, playlistCreatedUpdate(playlist))
	e.sendProgress(progress, doneUpdate(resolution.Status, payload.AchievedCount, spec.RequestedCount))

	return result, nil
}

// overfetch returns how many suggestions to request for the tracks still
// needed, padding for misses and duplicates.
func overfetch(needed int, factor float64) int {
	if factor <= 1 {
		return needed
	}
	return int(math.Ceil(float64(needed) * factor))
}

// titleFromPrompt derives a playlist title when the caller gave none.
func titleFromPrompt(prompt string) string {
	const maxTitle = 100
	if len(prompt) <= maxTitle {
		return prompt
	}
	return prompt[:maxTitle-3] + "..."
}
