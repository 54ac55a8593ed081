package tasks

import (
	"context"
	"sync/atomic"

	"github.com/desertthunder/moodlist/internal/models"
	"golang.org/x/sync/errgroup"
)

// CancelFlag is a cooperative cancellation handle for a resolution run.
//
// The engine polls it at round boundaries, so a cancelled run keeps every
// fully completed round. Safe for concurrent use; a UI goroutine can cancel
// while the engine runs.
type CancelFlag struct {
	flag atomic.Bool
}

// NewCancelFlag creates an unset cancellation flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{}
}

// Cancel requests cancellation. Idempotent.
func (c *CancelFlag) Cancel() {
	c.flag.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (c *CancelFlag) Cancelled() bool {
	return c.flag.Load()
}

// Reset clears the flag so the handle can drive another run.
func (c *CancelFlag) Reset() {
	c.flag.Store(false)
}

// cancelled reports whether the run should stop, via context or flag.
func cancelled(ctx context.Context, flag *CancelFlag) bool {
	if ctx.Err() != nil {
		return true
	}
	return flag != nil && flag.Cancelled()
}

// lookupOutcome pairs a suggestion with its catalog match, nil on a miss.
type lookupOutcome struct {
	suggestion models.Suggestion
	track      *models.Track
}

// lookupRound resolves a round's fresh suggestions against the catalog.
//
// With LookupConcurrency > 1, lookups run on a bounded group but outcomes
// are merged back in suggestion order, so the caller's state evolves exactly
// as it would sequentially.
func (e *PlaylistEngine) lookupRound(ctx context.Context, fresh []models.Suggestion, progress chan<- ProgressUpdate) []lookupOutcome {
	outcomes := make([]lookupOutcome, len(fresh))

	if e.opts.LookupConcurrency <= 1 {
		for i, s := range fresh {
			e.sendProgress(progress, resolvingUpdate(i+1, len(fresh), s))
			outcomes[i] = lookupOutcome{suggestion: s, track: e.findTrack(ctx, s)}
		}
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LookupConcurrency)

	for i, s := range fresh {
		g.Go(func() error {
			e.sendProgress(progress, resolvingUpdate(i+1, len(fresh), s))
			outcomes[i] = lookupOutcome{suggestion: s, track: e.findTrack(gctx, s)}
			return nil
		})
	}

	// Workers never return errors; misses and failures are nil outcomes.
	_ = g.Wait()

	return outcomes
}

// findTrack resolves one suggestion, consulting the cache first.
//
// Lookup failures and timeouts degrade to a miss: one bad lookup never sinks
// the round.
func (e *PlaylistEngine) findTrack(ctx context.Context, s models.Suggestion) *models.Track {
	if e.cache != nil {
		if track, ok := e.cache.Lookup(s.Title, s.Artist); ok {
			return track
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.opts.LookupTimeout)
	defer cancel()

	track, err := e.catalog.FindTrack(lookupCtx, s.Title, s.Artist)
	if err != nil || track == nil {
		return nil
	}

	if e.cache != nil {
		e.cache.Store(*track)
	}

	return track
}
