package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/moodlist/internal/formatter"
	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/desertthunder/moodlist/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Generate resolves a mood prompt into a Spotify playlist and records the run.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(cmd.StringArg("prompt"))
	if prompt == "" {
		return fmt.Errorf("%w: a mood prompt is required", shared.ErrMissingArgument)
	}

	count := cmd.Int("count")
	if count <= 0 {
		count = r.config.Generation.DefaultCount
	}
	if count <= 0 {
		count = 20
	}

	if cmd.Bool("public") {
		r.config.Generation.PublicPlaylists = true
	}
	if cmd.Bool("no-seed") {
		r.config.Generation.SeedLimit = 0
	}

	engine, err := r.ensureEngine()
	if err != nil {
		return err
	}

	// Cheap preflight so an expired token reauthorizes before any rounds run.
	if _, err := r.spotify.CurrentUser(ctx); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return fmt.Errorf("%w: run 'moodlist auth login' to connect your Spotify account", shared.ErrNotAuthenticated)
		}
		retry, authErr := r.handleAuthError(ctx, err)
		if !retry {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		if authErr != nil {
			return authErr
		}
	}

	spec := models.PlaylistSpec{
		Title:          cmd.String("title"),
		Prompt:         prompt,
		RequestedCount: count,
	}

	r.logger.Info("starting generation", "prompt", prompt, "count", count)
	r.writePlain("Generating playlist for: %s\n\n", prompt)

	result, run, err := r.executeRun(ctx, engine, spec)
	if err != nil {
		return err
	}

	resolution := result.Resolution
	playlist := result.Playlist

	r.writePlain("\n")
	r.writePlainHeader("Generation Complete!")
	r.writePlain("Playlist: %s (%d tracks)\n", playlist.Name, playlist.TrackCount)
	r.writePlain("Resolved: %d/%d in %d round(s)\n", result.Payload.AchievedCount, spec.RequestedCount, resolution.RoundsUsed)
	if resolution.Status.Partial() {
		r.writePlain("Status: %s\n", resolution.Status)
	}
	r.writePlain("Visibility: %s\n", shared.VisibilityString(playlist.Public))
	if playlist.URL != "" {
		r.writePlain("URL: %s\n", playlist.URL)
	}
	r.writePlain("Run ID: %s\n", run.ID())

	if cmd.Bool("save") || cmd.String("output") != "" {
		export, err := r.buildExport(run)
		if err != nil {
			return fmt.Errorf("failed to build export: %w", err)
		}

		path := cmd.String("output")
		if path == "" {
			path = fmt.Sprintf("%s.json", run.ID())
		}

		written, err := formatter.WriteJSONExport(export, path)
		if err != nil {
			return fmt.Errorf("failed to save export: %w", err)
		}
		r.writePlain("\n✓ Export saved to %s\n", written)
	}

	return nil
}

// executeRun drives the engine with progress streaming and records the run.
//
// The run row is written before the engine starts and updated with the
// outcome afterward, so failed runs stay inspectable in history.
func (r *Runner) executeRun(ctx context.Context, engine *tasks.PlaylistEngine, spec models.PlaylistSpec) (*tasks.RunResult, *models.GenerationRun, error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	run := models.NewGenerationRun(0, spec.Prompt, spec.Title, spec.RequestedCount)
	if err := r.runs.Create(run); err != nil {
		return nil, nil, fmt.Errorf("failed to record run: %w", err)
	}

	started := time.Now()
	run.SetStatus(models.StatusRunning)
	run.SetStartedAt(&started)
	if err := r.runs.Update(run); err != nil {
		r.logger.Warn("failed to mark run as running", "error", err)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Seeding:
				r.writePlain("🎧 %s\n", update.Message)
			case tasks.Generating:
				r.writePlain("\n✨ %s\n", update.Message)
			case tasks.Resolving:
				r.writePlain("   %s\n", update.Message)
			case tasks.RoundComplete:
				r.writePlain("   %s\n", update.Message)
			case tasks.CreatingPlaylist:
				r.writePlain("\n📝 %s\n", update.Message)
			}
		}
	}()

	result, runErr := engine.Run(ctx, spec, progressCh)
	close(progressCh)
	<-done

	completed := time.Now()
	run.SetCompletedAt(&completed)
	recordOutcome(run, result, runErr)

	if err := r.runs.Update(run); err != nil {
		r.logger.Warn("failed to record run outcome", "error", err)
	}

	if result != nil {
		if err := r.attachRunTracks(run.ID(), result.Payload); err != nil {
			r.logger.Warn("failed to attach run tracks", "error", err)
		}
	}

	return result, run, runErr
}

// recordOutcome maps an engine result onto the persisted run.
func recordOutcome(run *models.GenerationRun, result *tasks.RunResult, runErr error) {
	if runErr != nil {
		run.SetErrorMessage(runErr.Error())
	}

	if result == nil || result.Resolution == nil {
		return
	}

	resolution := result.Resolution
	run.SetStatus(resolution.Status)
	run.SetRoundsUsed(resolution.RoundsUsed)
	if resolution.Err != nil && runErr == nil {
		run.SetErrorMessage(resolution.Err.Error())
	}

	if result.Payload != nil {
		run.SetAchievedCount(result.Payload.AchievedCount)
		if run.Title() == "" {
			run.SetTitle(result.Payload.Title)
		}
	} else {
		run.SetAchievedCount(resolution.Achieved())
	}

	if result.Playlist != nil {
		run.SetPlaylistID(result.Playlist.ID)
		run.SetPlaylistURL(result.Playlist.URL)
	}
}

// attachRunTracks links the playlist's tracks to the run in playlist order.
//
// Resolved tracks normally reach the tracks table through the engine's cache
// write-through; anything missing is backfilled from the payload.
func (r *Runner) attachRunTracks(runID string, payload *models.PlaylistPayload) error {
	if payload == nil || len(payload.Tracks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(payload.Tracks))
	for _, resolved := range payload.Tracks {
		persisted, err := r.tracks.GetByCatalogID(resolved.CatalogID)
		if err != nil {
			track := models.Track{ID: resolved.CatalogID, Title: resolved.Title, Artist: resolved.Artist}
			if cacheErr := r.cache.CacheTrack(track); cacheErr != nil {
				return cacheErr
			}
			if persisted, err = r.tracks.GetByCatalogID(resolved.CatalogID); err != nil {
				return err
			}
		}
		ids = append(ids, persisted.ID())
	}

	return r.runs.AttachTracks(runID, ids)
}
