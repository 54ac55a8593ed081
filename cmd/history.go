package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/moodlist/internal/formatter"
	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// runSummary is the JSON shape for history output.
type runSummary struct {
	ID             string `json:"id"`
	Prompt         string `json:"prompt"`
	Title          string `json:"title,omitempty"`
	Status         string `json:"status"`
	RequestedCount int    `json:"requested_count"`
	AchievedCount  int    `json:"achieved_count"`
	RoundsUsed     int    `json:"rounds_used"`
	PlaylistID     string `json:"playlist_id,omitempty"`
	PlaylistURL    string `json:"playlist_url,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

func summarizeRun(run *models.GenerationRun) runSummary {
	summary := runSummary{
		ID:             run.ID(),
		Prompt:         run.Prompt(),
		Title:          run.Title(),
		Status:         run.Status().String(),
		RequestedCount: run.RequestedCount(),
		AchievedCount:  run.AchievedCount(),
		RoundsUsed:     run.RoundsUsed(),
		PlaylistID:     run.PlaylistID(),
		PlaylistURL:    run.PlaylistURL(),
		ErrorMessage:   run.ErrorMessage(),
		CreatedAt:      run.CreatedAt().Format(time.RFC3339),
	}
	if completed := run.CompletedAt(); completed != nil {
		summary.CompletedAt = completed.Format(time.RFC3339)
	}
	return summary
}

// HistoryList lists past generation runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStorage(); err != nil {
		return err
	}

	criteria := map[string]any{}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}
	if limit := cmd.Int("limit"); limit > 0 {
		criteria["limit"] = limit
	}

	r.logger.Info("listing generation runs", "criteria", criteria)

	runs, err := r.runs.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if cmd.Bool("json") {
		summaries := make([]runSummary, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, summarizeRun(run))
		}
		return r.writeJSON(summaries, cmd.Bool("pretty"))
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded yet. Try: moodlist generate \"upbeat indie for a morning run\"\n")
		return nil
	}

	r.writePlain("Found %d run(s):\n\n", len(runs))
	for i, run := range runs {
		title := run.Title()
		if title == "" {
			title = run.Prompt()
		}
		r.writePlain("%d. %s\n", i+1, title)
		r.writePlain("   ID: %s\n", run.ID())
		r.writePlain("   Status: %s\n", run.Status())
		r.writePlain("   Tracks: %d/%d\n", run.AchievedCount(), run.RequestedCount())
		r.writePlain("   Created: %s\n", run.CreatedAt().Format("2006-01-02 15:04"))
		if run.PlaylistURL() != "" {
			r.writePlain("   URL: %s\n", run.PlaylistURL())
		}
		r.writePlain("\n")
	}

	return nil
}

// HistoryShow prints a run with its resolved tracks.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.StringArg("id")
	if runID == "" {
		return fmt.Errorf("%w: a run id is required", shared.ErrMissingArgument)
	}

	if err := r.openStorage(); err != nil {
		return err
	}

	run, err := r.runs.Get(runID)
	if err != nil {
		return err
	}

	tracks, err := r.runs.TracksFor(run.ID())
	if err != nil {
		return fmt.Errorf("failed to load run tracks: %w", err)
	}

	if cmd.Bool("json") {
		detail := struct {
			runSummary
			Tracks []models.Track `json:"tracks"`
		}{runSummary: summarizeRun(run), Tracks: make([]models.Track, 0, len(tracks))}
		for _, track := range tracks {
			detail.Tracks = append(detail.Tracks, track.DTO())
		}
		return r.writeJSON(detail, cmd.Bool("pretty"))
	}

	title := run.Title()
	if title == "" {
		title = run.Prompt()
	}

	r.writePlainHeader(title)
	r.writePlain("Prompt: %s\n", run.Prompt())
	r.writePlain("Status: %s\n", run.Status())
	r.writePlain("Tracks: %d/%d in %d round(s)\n", run.AchievedCount(), run.RequestedCount(), run.RoundsUsed())
	r.writePlain("Created: %s\n", run.CreatedAt().Format("2006-01-02 15:04"))
	if run.PlaylistURL() != "" {
		r.writePlain("URL: %s\n", run.PlaylistURL())
	}
	if run.ErrorMessage() != "" {
		r.writePlain("Error: %s\n", run.ErrorMessage())
	}

	if len(tracks) > 0 {
		r.writePlain("\n")
		for i, track := range tracks {
			r.writePlain("%d. %s - %s", i+1, track.Artist(), track.Title())
			if track.Album() != "" {
				r.writePlain(" (%s)", track.Album())
			}
			if track.Duration() > 0 {
				r.writePlain(" [%s]", shared.FormatDuration(track.Duration()))
			}
			r.writePlain("\n")
		}
	}

	return nil
}

// HistoryExport writes a run's playlist to a file in the requested format.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.StringArg("id")
	if runID == "" {
		return fmt.Errorf("%w: a run id is required", shared.ErrMissingArgument)
	}

	if err := r.openStorage(); err != nil {
		return err
	}

	run, err := r.runs.Get(runID)
	if err != nil {
		return err
	}

	export, err := r.buildExport(run)
	if err != nil {
		return fmt.Errorf("failed to build export: %w", err)
	}

	output := cmd.String("output")

	switch format := cmd.String("format"); format {
	case "json":
		if output == "" {
			output = fmt.Sprintf("%s.json", run.ID())
		}
		written, err := formatter.WriteJSONExport(export, output)
		if err != nil {
			return fmt.Errorf("failed to write JSON export: %w", err)
		}
		r.writePlain("✓ Exported to %s\n", written)
	case "csv":
		if output == "" {
			output = run.ID()
		}
		result, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return fmt.Errorf("failed to write CSV export: %w", err)
		}
		r.writePlain("✓ Exported to %s and %s\n", result.TracksFile, result.MetadataFile)
	case "markdown", "md":
		if output == "" {
			output = run.ID()
		}
		result, err := formatter.WriteMarkdownExport(export, output)
		if err != nil {
			return fmt.Errorf("failed to write Markdown export: %w", err)
		}
		r.writePlain("✓ Exported to %s\n", result.Files[0])
	case "text", "txt":
		if output == "" {
			output = fmt.Sprintf("%s_tracks.txt", run.ID())
		}
		written, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return fmt.Errorf("failed to write text export: %w", err)
		}
		r.writePlain("✓ Exported to %s\n", written)
	default:
		return fmt.Errorf("%w: unknown format %q (expected json, csv, markdown, or text)", shared.ErrInvalidFlag, format)
	}

	return nil
}

// buildExport assembles a playlist export from a recorded run.
func (r *Runner) buildExport(run *models.GenerationRun) (*models.PlaylistExport, error) {
	persisted, err := r.runs.TracksFor(run.ID())
	if err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(persisted))
	for _, track := range persisted {
		tracks = append(tracks, track.DTO())
	}

	title := run.Title()
	if title == "" {
		title = run.Prompt()
	}

	return &models.PlaylistExport{
		Playlist: models.Playlist{
			ID:          run.PlaylistID(),
			Name:        title,
			Description: fmt.Sprintf("%s (generated by moodlist)", run.Prompt()),
			TrackCount:  len(tracks),
			URL:         run.PlaylistURL(),
		},
		Tracks: tracks,
	}, nil
}
