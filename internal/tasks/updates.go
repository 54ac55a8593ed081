package tasks

import (
	"fmt"

	"github.com/desertthunder/moodlist/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Seeding Phase = iota
	Generating
	Resolving
	RoundComplete
	Assembling
	CreatingPlaylist
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Seeding:
		return "seeding"
	case Generating:
		return "generating"
	case Resolving:
		return "resolving"
	case RoundComplete:
		return "round_complete"
	case Assembling:
		return "assembling"
	case CreatingPlaylist:
		return "creating_playlist"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func seedingUpdate(limit int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Seeding,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching top %d tracks for inspiration...", limit),
	}
}

func generatingUpdate(round, maxRounds, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Generating,
		Step:    round,
		Total:   maxRounds,
		Message: fmt.Sprintf("[round %d/%d] Requesting %d suggestions...", round, maxRounds, count),
	}
}

func resolvingUpdate(step, total int, s models.Suggestion) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolving,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Searching: %s - %s", step, total, s.Artist, s.Title),
	}
}

func lookupHitUpdate(step, total int, track models.ResolvedTrack) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolving,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s - %s", step, total, track.Artist, track.Title),
		Data:    track,
	}
}

func lookupMissUpdate(step, total int, s models.Suggestion) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolving,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s - %s (no match)", step, total, s.Artist, s.Title),
	}
}

func duplicateUpdate(step, total int, s models.Suggestion) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolving,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ⊘ %s - %s (already in playlist)", step, total, s.Artist, s.Title),
	}
}

func roundCompleteUpdate(round, achieved, requested int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RoundComplete,
		Step:    achieved,
		Total:   requested,
		Message: fmt.Sprintf("Round %d complete: %d/%d tracks resolved", round, achieved, requested),
	}
}

func assemblingUpdate(achieved, requested int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Assembling,
		Step:    achieved,
		Total:   requested,
		Message: fmt.Sprintf("Assembling playlist (%d/%d tracks)...", achieved, requested),
	}
}

func creatingPlaylistUpdate(title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatingPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist: %s...", title),
	}
}

func playlistCreatedUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatingPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func doneUpdate(status models.ResolutionStatus, achieved, requested int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    achieved,
		Total:   requested,
		Message: fmt.Sprintf("Finished (%s): %d/%d tracks", status, achieved, requested),
		Data:    status,
	}
}

func failedUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Generation failed: %v", err),
	}
}
