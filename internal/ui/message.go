package ui

import (
	"github.com/desertthunder/moodlist/internal/tasks"
)

// progressMsg carries one engine progress update into the Elm loop.
type progressMsg tasks.ProgressUpdate

// generationDoneMsg signals that the engine finished (or failed).
type generationDoneMsg struct {
	result *tasks.RunResult
	err    error
}
