// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for playlist generation:
//  1. [PromptView] : Enter a mood or activity prompt
//  2. [ConfirmView] : Confirm the generation request
//  3. [GenerateView] : Monitor real-time resolution progress
//  4. [ResultView] : Browse the created playlist and its tracks
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the PlaylistEngine, providing non-blocking status reporting during generation;
// the engine's result travels through a separate buffered channel so the Elm loop never touches engine state concurrently.
//
// Pressing esc during generation sets the engine's cancellation flag; the run stops at the next round boundary and
// everything resolved so far is kept.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
