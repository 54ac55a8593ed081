package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/moodlist/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.ResolvedTrack] to implement [list.Item].
type trackItem struct {
	track models.ResolvedTrack
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.track.Rank, i.track.Title) }
func (i trackItem) Description() string { return i.track.Artist }

// newTrackList builds the result view's track list from a creation payload.
func newTrackList(tracks []models.ResolvedTrack, width, height int) list.Model {
	items := make([]list.Item, len(tracks))
	for i, track := range tracks {
		items[i] = trackItem{track: track}
	}

	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}
