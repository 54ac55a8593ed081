package models

// Track represents a catalog track.
// ID is the catalog's opaque identifier and the dedup key across rounds.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"` // milliseconds
	URI      string `json:"uri,omitempty"`
}

// Playlist represents playlist metadata on the target platform.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
	TrackCount  int    `json:"track_count"`
	URL         string `json:"url,omitempty"`
}

// PlaylistExport bundles a playlist with its full track listing for file exports.
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// UserProfile represents the authenticated user on a catalog service.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}
