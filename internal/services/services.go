// package services defines the provider interfaces the resolution engine
// is built against and their HTTP API implementations.
//
// Gemini (suggestions), Spotify (catalog)
package services

import (
	"context"

	"github.com/desertthunder/moodlist/internal/models"
	"golang.org/x/oauth2"
)

// SuggestionGenerator produces candidate (title, artist) pairs for a prompt.
type SuggestionGenerator interface {
	// Generate requests count suggestions for the prompt. Pairs in exclude
	// were already tried and must not be suggested again; seed tracks give
	// the generator a taste profile to draw inspiration from. Errors mean
	// the provider failed hard for this call.
	Generate(ctx context.Context, prompt string, count int, exclude []models.Suggestion, seed []models.Track) ([]models.Suggestion, error)

	// Name returns the name of the provider (e.g., "Gemini")
	Name() string
}

// CatalogService is the music platform that resolved tracks and the final
// playlist live on.
type CatalogService interface {
	// Authenticate performs OAuth or API key authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// FindTrack searches the catalog for a track by title and artist.
	// Returns (nil, nil) when the catalog has no match; an error means the
	// lookup itself failed.
	FindTrack(ctx context.Context, title, artist string) (*models.Track, error)

	// CreatePlaylist creates a playlist from the payload and populates it
	// with the payload's tracks.
	CreatePlaylist(ctx context.Context, payload *models.PlaylistPayload) (*models.Playlist, error)

	// TopTracks retrieves the authenticated user's most played tracks.
	TopTracks(ctx context.Context, limit int) ([]models.Track, error)

	// CurrentUser retrieves the authenticated user's profile.
	CurrentUser(ctx context.Context) (*models.UserProfile, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService is implemented by catalog services that authenticate via an
// OAuth2 authorization code flow.
type OAuthService interface {
	// GetAuthURL returns the provider's authorization URL for user login.
	GetAuthURL(state string) string

	// GetOAuthConfig returns the underlying OAuth2 configuration.
	GetOAuthConfig() *oauth2.Config

	// OAuthenticate installs a previously obtained token on the service.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}
