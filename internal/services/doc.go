// Package services defines the provider interfaces the resolution engine
// depends on and implements them for Gemini and Spotify.
//
// # Provider Interfaces
//
// [SuggestionGenerator] produces candidate (title, artist) pairs for a mood
// prompt. [CatalogService] resolves those pairs against a music catalog and
// materializes the final playlist. The engine only sees these interfaces,
// so providers can be swapped or mocked without touching resolution logic.
//
// # Gemini Implementation
//
// [GeminiService] calls the generateContent REST endpoint directly. The
// prompt instructs the model to answer with a bare JSON array of
// {"title", "artist"} objects; parsing falls back to the outermost bracketed
// slice when the model wraps the array in markdown or prose. Pairs already
// tried are listed in the prompt so retry rounds get fresh candidates.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token
// refresh. The [oauth2.Client] refreshes expired tokens using the refresh
// token; refreshed tokens are reported through SetTokenRefreshCallback so
// the CLI can persist them. Requests share a rate limiter to stay inside
// Spotify's request budget when lookups run concurrently.
//
// # OAuth Service Extension
//
// The [OAuthService] interface extends CatalogService for OAuth providers.
//
// [SpotifyService] implements this for the server-side OAuth flow used by
// the CLI's auth command.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : OAuth token expired, reauthorization needed
//   - [shared.ErrGeneration] : suggestion provider failed hard
//   - [shared.ErrLookup] : a catalog lookup failed in transit
//   - [shared.ErrAPIRequest] : any other HTTP request failure
//
// A catalog search that simply finds nothing is not an error: FindTrack
// returns (nil, nil) so callers can tell a miss from a failure.
package services
