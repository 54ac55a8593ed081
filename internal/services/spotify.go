// Spotify API implementation of [CatalogService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps track additions at 100 URIs per request.
	spotifyAddBatchSize = 100

	spotifyRequestsPerSecond = 10
)

type followers struct {
	Total int `json:"total"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Owner        Owner          `json:"owner"`
	Public       bool           `json:"public"`
	ExternalURLs externalURLs   `json:"external_urls"`
	Images       []SpotifyImage `json:"images"`
	URI          string         `json:"uri"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [CatalogService] and [OAuthService] for the
// Spotify Web API. Uses [oauth2] for authentication; requests share a rate
// limiter so concurrent lookups stay inside Spotify's request budget.
type SpotifyService struct {
	config         *oauth2.Config
	httpClient     *http.Client
	credentials    map[string]string
	limiter        *rate.Limiter
	baseURL        string
	onTokenRefresh func(token *oauth2.Token)

	mu    sync.Mutex
	token *oauth2.Token
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("missing client_id in credentials")
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("missing client_secret in credentials")
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-top-read",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:      config,
		httpClient:  http.DefaultClient,
		credentials: credentials,
		limiter:     rate.NewLimiter(rate.Limit(spotifyRequestsPerSecond), 1),
		baseURL:     spotifyBaseURL,
	}, nil
}

// Authenticate performs OAuth2 authentication with Spotify.
//
// Expects either an "access_token" (with optional "refresh_token" and
// "token_expiry") or an "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		token := &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		}
		if expiry, ok := credentials["token_expiry"]; ok && expiry != "" {
			if t, err := time.Parse(time.RFC3339, expiry); err == nil {
				token.Expiry = t
			}
		}
		return s.OAuthenticate(ctx, token)
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("failed to exchange auth code: %w", err)
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// OAuthenticate installs a previously obtained token on the service.
//
// Subsequent requests use an [oauth2] client that refreshes the token as
// needed and reports refreshed tokens through the refresh callback.
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: no access token", shared.ErrInvalidCredentials)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		lastSeen: token.AccessToken,
		callback: func(refreshed *oauth2.Token) {
			s.mu.Lock()
			s.token = refreshed
			callback := s.onTokenRefresh
			s.mu.Unlock()
			if callback != nil {
				callback(refreshed)
			}
		},
	}
	s.httpClient = oauth2.NewClient(ctx, source)

	return nil
}

// SetTokenRefreshCallback registers a function invoked whenever the OAuth2
// client refreshes the access token, so callers can persist the new token.
func (s *SpotifyService) SetTokenRefreshCallback(callback func(token *oauth2.Token)) {
	s.mu.Lock()
	s.onTokenRefresh = callback
	s.mu.Unlock()
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the underlying OAuth2 configuration.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated, rate-limited HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	s.mu.Lock()
	authenticated := s.token != nil
	s.mu.Unlock()

	if !authenticated {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	apiURL := s.baseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: spotify API returned status 401", shared.ErrTokenExpired)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: spotify API rate limited (status 429)", shared.ErrServiceUnavailable)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr spotifyError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%w: spotify API error (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: spotify API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// CurrentUser retrieves the current authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	return &models.UserProfile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}, nil
}

// FindTrack searches Spotify for a track by title and artist.
//
// Queries with track and artist field filters and takes the top result.
// A miss is not an error: returns (nil, nil) when nothing matches.
func (s *SpotifyService) FindTrack(ctx context.Context, title, artist string) (*models.Track, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=1", url.QueryEscape(query))

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrLookup, err)
	}

	if len(response.Tracks.Items) == 0 {
		return nil, nil
	}

	track := toTrack(response.Tracks.Items[0])
	return &track, nil
}

// TopTracks retrieves the user's most played tracks over roughly the last six months.
func (s *SpotifyService) TopTracks(ctx context.Context, limit int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/top/tracks?limit=%d&time_range=medium_term", limit)

	var response struct {
		Items []SpotifyTrack `json:"items"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, len(response.Items))
	for i, item := range response.Items {
		tracks[i] = toTrack(item)
	}

	return tracks, nil
}

// CreatePlaylist creates a playlist for the authenticated user and adds the
// payload's tracks to it in order.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, payload *models.PlaylistPayload) (*models.Playlist, error) {
	if payload == nil || payload.Title == "" {
		return nil, fmt.Errorf("%w: playlist payload requires a title", shared.ErrInvalidInput)
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist owner: %w", err)
	}

	createReq := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}{
		Name:        payload.Title,
		Description: payload.Description,
		Public:      payload.Public,
	}

	var created SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, createReq, &created); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	uris := make([]string, len(payload.TrackIDs))
	for i, id := range payload.TrackIDs {
		if strings.HasPrefix(id, "spotify:") {
			uris[i] = id
		} else {
			uris[i] = "spotify:track:" + id
		}
	}

	for start := 0; start < len(uris); start += spotifyAddBatchSize {
		end := start + spotifyAddBatchSize
		if end > len(uris) {
			end = len(uris)
		}

		addReq := struct {
			URIs []string `json:"uris"`
		}{URIs: uris[start:end]}

		addEndpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(created.ID))
		if err := s.doRequest(ctx, http.MethodPost, addEndpoint, addReq, nil); err != nil {
			return nil, fmt.Errorf("failed to add tracks to playlist: %w", err)
		}
	}

	return &models.Playlist{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		Public:      created.Public,
		TrackCount:  len(payload.TrackIDs),
		URL:         created.ExternalURLs.Spotify,
	}, nil
}

// toTrack converts a Spotify API track to the catalog track DTO.
func toTrack(st SpotifyTrack) models.Track {
	track := models.Track{
		ID:       st.ID,
		Title:    st.Name,
		Album:    st.Album.Name,
		Duration: st.DurationMS,
		URI:      st.URI,
	}

	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}

	return track
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports token
// changes through a callback so refreshed tokens can be persisted.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(token *oauth2.Token)

	mu       sync.Mutex
	lastSeen string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.lastSeen
	if changed {
		r.lastSeen = token.AccessToken
	}
	r.mu.Unlock()

	if changed && r.callback != nil {
		func() {
			defer func() {
				_ = recover()
			}()
			r.callback(token)
		}()
	}

	return token, nil
}
