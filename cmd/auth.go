package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/moodlist/internal/server"
	"github.com/desertthunder/moodlist/internal/services"
	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthLogin performs the OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if config == nil {
		var err error
		if _, statErr := os.Stat(configPath); statErr == nil {
			config, err = shared.LoadConfig(configPath)
			if err != nil {
				r.logger.Warnf("failed to load config, using defaults %v", err)
				config = shared.DefaultConfig()
			}
		} else {
			config = shared.DefaultConfig()
		}
	}

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrInvalidArgument)
	}

	spotifyService, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	token, err := r.doOAuth(config, spotifyService, "authorization")
	if err != nil {
		return err
	}

	if err := config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", configPath)
	r.writePlain("You can now use: moodlist generate \"your mood prompt\"\n")

	return nil
}

// AuthStatus checks the current authentication state against the Spotify API.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("checking auth status")

	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify service not initialized (set credentials.spotify in config.toml)", shared.ErrServiceUnavailable)
	}

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrTokenExpired) {
			r.writePlain("✗ Access token expired\n")
			r.writePlain("Run 'moodlist auth login' to reauthorize\n")
			return nil
		}
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlain("✗ Not authenticated\n")
			r.writePlain("Run 'moodlist auth login' to connect your Spotify account\n")
			return nil
		}
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlain("✓ Authenticated with Spotify\n")
	r.writePlain("Account: %s\n", user.DisplayName)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}

	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(config *shared.Config, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	serverAddr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	callback := server.NewCallbackServer(serverAddr, oauthSrv.GetOAuthConfig(), state)

	r.logger.Infof("starting OAuth server for %s at %v", prefix, serverAddr)
	if err := callback.Start(); err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := callback.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := oauthSrv.GetAuthURL(state)

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	return callback.Wait(2 * time.Minute)
}

// handleAuthError checks if an error is a token expiration error and triggers reauthorization if needed.
//
// Returns true when the caller should retry the failed operation.
func (r *Runner) handleAuthError(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, shared.ErrTokenExpired) {
		return false, err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...")

	oauthSvc, ok := r.spotify.(services.OAuthService)
	if !ok {
		return true, fmt.Errorf("spotify service does not support reauthorization")
	}

	token, reauthErr := r.doOAuth(r.config, oauthSvc, "reauthorization")
	if reauthErr != nil {
		return true, fmt.Errorf("reauthorization failed: %w", reauthErr)
	}

	if saveErr := r.saveTokens(token); saveErr != nil {
		r.logger.Warn("failed to persist new tokens", "error", saveErr)
	} else {
		r.writePlain("✓ New tokens saved to %s\n", r.configPath)
	}

	if authErr := oauthSvc.OAuthenticate(ctx, token); authErr != nil {
		return true, fmt.Errorf("failed to authenticate with new tokens: %w", authErr)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...")

	return true, nil
}
