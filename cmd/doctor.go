package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// Doctor verifies configuration, storage, and service connectivity.
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	failures := 0

	pass := func(format string, args ...any) {
		r.writePlain("✓ "+format+"\n", args...)
	}
	fail := func(format string, args ...any) {
		failures++
		r.writePlain("✗ "+format+"\n", args...)
	}

	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			pass("config file found at %s", r.configPath)
		} else {
			fail("config file missing at %s (run 'moodlist setup config')", r.configPath)
		}
	}

	if r.config.Credentials.Spotify.ClientID != "" && r.config.Credentials.Spotify.ClientSecret != "" {
		pass("Spotify credentials configured")
	} else {
		fail("Spotify credentials missing (set credentials.spotify.client_id and client_secret)")
	}

	if r.config.Credentials.Gemini.APIKey != "" {
		pass("Gemini API key configured")
	} else {
		fail("Gemini API key missing (set credentials.gemini.api_key or GEMINI_API_KEY)")
	}

	if err := r.openStorage(); err != nil {
		fail("database unavailable: %v", err)
	} else {
		pass("database ready at %s", r.config.Database.Path)
	}

	type pinger interface {
		Ping(ctx context.Context) error
	}

	if r.generator == nil {
		fail("suggestion generator not initialized")
	} else if p, ok := r.generator.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			fail("%s unreachable: %v", r.generator.Name(), err)
		} else {
			pass("%s reachable", r.generator.Name())
		}
	} else {
		pass("%s configured", r.generator.Name())
	}

	if r.spotify == nil {
		fail("Spotify service not initialized")
	} else if user, err := r.spotify.CurrentUser(ctx); err != nil {
		switch {
		case errors.Is(err, shared.ErrTokenExpired):
			fail("Spotify token expired (run 'moodlist auth login')")
		case errors.Is(err, shared.ErrNotAuthenticated):
			fail("Spotify not authenticated (run 'moodlist auth login')")
		default:
			fail("Spotify unreachable: %v", err)
		}
	} else {
		pass("Spotify authenticated as %s", user.DisplayName)
	}

	if failures > 0 {
		return fmt.Errorf("%w: %d check(s) failed", shared.ErrServiceUnavailable, failures)
	}

	r.writePlainln("All checks passed. Try: moodlist generate \"upbeat indie for a morning run\"")
	return nil
}
