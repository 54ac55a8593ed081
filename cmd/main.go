package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/moodlist/internal/services"
	"github.com/desertthunder/moodlist/internal/shared"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func main() {
	_ = godotenv.Load()

	logger := shared.NewLogger(nil)
	configPath := "config.toml"

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		}
	}
	config.ApplyEnv()

	var generator services.SuggestionGenerator
	if config.Credentials.Gemini.APIKey != "" {
		if svc, err := services.NewGeminiService(config.Credentials.Gemini.APIKey, config.Credentials.Gemini.Model); err == nil {
			generator = svc
		}
	}

	var catalog services.CatalogService
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map()); err == nil {
			if token := config.Credentials.Spotify.Token(); token != nil {
				if err := svc.OAuthenticate(context.Background(), token); err != nil {
					logger.Warn("failed to install saved token", "error", err)
				}
			}
			catalog = svc
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Generator:  generator,
		Spotify:    catalog,
		Logger:     logger,
	})
	defer runner.Close()

	if svc, ok := catalog.(*services.SpotifyService); ok {
		svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
			if err := runner.saveTokens(token); err != nil {
				logger.Warn("failed to persist refreshed token", "error", err)
			}
		})
	}

	app := &cli.Command{
		Name:     "moodlist",
		Usage:    "Generate Spotify playlists from mood prompts",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
