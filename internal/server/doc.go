// Package server runs the loopback HTTP server used during OAuth2 logins.
//
// # Callback Server
//
// The CLI has no web frontend. When the user runs the auth command, the
// browser is sent to Spotify's consent page with a redirect back to a
// [CallbackServer] listening on localhost.
//
// [CallbackServer.Start] binds the configured address and serves in the
// background; [CallbackServer.Wait] blocks until the callback arrives, the
// server fails, or the timeout elapses; [CallbackServer.Shutdown] stops the
// server once the flow completes.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback.
//
// The handler validates the state parameter (CSRF protection), exchanges the
// authorization code for tokens, and delivers a single [OAuthResult] through
// a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Usage
//
//	srv := server.NewCallbackServer("localhost:8080", conf, state)
//	if err := srv.Start(); err != nil {
//		return err
//	}
//	defer srv.Shutdown(ctx)
//
//	token, err := srv.Wait(2 * time.Minute)
package server
