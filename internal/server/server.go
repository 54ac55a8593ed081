// package server runs the loopback HTTP server that completes the CLI's OAuth login.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/moodlist/internal/shared"
	"golang.org/x/oauth2"
)

// CallbackServer is a short-lived local HTTP server that receives a single
// OAuth2 authorization callback and exchanges it for tokens.
type CallbackServer struct {
	handler  *OAuthHandler
	httpSrv  *http.Server
	listener net.Listener
	errs     chan error
}

// NewCallbackServer builds a callback server bound to addr for the given
// OAuth2 config and state token.
func NewCallbackServer(addr string, config *oauth2.Config, state string) *CallbackServer {
	handler := NewOAuthHandler(config, state)

	mux := http.NewServeMux()
	for _, route := range handler.Routes() {
		mux.Handle(route, handler)
	}

	return &CallbackServer{
		handler: handler,
		httpSrv: &http.Server{Addr: addr, Handler: mux},
		errs:    make(chan error, 1),
	}
}

// Addr reports the bound listen address once Start has succeeded, otherwise
// the configured address.
func (s *CallbackServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpSrv.Addr
}

// Start binds the listen address and begins serving in the background.
// Serve failures after a successful bind surface through Wait.
func (s *CallbackServer) Start() error {
	listener, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpSrv.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.errs <- err
		}
	}()

	return nil
}

// Wait blocks until the callback delivers a token, the server fails, or the
// timeout elapses.
func (s *CallbackServer) Wait(timeout time.Duration) (*oauth2.Token, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.handler.Result():
		if result.Error() != nil {
			return nil, fmt.Errorf("authorization failed: %w", result.Error())
		}
		if result.Token == nil {
			return nil, fmt.Errorf("no token received")
		}
		return result.Token, nil
	case err := <-s.errs:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	}
}

// Shutdown stops the server, waiting up to the context deadline for in-flight
// requests to finish.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
