package server

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// successPage is served after a completed authorization so the user knows to
// return to the terminal.
const successPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>moodlist</title>
<style>
  body { background: #121212; color: #eee; font: 16px/1.5 system-ui, sans-serif; }
  main { max-width: 28rem; margin: 15vh auto; text-align: center; }
  h1 { color: #1DB954; font-size: 1.5rem; }
</style>
</head>
<body>
<main>
  <h1>Spotify connected</h1>
  <p>moodlist received your authorization. You can close this tab and head back to the terminal.</p>
</main>
</body>
</html>
`

// OAuthResult is the outcome of one authorization attempt.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the authorization code callback for the login flow.
//
// It validates the state parameter, exchanges the code for tokens, and
// delivers exactly one OAuthResult. Repeat callbacks are rejected.
type OAuthHandler struct {
	config  *oauth2.Config
	state   string
	results chan OAuthResult
	once    sync.Once
	handled bool
	mu      sync.Mutex
}

// NewOAuthHandler creates a callback handler bound to the given OAuth2 config
// and state token. The state token should be cryptographically random.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		config:  config,
		state:   state,
		results: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the OAuth callback request.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "Callback already handled", http.StatusBadRequest)
		return
	}
	h.handled = true
	h.mu.Unlock()

	query := r.URL.Query()

	if query.Get("state") != h.state {
		h.send(OAuthResult{err: fmt.Errorf("state parameter mismatch")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.send(OAuthResult{err: fmt.Errorf("authorization was denied: %s - %s",
			query.Get("error"), query.Get("error_description"))})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code)
	if err != nil {
		h.send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, successPage)
}

// send delivers the result exactly once; later outcomes are dropped.
func (h *OAuthHandler) send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result returns the channel that receives the single flow outcome.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}
