// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
)

// MockGenerator is a test double for [services.SuggestionGenerator].
// Batches are handed out one per Generate call, in order; once they run
// out Generate returns an empty batch.
type MockGenerator struct {
	Batches [][]models.Suggestion
	Err     error
	Calls   int
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, count int, exclude []models.Suggestion, seed []models.Track) ([]models.Suggestion, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Calls <= len(m.Batches) {
		return m.Batches[m.Calls-1], nil
	}
	return nil, nil
}

func (m *MockGenerator) Name() string { return "mock-generator" }

// MockCatalog is a test double for [services.CatalogService]. Tracks is
// keyed by [shared.NormalizeTrackKey]; anything absent is a miss.
type MockCatalog struct {
	Tracks          map[string]models.Track
	Top             []models.Track
	Playlist        *models.Playlist
	Created         []*models.PlaylistPayload
	AuthenticateErr error
	FindErr         error
	CreateErr       error
	TopErr          error
	UserErr         error
}

func (m *MockCatalog) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.AuthenticateErr
}

func (m *MockCatalog) FindTrack(ctx context.Context, title, artist string) (*models.Track, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	if track, ok := m.Tracks[shared.NormalizeTrackKey(title, artist)]; ok {
		return &track, nil
	}
	return nil, nil
}

func (m *MockCatalog) CreatePlaylist(ctx context.Context, payload *models.PlaylistPayload) (*models.Playlist, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.Created = append(m.Created, payload)
	if m.Playlist != nil {
		return m.Playlist, nil
	}
	return &models.Playlist{
		ID:         "mock_playlist",
		Name:       payload.Title,
		Public:     payload.Public,
		TrackCount: len(payload.TrackIDs),
		URL:        "https://example.com/playlist/mock_playlist",
	}, nil
}

func (m *MockCatalog) TopTracks(ctx context.Context, limit int) ([]models.Track, error) {
	if m.TopErr != nil {
		return nil, m.TopErr
	}
	if limit > 0 && limit < len(m.Top) {
		return m.Top[:limit], nil
	}
	return m.Top, nil
}

func (m *MockCatalog) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	if m.UserErr != nil {
		return nil, m.UserErr
	}
	return &models.UserProfile{ID: "mock_user", DisplayName: "Mock User"}, nil
}

func (m *MockCatalog) Name() string { return "mock-catalog" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
