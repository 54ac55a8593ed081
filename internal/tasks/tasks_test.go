package tasks

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/services"
	"github.com/desertthunder/moodlist/internal/shared"
)

var (
	_ services.SuggestionGenerator = (*mockGenerator)(nil)
	_ services.CatalogService      = (*mockCatalog)(nil)
	_ TrackCacher                  = (*mockCache)(nil)
)

type generatorCall struct {
	prompt  string
	count   int
	exclude []models.Suggestion
	seed    []models.Track
}

type mockGenerator struct {
	batches   [][]models.Suggestion // one batch per Generate call, in order
	err       error
	errAtCall int         // 1-based call that fails; 0 fails every call once err is set
	cancel    *CancelFlag // fired after cancelAt calls, for boundary tests
	cancelAt  int
	calls     []generatorCall
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, count int, exclude []models.Suggestion, seed []models.Track) ([]models.Suggestion, error) {
	m.calls = append(m.calls, generatorCall{
		prompt:  prompt,
		count:   count,
		exclude: append([]models.Suggestion(nil), exclude...),
		seed:    seed,
	})
	n := len(m.calls)

	if m.cancel != nil && n == m.cancelAt {
		m.cancel.Cancel()
	}
	if m.err != nil && (m.errAtCall == 0 || m.errAtCall == n) {
		return nil, m.err
	}
	if n <= len(m.batches) {
		return m.batches[n-1], nil
	}
	return nil, nil
}

func (m *mockGenerator) Name() string { return "mock generator" }

type mockCatalog struct {
	mu         sync.Mutex
	tracks     map[string]*models.Track // keyed by shared.NormalizeTrackKey
	lookupErrs map[string]error
	finds      []string // lookup keys in call order
	delay      time.Duration
	top        []models.Track
	topErr     error
	topCalls   int
	playlist   *models.Playlist
	createErr  error
	created    []*models.PlaylistPayload
	authErr    error
}

func (m *mockCatalog) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.authErr
}

func (m *mockCatalog) FindTrack(ctx context.Context, title, artist string) (*models.Track, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	key := shared.NormalizeTrackKey(title, artist)

	m.mu.Lock()
	m.finds = append(m.finds, key)
	err := m.lookupErrs[key]
	track := m.tracks[key]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, nil
	}
	return track, nil
}

func (m *mockCatalog) CreatePlaylist(ctx context.Context, payload *models.PlaylistPayload) (*models.Playlist, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, payload)
	if m.playlist != nil {
		return m.playlist, nil
	}
	return &models.Playlist{
		ID:         "pl_1",
		Name:       payload.Title,
		Public:     payload.Public,
		TrackCount: len(payload.TrackIDs),
		URL:        "https://example.com/playlist/pl_1",
	}, nil
}

func (m *mockCatalog) TopTracks(ctx context.Context, limit int) ([]models.Track, error) {
	m.topCalls++
	if m.topErr != nil {
		return nil, m.topErr
	}
	return m.top, nil
}

func (m *mockCatalog) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	return &models.UserProfile{ID: "user_1", DisplayName: "Test User"}, nil
}

func (m *mockCatalog) Name() string { return "mock catalog" }

type mockCache struct {
	mu      sync.Mutex
	entries map[string]models.Track
	stores  int
}

func (m *mockCache) Lookup(title, artist string) (*models.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	track, ok := m.entries[shared.NormalizeTrackKey(title, artist)]
	if !ok {
		return nil, false
	}
	return &track, true
}

func (m *mockCache) Store(track models.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]models.Track{}
	}
	m.entries[shared.NormalizeTrackKey(track.Title, track.Artist)] = track
	m.stores++
}

func trackIDs(tracks []models.ResolvedTrack) []string {
	ids := make([]string, len(tracks))
	for i, track := range tracks {
		ids[i] = track.CatalogID
	}
	return ids
}

func TestPlaylistEngine_Resolve(t *testing.T) {
	tests := []struct {
		name          string
		spec          models.PlaylistSpec
		opts          ResolveOpts
		generator     *mockGenerator
		catalog       *mockCatalog
		wantStatus    models.ResolutionStatus
		wantRounds    int
		wantIDs       []string
		wantResultErr error
	}{
		{
			name: "completes in one round",
			spec: models.PlaylistSpec{Prompt: "upbeat run", RequestedCount: 3},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}, {Title: "C", Artist: "Z"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
				"b|y": {ID: "cat_b", Title: "B", Artist: "Y"},
				"c|z": {ID: "cat_c", Title: "C", Artist: "Z"},
			}},
			wantStatus: models.StatusComplete,
			wantRounds: 1,
			wantIDs:    []string{"cat_a", "cat_b", "cat_c"},
		},
		{
			name: "retries misses with fresh suggestions",
			spec: models.PlaylistSpec{Prompt: "upbeat run", RequestedCount: 3},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}, {Title: "C", Artist: "Z"}},
				{{Title: "D", Artist: "W"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
				"c|z": {ID: "cat_c", Title: "C", Artist: "Z"},
				"d|w": {ID: "cat_d", Title: "D", Artist: "W"},
			}},
			wantStatus: models.StatusComplete,
			wantRounds: 2,
			wantIDs:    []string{"cat_a", "cat_c", "cat_d"},
		},
		{
			name: "caps resolved tracks at requested count",
			spec: models.PlaylistSpec{Prompt: "focus", RequestedCount: 2},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}, {Title: "C", Artist: "Z"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
				"b|y": {ID: "cat_b", Title: "B", Artist: "Y"},
				"c|z": {ID: "cat_c", Title: "C", Artist: "Z"},
			}},
			wantStatus: models.StatusComplete,
			wantRounds: 1,
			wantIDs:    []string{"cat_a", "cat_b"},
		},
		{
			name: "deduplicates by catalog id across rounds",
			spec: models.PlaylistSpec{Prompt: "focus", RequestedCount: 2},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "A (Remastered)", Artist: "X"}},
				{{Title: "B", Artist: "Y"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x":              {ID: "cat_a", Title: "A", Artist: "X"},
				"a (remastered)|x": {ID: "cat_a", Title: "A", Artist: "X"},
				"b|y":              {ID: "cat_b", Title: "B", Artist: "Y"},
			}},
			wantStatus: models.StatusComplete,
			wantRounds: 2,
			wantIDs:    []string{"cat_a", "cat_b"},
		},
		{
			name:       "exhausts round budget without matches",
			spec:       models.PlaylistSpec{Prompt: "obscure b-sides", RequestedCount: 2},
			opts:       ResolveOpts{MaxRounds: 3},
			generator:  &mockGenerator{},
			catalog:    &mockCatalog{},
			wantStatus: models.StatusPartialExhausted,
			wantRounds: 3,
			wantIDs:    []string{},
		},
		{
			name: "terminates when generator repeats itself",
			spec: models.PlaylistSpec{Prompt: "focus", RequestedCount: 2},
			opts: ResolveOpts{MaxRounds: 3},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}},
				{{Title: "B", Artist: "Y"}, {Title: "A", Artist: "X"}},
				{{Title: "B", Artist: "Y"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
			}},
			wantStatus: models.StatusPartialExhausted,
			wantRounds: 3,
			wantIDs:    []string{"cat_a"},
		},
		{
			name: "generator failure keeps earlier rounds",
			spec: models.PlaylistSpec{Prompt: "late night drive", RequestedCount: 5},
			generator: &mockGenerator{
				batches: [][]models.Suggestion{
					{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}, {Title: "C", Artist: "Z"}},
				},
				err:       fmt.Errorf("%w: quota exhausted", shared.ErrGeneration),
				errAtCall: 2,
			},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
				"b|y": {ID: "cat_b", Title: "B", Artist: "Y"},
			}},
			wantStatus:    models.StatusPartialGeneratorError,
			wantRounds:    2,
			wantIDs:       []string{"cat_a", "cat_b"},
			wantResultErr: shared.ErrGeneration,
		},
		{
			name: "lookup failure treated as miss",
			spec: models.PlaylistSpec{Prompt: "focus", RequestedCount: 2},
			opts: ResolveOpts{MaxRounds: 1},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}},
			}},
			catalog: &mockCatalog{
				tracks:     map[string]*models.Track{"a|x": {ID: "cat_a", Title: "A", Artist: "X"}},
				lookupErrs: map[string]error{"b|y": errors.New("connection reset")},
			},
			wantStatus: models.StatusPartialExhausted,
			wantRounds: 1,
			wantIDs:    []string{"cat_a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewPlaylistEngine(tt.generator, tt.catalog, nil, tt.opts)
			progressCh := make(chan ProgressUpdate, 256)

			result, err := engine.Resolve(context.Background(), tt.spec, progressCh)
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}

			if result.Status != tt.wantStatus {
				t.Errorf("Resolve() status = %v, want %v", result.Status, tt.wantStatus)
			}
			if result.RoundsUsed != tt.wantRounds {
				t.Errorf("Resolve() roundsUsed = %d, want %d", result.RoundsUsed, tt.wantRounds)
			}
			if got := trackIDs(result.Tracks); !reflect.DeepEqual(got, tt.wantIDs) {
				t.Errorf("Resolve() tracks = %v, want %v", got, tt.wantIDs)
			}
			if len(result.Tracks) > tt.spec.RequestedCount {
				t.Errorf("Resolve() resolved %d tracks, more than requested %d", len(result.Tracks), tt.spec.RequestedCount)
			}
			for i, track := range result.Tracks {
				if track.Rank != i+1 {
					t.Errorf("Resolve() track %d rank = %d, want %d", i, track.Rank, i+1)
				}
			}
			if result.Achieved() != len(result.Tracks) {
				t.Errorf("Achieved() = %d, want %d", result.Achieved(), len(result.Tracks))
			}

			if tt.wantResultErr != nil {
				if result.Err == nil || !errors.Is(result.Err, tt.wantResultErr) {
					t.Errorf("Resolve() result.Err = %v, want %v", result.Err, tt.wantResultErr)
				}
			} else if result.Err != nil {
				t.Errorf("Resolve() result.Err = %v, want nil", result.Err)
			}
		})
	}
}

func TestPlaylistEngine_Resolve_ExclusionFeedback(t *testing.T) {
	generator := &mockGenerator{batches: [][]models.Suggestion{
		{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}, {Title: "C", Artist: "Z"}},
		{{Title: "D", Artist: "W"}},
	}}
	catalog := &mockCatalog{tracks: map[string]*models.Track{
		"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
		"c|z": {ID: "cat_c", Title: "C", Artist: "Z"},
		"d|w": {ID: "cat_d", Title: "D", Artist: "W"},
	}}
	engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{})

	spec := models.PlaylistSpec{Prompt: "upbeat run", RequestedCount: 3}
	result, err := engine.Resolve(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(generator.calls) != 2 {
		t.Fatalf("Generate() called %d times, want 2", len(generator.calls))
	}

	first := generator.calls[0]
	if first.prompt != "upbeat run" {
		t.Errorf("round 1 prompt = %q, want %q", first.prompt, "upbeat run")
	}
	if first.count != 5 {
		t.Errorf("round 1 count = %d, want 5 (3 needed at 1.5x)", first.count)
	}
	if len(first.exclude) != 0 {
		t.Errorf("round 1 exclude = %v, want empty", first.exclude)
	}

	second := generator.calls[1]
	if second.count != 2 {
		t.Errorf("round 2 count = %d, want 2 (1 needed at 1.5x)", second.count)
	}
	wantExclude := []models.Suggestion{
		{Title: "A", Artist: "X"},
		{Title: "B", Artist: "Y"},
		{Title: "C", Artist: "Z"},
	}
	if !reflect.DeepEqual(second.exclude, wantExclude) {
		t.Errorf("round 2 exclude = %v, want %v", second.exclude, wantExclude)
	}

	wantSeen := append(wantExclude, models.Suggestion{Title: "D", Artist: "W"})
	if !reflect.DeepEqual(result.Seen, wantSeen) {
		t.Errorf("result.Seen = %v, want %v", result.Seen, wantSeen)
	}
}

func TestPlaylistEngine_Resolve_RepeatedPairsLookedUpOnce(t *testing.T) {
	generator := &mockGenerator{batches: [][]models.Suggestion{
		{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}},
		{{Title: "B", Artist: "Y"}, {Title: "A", Artist: "X"}},
		{{Title: "A", Artist: "X"}},
	}}
	catalog := &mockCatalog{tracks: map[string]*models.Track{
		"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
	}}
	engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{MaxRounds: 3})

	spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 2}
	result, err := engine.Resolve(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.Status != models.StatusPartialExhausted {
		t.Errorf("Resolve() status = %v, want %v", result.Status, models.StatusPartialExhausted)
	}
	if len(catalog.finds) != 2 {
		t.Errorf("catalog lookups = %d, want 2 (each pair searched once)", len(catalog.finds))
	}
	if len(result.Seen) != 2 {
		t.Errorf("result.Seen has %d pairs, want 2", len(result.Seen))
	}
}

func TestPlaylistEngine_Resolve_Cancellation(t *testing.T) {
	t.Run("cancelled before any round", func(t *testing.T) {
		flag := NewCancelFlag()
		flag.Cancel()

		generator := &mockGenerator{}
		engine := NewPlaylistEngine(generator, &mockCatalog{}, nil, ResolveOpts{Cancel: flag})

		spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 3}
		result, err := engine.Resolve(context.Background(), spec, nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if result.Status != models.StatusPartialCancelled {
			t.Errorf("Resolve() status = %v, want %v", result.Status, models.StatusPartialCancelled)
		}
		if result.RoundsUsed != 0 {
			t.Errorf("Resolve() roundsUsed = %d, want 0", result.RoundsUsed)
		}
		if len(generator.calls) != 0 {
			t.Errorf("Generate() called %d times after cancellation, want 0", len(generator.calls))
		}
	})

	t.Run("cancelled between rounds keeps completed work", func(t *testing.T) {
		flag := NewCancelFlag()
		generator := &mockGenerator{
			batches: [][]models.Suggestion{
				{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}},
			},
			cancel:   flag,
			cancelAt: 1,
		}
		catalog := &mockCatalog{tracks: map[string]*models.Track{
			"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
		}}
		engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{Cancel: flag})

		spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 3}
		result, err := engine.Resolve(context.Background(), spec, nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if result.Status != models.StatusPartialCancelled {
			t.Errorf("Resolve() status = %v, want %v", result.Status, models.StatusPartialCancelled)
		}
		if result.RoundsUsed != 1 {
			t.Errorf("Resolve() roundsUsed = %d, want 1", result.RoundsUsed)
		}
		if got := trackIDs(result.Tracks); !reflect.DeepEqual(got, []string{"cat_a"}) {
			t.Errorf("Resolve() tracks = %v, want [cat_a]", got)
		}
		if len(generator.calls) != 1 {
			t.Errorf("Generate() called %d times, want 1", len(generator.calls))
		}
	})

	t.Run("context cancellation stops the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		generator := &mockGenerator{}
		engine := NewPlaylistEngine(generator, &mockCatalog{}, nil, ResolveOpts{})

		spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 3}
		result, err := engine.Resolve(ctx, spec, nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if result.Status != models.StatusPartialCancelled {
			t.Errorf("Resolve() status = %v, want %v", result.Status, models.StatusPartialCancelled)
		}
		if len(generator.calls) != 0 {
			t.Errorf("Generate() called %d times after context cancel, want 0", len(generator.calls))
		}
	})
}

func TestPlaylistEngine_Resolve_ConcurrentLookups(t *testing.T) {
	script := func() (*mockGenerator, *mockCatalog) {
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{
				{Title: "S1", Artist: "P"},
				{Title: "S2", Artist: "P"},
				{Title: "S3", Artist: "P"},
				{Title: "S4", Artist: "P"},
				{Title: "S5", Artist: "P"},
			},
			{{Title: "S1 Again", Artist: "P"}, {Title: "S6", Artist: "P"}},
		}}
		catalog := &mockCatalog{tracks: map[string]*models.Track{
			"s1|p":       {ID: "cat_1", Title: "S1", Artist: "P"},
			"s3|p":       {ID: "cat_3", Title: "S3", Artist: "P"},
			"s5|p":       {ID: "cat_5", Title: "S5", Artist: "P"},
			"s1 again|p": {ID: "cat_1", Title: "S1", Artist: "P"},
			"s6|p":       {ID: "cat_6", Title: "S6", Artist: "P"},
		}}
		return generator, catalog
	}

	spec := models.PlaylistSpec{Prompt: "workout", RequestedCount: 4}

	seqGen, seqCatalog := script()
	sequential := NewPlaylistEngine(seqGen, seqCatalog, nil, ResolveOpts{})
	seqResult, err := sequential.Resolve(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("sequential Resolve() error = %v", err)
	}

	conGen, conCatalog := script()
	concurrent := NewPlaylistEngine(conGen, conCatalog, nil, ResolveOpts{LookupConcurrency: 4})
	conResult, err := concurrent.Resolve(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("concurrent Resolve() error = %v", err)
	}

	wantIDs := []string{"cat_1", "cat_3", "cat_5", "cat_6"}
	if got := trackIDs(seqResult.Tracks); !reflect.DeepEqual(got, wantIDs) {
		t.Errorf("sequential tracks = %v, want %v", got, wantIDs)
	}
	if !reflect.DeepEqual(conResult.Tracks, seqResult.Tracks) {
		t.Errorf("concurrent tracks = %v, want same as sequential %v", conResult.Tracks, seqResult.Tracks)
	}
	if conResult.Status != seqResult.Status {
		t.Errorf("concurrent status = %v, sequential = %v", conResult.Status, seqResult.Status)
	}
	if conResult.RoundsUsed != seqResult.RoundsUsed {
		t.Errorf("concurrent roundsUsed = %d, sequential = %d", conResult.RoundsUsed, seqResult.RoundsUsed)
	}
	if !reflect.DeepEqual(conResult.Seen, seqResult.Seen) {
		t.Errorf("concurrent seen = %v, sequential = %v", conResult.Seen, seqResult.Seen)
	}
}

func TestPlaylistEngine_Resolve_LookupTimeout(t *testing.T) {
	generator := &mockGenerator{batches: [][]models.Suggestion{
		{{Title: "A", Artist: "X"}},
	}}
	catalog := &mockCatalog{
		delay:  50 * time.Millisecond,
		tracks: map[string]*models.Track{"a|x": {ID: "cat_a", Title: "A", Artist: "X"}},
	}
	engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{
		MaxRounds:     1,
		LookupTimeout: 5 * time.Millisecond,
	})

	spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 1}
	result, err := engine.Resolve(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.Status != models.StatusPartialExhausted {
		t.Errorf("Resolve() status = %v, want %v (slow lookup treated as miss)", result.Status, models.StatusPartialExhausted)
	}
	if len(result.Tracks) != 0 {
		t.Errorf("Resolve() resolved %d tracks, want 0", len(result.Tracks))
	}
}

func TestPlaylistEngine_Resolve_TrackCache(t *testing.T) {
	t.Run("cache hit skips catalog lookup", func(t *testing.T) {
		cache := &mockCache{entries: map[string]models.Track{
			"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
		}}
		catalog := &mockCatalog{}
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{{Title: "A", Artist: "X"}},
		}}
		engine := NewPlaylistEngine(generator, catalog, cache, ResolveOpts{})

		spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 1}
		result, err := engine.Resolve(context.Background(), spec, nil)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if result.Status != models.StatusComplete {
			t.Errorf("Resolve() status = %v, want %v", result.Status, models.StatusComplete)
		}
		if len(catalog.finds) != 0 {
			t.Errorf("catalog lookups = %d, want 0 (cache should satisfy)", len(catalog.finds))
		}
	})

	t.Run("resolved tracks are stored", func(t *testing.T) {
		cache := &mockCache{}
		catalog := &mockCatalog{tracks: map[string]*models.Track{
			"a|x": {ID: "cat_a", Title: "A", Artist: "X"},
		}}
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{{Title: "A", Artist: "X"}, {Title: "B", Artist: "Y"}},
		}}
		engine := NewPlaylistEngine(generator, catalog, cache, ResolveOpts{MaxRounds: 1})

		spec := models.PlaylistSpec{Prompt: "focus", RequestedCount: 2}
		if _, err := engine.Resolve(context.Background(), spec, nil); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if cache.stores != 1 {
			t.Errorf("cache stores = %d, want 1 (hits only, misses never cached)", cache.stores)
		}
		if _, ok := cache.Lookup("A", "X"); !ok {
			t.Error("cache should contain the resolved track")
		}
	})
}

func TestPlaylistEngine_Resolve_InputValidation(t *testing.T) {
	t.Run("generator not initialized", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, &mockCatalog{}, nil, ResolveOpts{})
		_, err := engine.Resolve(context.Background(), models.PlaylistSpec{Prompt: "x", RequestedCount: 1}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("Resolve() error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("catalog not initialized", func(t *testing.T) {
		engine := NewPlaylistEngine(&mockGenerator{}, nil, nil, ResolveOpts{})
		_, err := engine.Resolve(context.Background(), models.PlaylistSpec{Prompt: "x", RequestedCount: 1}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("Resolve() error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("empty prompt", func(t *testing.T) {
		engine := NewPlaylistEngine(&mockGenerator{}, &mockCatalog{}, nil, ResolveOpts{})
		_, err := engine.Resolve(context.Background(), models.PlaylistSpec{RequestedCount: 5}, nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("Resolve() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("zero requested count", func(t *testing.T) {
		engine := NewPlaylistEngine(&mockGenerator{}, &mockCatalog{}, nil, ResolveOpts{})
		_, err := engine.Resolve(context.Background(), models.PlaylistSpec{Prompt: "x"}, nil)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("Resolve() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestPlaylistEngine_Assemble(t *testing.T) {
	resolvedN := func(n int) []models.ResolvedTrack {
		tracks := make([]models.ResolvedTrack, n)
		for i := range tracks {
			tracks[i] = models.ResolvedTrack{
				CatalogID: fmt.Sprintf("cat_%d", i+1),
				Title:     fmt.Sprintf("Song %d", i+1),
				Artist:    "Artist",
				Rank:      i + 1,
			}
		}
		return tracks
	}

	t.Run("full resolution", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{})
		spec := models.PlaylistSpec{Title: "Morning Mix", Prompt: "upbeat morning run", RequestedCount: 3}
		resolution := &ResolutionResult{Tracks: resolvedN(3), Status: models.StatusComplete, Requested: 3}

		payload := engine.Assemble(spec, resolution)

		if payload.Title != "Morning Mix" {
			t.Errorf("Assemble() title = %q, want %q", payload.Title, "Morning Mix")
		}
		if payload.Description != "upbeat morning run (generated by moodlist)" {
			t.Errorf("Assemble() description = %q", payload.Description)
		}
		if !reflect.DeepEqual(payload.TrackIDs, []string{"cat_1", "cat_2", "cat_3"}) {
			t.Errorf("Assemble() trackIDs = %v", payload.TrackIDs)
		}
		if payload.AchievedCount != 3 || payload.RequestedCount != 3 {
			t.Errorf("Assemble() achieved/requested = %d/%d, want 3/3", payload.AchievedCount, payload.RequestedCount)
		}
		if payload.Partial {
			t.Error("Assemble() partial = true, want false")
		}
		if payload.Status != models.StatusComplete {
			t.Errorf("Assemble() status = %v, want %v", payload.Status, models.StatusComplete)
		}
	})

	t.Run("truncates overshoot", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{})
		spec := models.PlaylistSpec{Title: "Mix", Prompt: "p", RequestedCount: 3}
		resolution := &ResolutionResult{Tracks: resolvedN(5), Status: models.StatusComplete, Requested: 3}

		payload := engine.Assemble(spec, resolution)

		if len(payload.TrackIDs) != 3 {
			t.Errorf("Assemble() kept %d tracks, want 3", len(payload.TrackIDs))
		}
		if len(payload.Tracks) != 3 {
			t.Errorf("Assemble() kept %d track records, want 3", len(payload.Tracks))
		}
		if payload.AchievedCount != 3 {
			t.Errorf("Assemble() achieved = %d, want 3", payload.AchievedCount)
		}
	})

	t.Run("never pads a shortfall", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{})
		spec := models.PlaylistSpec{Title: "Mix", Prompt: "p", RequestedCount: 10}
		resolution := &ResolutionResult{Tracks: resolvedN(4), Status: models.StatusPartialExhausted, Requested: 10}

		payload := engine.Assemble(spec, resolution)

		if len(payload.TrackIDs) != 4 {
			t.Errorf("Assemble() trackIDs length = %d, want 4", len(payload.TrackIDs))
		}
		if !payload.Partial {
			t.Error("Assemble() partial = false, want true")
		}
		if payload.Status != models.StatusPartialExhausted {
			t.Errorf("Assemble() status = %v, want %v", payload.Status, models.StatusPartialExhausted)
		}
	})

	t.Run("title falls back to prompt", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{})
		spec := models.PlaylistSpec{Prompt: "lofi beats to study to", RequestedCount: 1}
		resolution := &ResolutionResult{Tracks: resolvedN(1), Status: models.StatusComplete, Requested: 1}

		payload := engine.Assemble(spec, resolution)

		if payload.Title != "lofi beats to study to" {
			t.Errorf("Assemble() title = %q, want the prompt", payload.Title)
		}
	})

	t.Run("long prompt titles are truncated", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{})
		prompt := strings.Repeat("p", 150)
		spec := models.PlaylistSpec{Prompt: prompt, RequestedCount: 1}
		resolution := &ResolutionResult{Tracks: resolvedN(1), Status: models.StatusComplete, Requested: 1}

		payload := engine.Assemble(spec, resolution)

		if len(payload.Title) != 100 {
			t.Errorf("Assemble() title length = %d, want 100", len(payload.Title))
		}
		if !strings.HasSuffix(payload.Title, "...") {
			t.Errorf("Assemble() title %q should end with ellipsis", payload.Title)
		}
	})

	t.Run("public flag from options", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, nil, nil, ResolveOpts{Public: true})
		spec := models.PlaylistSpec{Title: "Mix", Prompt: "p", RequestedCount: 1}
		resolution := &ResolutionResult{Tracks: resolvedN(1), Status: models.StatusComplete, Requested: 1}

		if payload := engine.Assemble(spec, resolution); !payload.Public {
			t.Error("Assemble() public = false, want true")
		}
	})
}

func TestPlaylistEngine_Run(t *testing.T) {
	tests := []struct {
		name        string
		spec        models.PlaylistSpec
		opts        ResolveOpts
		generator   *mockGenerator
		catalog     *mockCatalog
		wantErr     bool
		wantTarget  error
		wantStatus  models.ResolutionStatus
		wantCreated int
	}{
		{
			name: "creates playlist from resolved tracks",
			spec: models.PlaylistSpec{Title: "Test Playlist", Prompt: "focus", RequestedCount: 2},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "Song 1", Artist: "Artist 1"}, {Title: "Song 2", Artist: "Artist 2"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
				"song 2|artist 2": {ID: "cat_2", Title: "Song 2", Artist: "Artist 2"},
			}},
			wantStatus:  models.StatusComplete,
			wantCreated: 1,
		},
		{
			name: "partial resolution still creates a playlist",
			spec: models.PlaylistSpec{Title: "Test Playlist", Prompt: "focus", RequestedCount: 2},
			opts: ResolveOpts{MaxRounds: 1},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "Song 1", Artist: "Artist 1"}, {Title: "Song 2", Artist: "Artist 2"}},
			}},
			catalog: &mockCatalog{tracks: map[string]*models.Track{
				"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
			}},
			wantStatus:  models.StatusPartialExhausted,
			wantCreated: 1,
		},
		{
			name:        "no tracks resolved - should error",
			spec:        models.PlaylistSpec{Title: "Test Playlist", Prompt: "focus", RequestedCount: 2},
			opts:        ResolveOpts{MaxRounds: 1},
			generator:   &mockGenerator{},
			catalog:     &mockCatalog{},
			wantErr:     true,
			wantCreated: 0,
		},
		{
			name: "playlist creation failure",
			spec: models.PlaylistSpec{Title: "Test Playlist", Prompt: "focus", RequestedCount: 1},
			generator: &mockGenerator{batches: [][]models.Suggestion{
				{{Title: "Song 1", Artist: "Artist 1"}},
			}},
			catalog: &mockCatalog{
				tracks: map[string]*models.Track{
					"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
				},
				createErr: errors.New("insufficient scope"),
			},
			wantErr:    true,
			wantTarget: shared.ErrAPIRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewPlaylistEngine(tt.generator, tt.catalog, nil, tt.opts)
			progressCh := make(chan ProgressUpdate, 256)

			result, err := engine.Run(context.Background(), tt.spec, progressCh)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantTarget != nil && !errors.Is(err, tt.wantTarget) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantTarget)
			}
			if result == nil {
				t.Fatal("Run() result is nil; partial results should always be returned")
			}
			if result.Resolution == nil || result.Payload == nil {
				t.Fatal("Run() result missing resolution or payload")
			}
			if len(tt.catalog.created) != tt.wantCreated {
				t.Errorf("CreatePlaylist() called %d times, want %d", len(tt.catalog.created), tt.wantCreated)
			}

			if !tt.wantErr {
				if result.Resolution.Status != tt.wantStatus {
					t.Errorf("Run() status = %v, want %v", result.Resolution.Status, tt.wantStatus)
				}
				if result.Playlist == nil {
					t.Fatal("Run() playlist is nil")
				}
				if result.Playlist.Name != tt.spec.Title {
					t.Errorf("Run() playlist name = %q, want %q", result.Playlist.Name, tt.spec.Title)
				}
			} else if result.Playlist != nil {
				t.Error("Run() playlist should be nil on failure")
			}
		})
	}
}

func TestPlaylistEngine_Run_EmptyResolutionMessage(t *testing.T) {
	engine := NewPlaylistEngine(&mockGenerator{}, &mockCatalog{}, nil, ResolveOpts{MaxRounds: 1})

	spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 1}
	_, err := engine.Run(context.Background(), spec, nil)
	if err == nil {
		t.Fatal("Run() expected error for empty resolution")
	}
	if !strings.Contains(err.Error(), "cannot create empty playlist") {
		t.Errorf("Run() error = %v, want empty playlist message", err)
	}
}

func TestPlaylistEngine_Run_Seeding(t *testing.T) {
	top := []models.Track{
		{ID: "top_1", Title: "Favorite 1", Artist: "Artist"},
		{ID: "top_2", Title: "Favorite 2", Artist: "Artist"},
	}

	t.Run("fetches top tracks for the generator", func(t *testing.T) {
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{{Title: "Song 1", Artist: "Artist 1"}},
		}}
		catalog := &mockCatalog{
			top: top,
			tracks: map[string]*models.Track{
				"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
			},
		}
		engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{SeedLimit: 2})

		spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 1}
		if _, err := engine.Run(context.Background(), spec, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if catalog.topCalls != 1 {
			t.Errorf("TopTracks() called %d times, want 1", catalog.topCalls)
		}
		if len(generator.calls) == 0 || !reflect.DeepEqual(generator.calls[0].seed, top) {
			t.Errorf("Generate() seed = %v, want top tracks", generator.calls[0].seed)
		}
	})

	t.Run("explicit seed skips the fetch", func(t *testing.T) {
		preset := []models.Track{{ID: "pre_1", Title: "Preset", Artist: "Artist"}}
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{{Title: "Song 1", Artist: "Artist 1"}},
		}}
		catalog := &mockCatalog{
			top: top,
			tracks: map[string]*models.Track{
				"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
			},
		}
		engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{SeedLimit: 2})

		spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 1, Seed: preset}
		if _, err := engine.Run(context.Background(), spec, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if catalog.topCalls != 0 {
			t.Errorf("TopTracks() called %d times, want 0", catalog.topCalls)
		}
		if !reflect.DeepEqual(generator.calls[0].seed, preset) {
			t.Errorf("Generate() seed = %v, want preset seed", generator.calls[0].seed)
		}
	})

	t.Run("seed failure is not fatal", func(t *testing.T) {
		generator := &mockGenerator{batches: [][]models.Suggestion{
			{{Title: "Song 1", Artist: "Artist 1"}},
		}}
		catalog := &mockCatalog{
			topErr: errors.New("top tracks unavailable"),
			tracks: map[string]*models.Track{
				"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
			},
		}
		engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{SeedLimit: 2})

		spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 1}
		result, err := engine.Run(context.Background(), spec, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Playlist == nil {
			t.Fatal("Run() playlist is nil")
		}
		if len(generator.calls[0].seed) != 0 {
			t.Errorf("Generate() seed = %v, want empty after seed failure", generator.calls[0].seed)
		}
	})
}

func TestPlaylistEngine_Run_ServiceErrors(t *testing.T) {
	t.Run("catalog not initialized", func(t *testing.T) {
		engine := NewPlaylistEngine(&mockGenerator{}, nil, nil, ResolveOpts{})
		_, err := engine.Run(context.Background(), models.PlaylistSpec{Prompt: "x", RequestedCount: 1}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("Run() error = %v, want ErrServiceUnavailable", err)
		}
	})

	t.Run("generator not initialized", func(t *testing.T) {
		engine := NewPlaylistEngine(nil, &mockCatalog{}, nil, ResolveOpts{})
		_, err := engine.Run(context.Background(), models.PlaylistSpec{Prompt: "x", RequestedCount: 1}, nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("Run() error = %v, want ErrServiceUnavailable", err)
		}
	})
}

func TestPlaylistEngine_Run_ProgressPhases(t *testing.T) {
	generator := &mockGenerator{batches: [][]models.Suggestion{
		{{Title: "Song 1", Artist: "Artist 1"}, {Title: "Song 2", Artist: "Artist 2"}},
	}}
	catalog := &mockCatalog{
		top: []models.Track{{ID: "top_1", Title: "Favorite", Artist: "Artist"}},
		tracks: map[string]*models.Track{
			"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
			"song 2|artist 2": {ID: "cat_2", Title: "Song 2", Artist: "Artist 2"},
		},
	}
	engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{SeedLimit: 1})

	progressCh := make(chan ProgressUpdate, 100)
	var updates []ProgressUpdate
	done := make(chan struct{})
	go func() {
		for update := range progressCh {
			updates = append(updates, update)
		}
		close(done)
	}()

	spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 2}
	_, err := engine.Run(context.Background(), spec, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(updates) == 0 {
		t.Fatal("Run() sent no progress updates")
	}

	seen := map[Phase]bool{}
	for _, update := range updates {
		seen[update.Phase] = true
	}
	for _, phase := range []Phase{Seeding, Generating, Resolving, RoundComplete, Assembling, CreatingPlaylist, Done} {
		if !seen[phase] {
			t.Errorf("Run() never reported phase %v", phase)
		}
	}

	if updates[0].Phase != Seeding {
		t.Errorf("first update phase = %v, want %v", updates[0].Phase, Seeding)
	}
	if last := updates[len(updates)-1]; last.Phase != Done {
		t.Errorf("last update phase = %v, want %v", last.Phase, Done)
	}
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	generator := &mockGenerator{batches: [][]models.Suggestion{
		{{Title: "Song 1", Artist: "Artist 1"}},
	}}
	catalog := &mockCatalog{tracks: map[string]*models.Track{
		"song 1|artist 1": {ID: "cat_1", Title: "Song 1", Artist: "Artist 1"},
	}}
	engine := NewPlaylistEngine(generator, catalog, nil, ResolveOpts{})

	// Unbuffered channel with no reader simulates a stalled consumer
	progressCh := make(chan ProgressUpdate)

	done := make(chan bool)
	go func() {
		spec := models.PlaylistSpec{Title: "Mix", Prompt: "focus", RequestedCount: 1}
		if _, err := engine.Run(context.Background(), spec, progressCh); err != nil {
			t.Errorf("Run() error = %v", err)
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("Run() should not block on progress sends")
	}
}

func TestOptsFromConfig(t *testing.T) {
	cfg := shared.GenerationConfig{
		MaxRounds:            4,
		OverfetchFactor:      2.0,
		LookupTimeoutSeconds: 15,
		LookupConcurrency:    3,
		SeedLimit:            7,
		PublicPlaylists:      true,
	}

	opts := OptsFromConfig(cfg)

	if opts.MaxRounds != 4 {
		t.Errorf("MaxRounds = %d, want 4", opts.MaxRounds)
	}
	if opts.OverfetchFactor != 2.0 {
		t.Errorf("OverfetchFactor = %v, want 2.0", opts.OverfetchFactor)
	}
	if opts.LookupTimeout != 15*time.Second {
		t.Errorf("LookupTimeout = %v, want 15s", opts.LookupTimeout)
	}
	if opts.LookupConcurrency != 3 {
		t.Errorf("LookupConcurrency = %d, want 3", opts.LookupConcurrency)
	}
	if opts.SeedLimit != 7 {
		t.Errorf("SeedLimit = %d, want 7", opts.SeedLimit)
	}
	if !opts.Public {
		t.Error("Public = false, want true")
	}
}

func TestResolveOpts_Defaults(t *testing.T) {
	engine := NewPlaylistEngine(&mockGenerator{}, &mockCatalog{}, nil, ResolveOpts{})

	if engine.opts.MaxRounds != 5 {
		t.Errorf("default MaxRounds = %d, want 5", engine.opts.MaxRounds)
	}
	if engine.opts.OverfetchFactor != 1.5 {
		t.Errorf("default OverfetchFactor = %v, want 1.5", engine.opts.OverfetchFactor)
	}
	if engine.opts.LookupTimeout != 10*time.Second {
		t.Errorf("default LookupTimeout = %v, want 10s", engine.opts.LookupTimeout)
	}
	if engine.opts.LookupConcurrency != 1 {
		t.Errorf("default LookupConcurrency = %d, want 1", engine.opts.LookupConcurrency)
	}
}

func TestCancelFlag(t *testing.T) {
	flag := NewCancelFlag()

	if flag.Cancelled() {
		t.Error("new flag should not be cancelled")
	}

	flag.Cancel()
	if !flag.Cancelled() {
		t.Error("flag should be cancelled after Cancel()")
	}

	flag.Cancel()
	if !flag.Cancelled() {
		t.Error("Cancel() should be idempotent")
	}

	flag.Reset()
	if flag.Cancelled() {
		t.Error("flag should not be cancelled after Reset()")
	}
}

func TestOverfetch(t *testing.T) {
	tests := []struct {
		needed int
		factor float64
		want   int
	}{
		{needed: 1, factor: 1.5, want: 2},
		{needed: 3, factor: 1.5, want: 5},
		{needed: 7, factor: 1.5, want: 11},
		{needed: 10, factor: 1.5, want: 15},
		{needed: 5, factor: 2.0, want: 10},
		{needed: 3, factor: 1.0, want: 3},
		{needed: 4, factor: 0, want: 4},
	}

	for _, tt := range tests {
		if got := overfetch(tt.needed, tt.factor); got != tt.want {
			t.Errorf("overfetch(%d, %v) = %d, want %d", tt.needed, tt.factor, got, tt.want)
		}
	}
}

func TestTitleFromPrompt(t *testing.T) {
	t.Run("short prompts pass through", func(t *testing.T) {
		if got := titleFromPrompt("chill evening"); got != "chill evening" {
			t.Errorf("titleFromPrompt() = %q, want %q", got, "chill evening")
		}
	})

	t.Run("boundary length passes through", func(t *testing.T) {
		prompt := strings.Repeat("a", 100)
		if got := titleFromPrompt(prompt); got != prompt {
			t.Errorf("titleFromPrompt() modified a 100-char prompt")
		}
	})

	t.Run("long prompts truncate with ellipsis", func(t *testing.T) {
		got := titleFromPrompt(strings.Repeat("a", 101))
		if len(got) != 100 {
			t.Errorf("titleFromPrompt() length = %d, want 100", len(got))
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("titleFromPrompt() = %q, want ellipsis suffix", got)
		}
	})
}
