// Gemini API implementation of [SuggestionGenerator]
//
// Calls the generateContent REST endpoint directly; no SDK required.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"

	// The model sees at most this many exclusions; past that the prompt
	// gets too long to help.
	maxPromptExclusions = 99
)

// GeminiService implements [SuggestionGenerator] using Google's Gemini API.
type GeminiService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiService creates a new Gemini suggestion generator.
func NewGeminiService(apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api_key is required", shared.ErrMissingCredentials)
	}

	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    geminiBaseURL,
		httpClient: http.DefaultClient,
	}, nil
}

// Name returns the provider name.
func (g *GeminiService) Name() string {
	return "Gemini"
}

// Generate requests count song suggestions for the prompt.
//
// Previously suggested pairs are spelled out in the prompt so the model
// proposes fresh candidates; seed tracks are offered as inspiration. Any
// failure here wraps [shared.ErrGeneration].
func (g *GeminiService) Generate(ctx context.Context, prompt string, count int, exclude []models.Suggestion, seed []models.Track) ([]models.Suggestion, error) {
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", shared.ErrGeneration)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", shared.ErrGeneration, count)
	}

	text, err := g.generateContent(ctx, g.buildPrompt(prompt, count, exclude, seed))
	if err != nil {
		return nil, err
	}

	suggestions, err := parseSuggestions(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrGeneration, err)
	}

	for i := range suggestions {
		suggestions[i].Rank = i + 1
	}

	return suggestions, nil
}

// Ping verifies the API key and model are usable.
func (g *GeminiService) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/%s?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gemini API returned status %d for model %s", shared.ErrServiceUnavailable, resp.StatusCode, g.model)
	}

	return nil
}

// buildPrompt assembles the generation prompt with seed and exclusion blocks.
func (g *GeminiService) buildPrompt(prompt string, count int, exclude []models.Suggestion, seed []models.Track) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a music expert. Suggest exactly %d songs for: %q

Return ONLY a JSON array of songs, no other text. Each song must have "title" and "artist" fields.
Example: [{"title": "Blue in Green", "artist": "Miles Davis"}, {"title": "Take Five", "artist": "Dave Brubeck"}]

Only suggest real, released songs. Titles and artists must be spelled exactly as a music catalog lists them, since they are used verbatim for catalog searches.`, count, prompt)

	if len(seed) > 0 {
		b.WriteString("\n\nThe listener's recent favorites, for inspiration (match the requested mood first, lean on these only where they fit):\n")
		for _, track := range seed {
			fmt.Fprintf(&b, "- %q by %s\n", track.Title, track.Artist)
		}
	}

	if len(exclude) > 0 {
		capped := exclude
		if len(capped) > maxPromptExclusions {
			capped = capped[:maxPromptExclusions]
		}

		b.WriteString("\n\nIMPORTANT: Do NOT include any of these songs that were already suggested:\n")
		for _, pair := range capped {
			fmt.Fprintf(&b, "- %q by %s\n", pair.Title, pair.Artist)
		}
		b.WriteString("Suggest completely different songs.")
	}

	return b.String()
}

// generateContent sends the prompt to the generateContent endpoint and
// returns the model's text response.
func (g *GeminiService) generateContent(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]int{"maxOutputTokens": 4096},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %v", shared.ErrGeneration, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", shared.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrGeneration, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", shared.ErrGeneration, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: gemini API error (status %d): %s", shared.ErrGeneration, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", shared.ErrGeneration, err)
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: response contained no candidates", shared.ErrGeneration)
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}

// parseSuggestions extracts a suggestion list from the model's response text.
//
// Tries the whole text as a JSON array first, then falls back to the
// outermost bracketed slice for responses wrapped in markdown or prose.
func parseSuggestions(text string) ([]models.Suggestion, error) {
	if suggestions, ok := decodeSuggestionArray(text); ok {
		return suggestions, nil
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if suggestions, ok := decodeSuggestionArray(text[start : end+1]); ok {
			return suggestions, nil
		}
	}

	return nil, fmt.Errorf("failed to parse suggestions from model response")
}

func decodeSuggestionArray(raw string) ([]models.Suggestion, bool) {
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false
	}

	out := make([]models.Suggestion, 0, len(entries))
	for _, entry := range entries {
		title, _ := entry["title"].(string)
		artist, _ := entry["artist"].(string)
		if title == "" || artist == "" {
			continue
		}
		out = append(out, models.Suggestion{Title: title, Artist: artist})
	}

	return out, true
}
