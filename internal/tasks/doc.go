// Package tasks orchestrates prompt-to-playlist resolution with real-time progress reporting.
//
// # Core Operations
//
// The [GenerationEngine] interface defines three operations:
//
//  1. [GenerationEngine.Resolve] : Iterative suggestion/lookup loop
//     - Asks the suggestion generator for candidate (title, artist) pairs
//     - Resolves each fresh pair against the catalog, deduplicating by catalog ID
//     - Retries with exclusion feedback until the count is met or rounds run out
//     - Returns everything resolved plus how the loop ended
//
//  2. [GenerationEngine.Assemble] : Payload construction
//     - Truncates the resolved list to the requested count, never pads
//     - Carries prompt, status, and achieved/requested counts for the caller
//
//  3. [GenerationEngine.Run] : Full pipeline
//     - Seeds generation with the listener's top tracks
//     - Resolves, assembles, and creates the playlist on the catalog
//     - A partial resolution still creates a playlist; an empty one stops
//
// # Round Accounting
//
// Each round requests more suggestions than tracks are still needed
// (overfetch) so misses and duplicates don't force extra rounds. Every pair
// that reaches lookup is recorded and excluded from later rounds, hit or
// miss. A generator failure ends the run immediately with whatever resolved
// so far; a single failed lookup only costs that pair.
//
// # Cancellation
//
// [CancelFlag] provides cooperative cancellation polled at round boundaries:
// a cancelled run keeps every fully completed round and reports
// partial-cancelled. Context cancellation is honored at the same points and
// inside lookups via per-lookup timeouts.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Track Caching
//
// The optional [TrackCacher] interface short-circuits repeat catalog lookups.
//
// Hits are cached silently (errors ignored) so caching never disrupts a run.
//
// # Implementation
//
// [PlaylistEngine] implements [GenerationEngine] with dependencies on:
//   - [services.SuggestionGenerator] : Gemini API client
//   - [services.CatalogService] : Spotify API client
//   - [TrackCacher] : Optional persistence layer (repositories.TrackCacheAdapter)
package tasks
