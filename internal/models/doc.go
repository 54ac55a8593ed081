// Package models defines domain entities and persistence interfaces for the moodlist playlist generator.
//
// The package contains three categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing external service data
//   - [Track] : Catalog track metadata keyed by catalog ID
//   - [Playlist] : Playlist metadata returned after materialization
//   - [PlaylistExport] : Playlist with complete track listing for file exports
//
// 2. Resolution types: The data model of the suggestion-to-catalog pipeline
//   - [Suggestion] : One AI-proposed (title, artist) pair with its source rank
//   - [ResolvedTrack] : A suggestion matched to a concrete catalog entry
//   - [PlaylistSpec] : Caller input describing the playlist to build
//   - [ResolutionStatus] : Outcome classification (complete or partial variants)
//   - [PlaylistPayload] : Assembler output handed to the playlist-creation service
//
// 3. Persistent Entities: Database-backed models with full lifecycle management
//   - [GenerationRun] : One playlist-generation request with status, counts, and timings
//   - [PersistedTrack] : Cached resolved tracks keyed by catalog ID
//
// Persistent entities implement the Model interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
