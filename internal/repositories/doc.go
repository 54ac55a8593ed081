// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [RunRepository] : Generation run history with status tracking and ordered track attachments
//   - [TrackRepository] : Track caching with catalog-id based deduplication
//   - [TrackCacheAdapter] : tasks.TrackCacher backed by TrackRepository with an in-memory key index
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42, track #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
