package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/moodlist/internal/models"
	"github.com/desertthunder/moodlist/internal/shared"
)

// RunRepository implements models.Repository[*models.GenerationRun] for run history.
//
// Handles generation run CRUD operations with soft delete support and status-based queries.
// Resolved tracks are attached to runs through the run_tracks junction table in playlist order.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new generation run into the database with generated ID and sequence
func (r *RunRepository) Create(run *models.GenerationRun) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, sequence, prompt, title, status, requested_count,
			achieved_count, rounds_used, playlist_id, playlist_url,
			error_message, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var playlistID any = run.PlaylistID()
	if playlistID == "" {
		playlistID = nil
	}

	var playlistURL any = run.PlaylistURL()
	if playlistURL == "" {
		playlistURL = nil
	}

	var errorMessage any = run.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	_, err = r.db.Exec(query,
		id,
		sequence,
		run.Prompt(),
		run.Title(),
		run.Status(),
		run.RequestedCount(),
		run.AchievedCount(),
		run.RoundsUsed(),
		playlistID,
		playlistURL,
		errorMessage,
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a generation run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.GenerationRun, error) {
	query := `
		SELECT
			id, sequence, prompt, title, status, requested_count,
			achieved_count, rounds_used, playlist_id, playlist_url,
			error_message, started_at, completed_at, created_at, updated_at, deleted_at
		FROM runs
		WHERE id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, id))
}

// Update modifies an existing generation run in the database
func (r *RunRepository) Update(run *models.GenerationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE runs
		SET title = ?, status = ?, achieved_count = ?, rounds_used = ?,
			playlist_id = ?, playlist_url = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	var playlistID any = run.PlaylistID()
	if playlistID == "" {
		playlistID = nil
	}

	var playlistURL any = run.PlaylistURL()
	if playlistURL == "" {
		playlistURL = nil
	}

	var errorMessage any = run.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	result, err := r.db.Exec(query,
		run.Title(),
		run.Status(),
		run.AchievedCount(),
		run.RoundsUsed(),
		playlistID,
		playlistURL,
		errorMessage,
		run.StartedAt(),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found or already deleted: %s", run.ID())
	}

	return nil
}

// Delete soft-deletes a generation run by ID
func (r *RunRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all generation runs matching the given criteria, excluding soft-deleted runs.
// Runs are returned newest first.
func (r *RunRepository) List(criteria map[string]any) ([]*models.GenerationRun, error) {
	query := `
		SELECT
			id, sequence, prompt, title, status, requested_count,
			achieved_count, rounds_used, playlist_id, playlist_url,
			error_message, started_at, completed_at, created_at, updated_at, deleted_at
		FROM runs
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.GenerationRun
	for rows.Next() {
		run, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// AttachTracks records the resolved tracks for a run in playlist order.
// Positions are 1-based and assigned from the slice order.
func (r *RunRepository) AttachTracks(runID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO run_tracks (run_id, track_id, position)
		VALUES (?, ?, ?)
	`

	for i, trackID := range trackIDs {
		if _, err := tx.Exec(query, runID, trackID, i+1); err != nil {
			return fmt.Errorf("failed to attach track %s to run %s: %w", trackID, runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track attachments: %w", err)
	}

	return nil
}

// TracksFor retrieves the tracks attached to a run, ordered by playlist position
func (r *RunRepository) TracksFor(runID string) ([]*models.PersistedTrack, error) {
	query := `
		SELECT t.id, t.sequence, t.catalog_id, t.title, t.artist, t.album, t.duration, t.uri, t.created_at, t.updated_at, t.deleted_at
		FROM run_tracks rt
		JOIN tracks t ON t.id = rt.track_id
		WHERE rt.run_id = ?
		ORDER BY rt.position ASC
	`

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.PersistedTrack
	for rows.Next() {
		track, err := scanTrackRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// scanOne scans a single [sql.Row] into a [models.GenerationRun]
func (r *RunRepository) scanOne(row *sql.Row) (*models.GenerationRun, error) {
	var (
		id             string
		sequence       int
		prompt         string
		title          string
		status         string
		requestedCount int
		achievedCount  int
		roundsUsed     int
		playlistID     sql.NullString
		playlistURL    sql.NullString
		errorMessage   sql.NullString
		startedAt      sql.NullTime
		completedAt    sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &prompt, &title, &status, &requestedCount,
		&achievedCount, &roundsUsed, &playlistID, &playlistURL,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewGenerationRun(sequence, prompt, title, requestedCount)
	run.SetID(id)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)

	run.SetStatus(models.ResolutionStatus(status))
	run.SetAchievedCount(achievedCount)
	run.SetRoundsUsed(roundsUsed)
	if playlistID.Valid {
		run.SetPlaylistID(playlistID.String)
	}
	if playlistURL.Valid {
		run.SetPlaylistURL(playlistURL.String)
	}
	if errorMessage.Valid {
		run.SetErrorMessage(errorMessage.String)
	}
	if startedAt.Valid {
		run.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}

// scanRow scans a row from [sql.Rows] into a [models.GenerationRun]
func (r *RunRepository) scanRow(rows *sql.Rows) (*models.GenerationRun, error) {
	var (
		id             string
		sequence       int
		prompt         string
		title          string
		status         string
		requestedCount int
		achievedCount  int
		roundsUsed     int
		playlistID     sql.NullString
		playlistURL    sql.NullString
		errorMessage   sql.NullString
		startedAt      sql.NullTime
		completedAt    sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := rows.Scan(
		&id, &sequence, &prompt, &title, &status, &requestedCount,
		&achievedCount, &roundsUsed, &playlistID, &playlistURL,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewGenerationRun(sequence, prompt, title, requestedCount)
	run.SetID(id)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)

	run.SetStatus(models.ResolutionStatus(status))
	run.SetAchievedCount(achievedCount)
	run.SetRoundsUsed(roundsUsed)
	if playlistID.Valid {
		run.SetPlaylistID(playlistID.String)
	}
	if playlistURL.Valid {
		run.SetPlaylistURL(playlistURL.String)
	}
	if errorMessage.Valid {
		run.SetErrorMessage(errorMessage.String)
	}
	if startedAt.Valid {
		run.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		run.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}
