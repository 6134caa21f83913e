package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

// workColumns is the ordered list of columns selected in work queries.
// Must match the scan order in scanWork.
const workColumns = `id, created_at, updated_at, presentation_edition_id, title, author,
	language, medium, fiction, audience, target_age_min, target_age_max, quality,
	summary_resource_id, summary_text, cover_resource_id, cover_blur_hash, presentation_ready`

// scanWork scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.Work.
func scanWork(scanner interface{ Scan(dest ...any) error }) (*domain.Work, error) {
	var w domain.Work

	var (
		createdAt         string
		updatedAt         string
		editionID         sql.NullString
		title             sql.NullString
		author            sql.NullString
		language          sql.NullString
		medium            sql.NullString
		fiction           sql.NullInt64
		audience          sql.NullString
		summaryResourceID sql.NullString
		summaryText       sql.NullString
		coverResourceID   sql.NullString
		coverBlurHash     sql.NullString
		presentationReady int
	)

	err := scanner.Scan(
		&w.ID,
		&createdAt,
		&updatedAt,
		&editionID,
		&title,
		&author,
		&language,
		&medium,
		&fiction,
		&audience,
		&w.TargetAgeMin,
		&w.TargetAgeMax,
		&w.Quality,
		&summaryResourceID,
		&summaryText,
		&coverResourceID,
		&coverBlurHash,
		&presentationReady,
	)
	if err != nil {
		return nil, err
	}

	w.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	w.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	w.PresentationEditionID = editionID.String
	w.Title = title.String
	w.Author = author.String
	w.Language = language.String
	w.Medium = domain.Medium(medium.String)
	if fiction.Valid {
		f := fiction.Int64 != 0
		w.Fiction = &f
	}
	w.Audience = domain.Audience(audience.String)
	w.SummaryResourceID = summaryResourceID.String
	w.SummaryText = summaryText.String
	w.CoverResourceID = coverResourceID.String
	w.CoverBlurHash = coverBlurHash.String
	w.PresentationReady = presentationReady != 0

	return &w, nil
}

// CreateWork inserts a new work.
func (s *Store) CreateWork(ctx context.Context, w *domain.Work) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO works (
			id, created_at, updated_at, presentation_edition_id, title, author,
			language, medium, fiction, audience, target_age_min, target_age_max, quality,
			summary_resource_id, summary_text, cover_resource_id, cover_blur_hash, presentation_ready
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID,
		formatTime(w.CreatedAt),
		formatTime(w.UpdatedAt),
		nullString(w.PresentationEditionID),
		nullString(w.Title),
		nullString(w.Author),
		nullString(w.Language),
		nullString(string(w.Medium)),
		nullBoolInt(w.Fiction),
		nullString(string(w.Audience)),
		w.TargetAgeMin,
		w.TargetAgeMax,
		w.Quality,
		nullString(w.SummaryResourceID),
		nullString(w.SummaryText),
		nullString(w.CoverResourceID),
		nullString(w.CoverBlurHash),
		boolToInt(w.PresentationReady),
	)
	if err != nil {
		return fmt.Errorf("insert work: %w", err)
	}
	return nil
}

// GetWork retrieves a work by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetWork(ctx context.Context, workID string) (*domain.Work, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workColumns+` FROM works WHERE id = ?`, workID)

	w, err := scanWork(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateWork performs a full row update and refreshes the search index.
// Returns store.ErrNotFound if the work does not exist.
func (s *Store) UpdateWork(ctx context.Context, w *domain.Work) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE works SET
			updated_at = ?,
			presentation_edition_id = ?,
			title = ?,
			author = ?,
			language = ?,
			medium = ?,
			fiction = ?,
			audience = ?,
			target_age_min = ?,
			target_age_max = ?,
			quality = ?,
			summary_resource_id = ?,
			summary_text = ?,
			cover_resource_id = ?,
			cover_blur_hash = ?,
			presentation_ready = ?
		WHERE id = ?`,
		formatTime(w.UpdatedAt),
		nullString(w.PresentationEditionID),
		nullString(w.Title),
		nullString(w.Author),
		nullString(w.Language),
		nullString(string(w.Medium)),
		nullBoolInt(w.Fiction),
		nullString(string(w.Audience)),
		w.TargetAgeMin,
		w.TargetAgeMax,
		w.Quality,
		nullString(w.SummaryResourceID),
		nullString(w.SummaryText),
		nullString(w.CoverResourceID),
		nullString(w.CoverBlurHash),
		boolToInt(w.PresentationReady),
		w.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	genres, err := s.GetWorkGenres(ctx, w.ID)
	if err != nil {
		return err
	}
	if err := s.indexer.IndexWork(ctx, w, genres); err != nil {
		s.logger.Warn("failed to index work", "work_id", w.ID, "error", err)
	}
	return nil
}

// DeleteWork removes a work and its dependent rows. Pools still pointing at
// the work are left alone; callers are expected to move them first.
func (s *Store) DeleteWork(ctx context.Context, workID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, workID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	if err := s.indexer.DeleteWork(ctx, workID); err != nil {
		s.logger.Warn("failed to remove work from index", "work_id", workID, "error", err)
	}
	return nil
}

// SetWorkGenres replaces a work's genre distribution.
func (s *Store) SetWorkGenres(ctx context.Context, workID string, genres []domain.WorkGenre) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM work_genres WHERE work_id = ?`, workID); err != nil {
		return fmt.Errorf("delete work genres: %w", err)
	}
	for _, g := range genres {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO work_genres (work_id, genre, weight) VALUES (?, ?, ?)`,
			workID, g.Genre, g.Weight)
		if err != nil {
			return fmt.Errorf("insert work genre: %w", err)
		}
	}

	return tx.Commit()
}

// GetWorkGenres returns a work's genre distribution ordered by weight.
func (s *Store) GetWorkGenres(ctx context.Context, workID string) ([]domain.WorkGenre, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT work_id, genre, weight
		FROM work_genres
		WHERE work_id = ?
		ORDER BY weight DESC, genre ASC`, workID)
	if err != nil {
		return nil, fmt.Errorf("query work genres: %w", err)
	}
	defer rows.Close()

	var genres []domain.WorkGenre
	for rows.Next() {
		var g domain.WorkGenre
		if err := rows.Scan(&g.WorkID, &g.Genre, &g.Weight); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// MergePoolsAndDeleteWork moves every pool from the loser work onto the
// winner, deletes the loser's dependent rows, and removes the loser, all in
// one transaction so a crash can never strand pools on a deleted work.
func (s *Store) MergePoolsAndDeleteWork(ctx context.Context, loserID, winnerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())

	if _, err := tx.ExecContext(ctx,
		`UPDATE license_pools SET work_id = ?, updated_at = ? WHERE work_id = ?`,
		winnerID, now, loserID); err != nil {
		return fmt.Errorf("move pools: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM work_genres WHERE work_id = ?`, loserID); err != nil {
		return fmt.Errorf("delete work genres: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_coverage WHERE work_id = ?`, loserID); err != nil {
		return fmt.Errorf("delete work coverage: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, loserID)
	if err != nil {
		return fmt.Errorf("delete work: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if err := s.indexer.DeleteWork(ctx, loserID); err != nil {
		s.logger.Warn("failed to remove merged work from index", "work_id", loserID, "error", err)
	}
	return nil
}

// WorksNotPresentationReady returns works still missing display metadata,
// for the recompute sweep.
func (s *Store) WorksNotPresentationReady(ctx context.Context, limit int) ([]*domain.Work, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workColumns+` FROM works WHERE presentation_ready = 0 ORDER BY id ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query works: %w", err)
	}
	defer rows.Close()

	var works []*domain.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

// PresentationReadyWorks pages through display-ready works in id order,
// returning works with an id greater than afterID. Used by the search
// reindex sweep.
func (s *Store) PresentationReadyWorks(ctx context.Context, afterID string, limit int) ([]*domain.Work, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workColumns+` FROM works WHERE presentation_ready = 1 AND id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query works: %w", err)
	}
	defer rows.Close()

	var works []*domain.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

// SetWorkCoverage records that an operation completed for a work.
func (s *Store) SetWorkCoverage(ctx context.Context, workID, operation string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_coverage (work_id, operation, timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT (work_id, operation) DO UPDATE SET timestamp = excluded.timestamp`,
		workID, operation, formatTime(time.Now()))
	return err
}
