package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

// editionColumns is the ordered list of columns selected in edition queries.
// Must match the scan order in scanEdition.
const editionColumns = `id, created_at, updated_at, source, primary_identifier_id,
	title, subtitle, language, medium, publisher, published_year, permanent_work_id`

// scanEdition scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.Edition. Contributors are loaded separately.
func scanEdition(scanner interface{ Scan(dest ...any) error }) (*domain.Edition, error) {
	var e domain.Edition

	var (
		createdAt     string
		updatedAt     string
		title         sql.NullString
		subtitle      sql.NullString
		language      sql.NullString
		publisher     sql.NullString
		publishedYear sql.NullString
		pwid          sql.NullString
	)

	err := scanner.Scan(
		&e.ID,
		&createdAt,
		&updatedAt,
		&e.Source,
		&e.PrimaryIdentifierID,
		&title,
		&subtitle,
		&language,
		&e.Medium,
		&publisher,
		&publishedYear,
		&pwid,
	)
	if err != nil {
		return nil, err
	}

	e.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	e.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	e.Title = title.String
	e.Subtitle = subtitle.String
	e.Language = language.String
	e.Publisher = publisher.String
	e.PublishedYear = publishedYear.String
	e.PermanentWorkID = pwid.String

	return &e, nil
}

// loadContributors attaches the contributor rows to each edition.
func (s *Store) loadContributors(ctx context.Context, editions []*domain.Edition) error {
	for _, e := range editions {
		rows, err := s.db.QueryContext(ctx, `
			SELECT name, sort_name, role
			FROM edition_contributors
			WHERE edition_id = ?
			ORDER BY position ASC`, e.ID)
		if err != nil {
			return fmt.Errorf("query contributors: %w", err)
		}

		for rows.Next() {
			var c domain.Contributor
			var sortName sql.NullString
			if err := rows.Scan(&c.Name, &sortName, &c.Role); err != nil {
				rows.Close()
				return err
			}
			c.SortName = sortName.String
			e.Contributors = append(e.Contributors, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// CreateEdition inserts a new edition with its contributors.
// Returns store.ErrAlreadyExists if the (source, identifier) pair exists.
func (s *Store) CreateEdition(ctx context.Context, e *domain.Edition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO editions (
			id, created_at, updated_at, source, primary_identifier_id,
			title, subtitle, language, medium, publisher, published_year, permanent_work_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
		e.Source,
		e.PrimaryIdentifierID,
		nullString(e.Title),
		nullString(e.Subtitle),
		nullString(e.Language),
		e.Medium,
		nullString(e.Publisher),
		nullString(e.PublishedYear),
		nullString(e.PermanentWorkID),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}

	if err := insertContributors(ctx, tx, e); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateEdition performs a full row update, replacing the contributor set.
// Returns store.ErrNotFound if the edition does not exist.
func (s *Store) UpdateEdition(ctx context.Context, e *domain.Edition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE editions SET
			updated_at = ?,
			title = ?,
			subtitle = ?,
			language = ?,
			medium = ?,
			publisher = ?,
			published_year = ?,
			permanent_work_id = ?
		WHERE id = ?`,
		formatTime(e.UpdatedAt),
		nullString(e.Title),
		nullString(e.Subtitle),
		nullString(e.Language),
		e.Medium,
		nullString(e.Publisher),
		nullString(e.PublishedYear),
		nullString(e.PermanentWorkID),
		e.ID,
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM edition_contributors WHERE edition_id = ?`, e.ID); err != nil {
		return fmt.Errorf("delete contributors: %w", err)
	}
	if err := insertContributors(ctx, tx, e); err != nil {
		return err
	}

	return tx.Commit()
}

func insertContributors(ctx context.Context, tx *sql.Tx, e *domain.Edition) error {
	for i, c := range e.Contributors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edition_contributors (edition_id, position, name, sort_name, role)
			VALUES (?, ?, ?, ?, ?)`,
			e.ID, i, c.Name, nullString(c.SortName), c.Role)
		if err != nil {
			return fmt.Errorf("insert contributor: %w", err)
		}
	}
	return nil
}

// GetEdition retrieves an edition by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetEdition(ctx context.Context, editionID string) (*domain.Edition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+editionColumns+` FROM editions WHERE id = ?`, editionID)

	e, err := scanEdition(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadContributors(ctx, []*domain.Edition{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEditionBySourceAndIdentifier retrieves the edition a source wrote for
// an identifier. Returns store.ErrNotFound if it does not exist.
func (s *Store) GetEditionBySourceAndIdentifier(ctx context.Context, source domain.DataSource, identifierID string) (*domain.Edition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+editionColumns+` FROM editions WHERE source = ? AND primary_identifier_id = ?`,
		source, identifierID)

	e, err := scanEdition(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadContributors(ctx, []*domain.Edition{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// EditionsForIdentifiers returns every edition whose primary identifier is
// in the given set.
func (s *Store) EditionsForIdentifiers(ctx context.Context, identifierIDs []string) ([]*domain.Edition, error) {
	if len(identifierIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifierIDs)), ",")
	args := make([]any, len(identifierIDs))
	for i, identifierID := range identifierIDs {
		args[i] = identifierID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+editionColumns+` FROM editions WHERE primary_identifier_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query editions: %w", err)
	}
	defer rows.Close()

	var editions []*domain.Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, err
		}
		editions = append(editions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadContributors(ctx, editions); err != nil {
		return nil, err
	}
	return editions, nil
}
