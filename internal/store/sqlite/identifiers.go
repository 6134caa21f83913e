package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/id"
	"github.com/openshelf/openshelf-server/internal/store"
)

// identifierColumns is the ordered list of columns selected in identifier
// queries. Must match the scan order in scanIdentifier.
const identifierColumns = `id, created_at, updated_at, type, value`

// scanIdentifier scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.Identifier.
func scanIdentifier(scanner interface{ Scan(dest ...any) error }) (*domain.Identifier, error) {
	var i domain.Identifier
	var createdAt, updatedAt string

	err := scanner.Scan(&i.ID, &createdAt, &updatedAt, &i.Type, &i.Value)
	if err != nil {
		return nil, err
	}

	i.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	i.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateIdentifier inserts a new identifier.
// Returns store.ErrAlreadyExists if the (type, value) pair already exists.
func (s *Store) CreateIdentifier(ctx context.Context, i *domain.Identifier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identifiers (id, created_at, updated_at, type, value)
		VALUES (?, ?, ?, ?, ?)`,
		i.ID,
		formatTime(i.CreatedAt),
		formatTime(i.UpdatedAt),
		i.Type,
		i.Value,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetIdentifier retrieves an identifier by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetIdentifier(ctx context.Context, identifierID string) (*domain.Identifier, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identifierColumns+` FROM identifiers WHERE id = ?`, identifierID)

	i, err := scanIdentifier(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// GetIdentifierByTypeValue retrieves an identifier by its (type, value) pair.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetIdentifierByTypeValue(ctx context.Context, typ domain.IdentifierType, value string) (*domain.Identifier, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identifierColumns+` FROM identifiers WHERE type = ? AND value = ?`, typ, value)

	i, err := scanIdentifier(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// GetOrCreateIdentifier retrieves an existing identifier by (type, value) or
// creates a new one. Identifiers are immutable, so a lost create race just
// falls back to the winner's row.
func (s *Store) GetOrCreateIdentifier(ctx context.Context, typ domain.IdentifierType, value string) (*domain.Identifier, error) {
	existing, err := s.GetIdentifierByTypeValue(ctx, typ, value)
	if err == nil {
		return existing, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	identifierID, err := id.Generate("idf")
	if err != nil {
		return nil, fmt.Errorf("generate identifier ID: %w", err)
	}

	i := &domain.Identifier{
		Record: domain.Record{ID: identifierID},
		Type:   typ,
		Value:  value,
	}
	i.InitTimestamps()

	if err := s.CreateIdentifier(ctx, i); err != nil {
		if err == store.ErrAlreadyExists {
			return s.GetIdentifierByTypeValue(ctx, typ, value)
		}
		return nil, err
	}
	return i, nil
}
