package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/id"
	"github.com/openshelf/openshelf-server/internal/store"
)

// UpsertCoverageRecord records the outcome of an operation attempt for an
// identifier, replacing any earlier outcome for the same (identifier,
// source, operation).
func (s *Store) UpsertCoverageRecord(ctx context.Context, identifierID string, source domain.DataSource, operation string, status domain.CoverageStatus, exception string) (*domain.CoverageRecord, error) {
	now := time.Now()

	recordID, err := id.Generate("cov")
	if err != nil {
		return nil, fmt.Errorf("generate coverage record ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coverage_records (
			id, created_at, updated_at, identifier_id, source, operation,
			status, exception, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier_id, source, operation) DO UPDATE SET
			updated_at = excluded.updated_at,
			status = excluded.status,
			exception = excluded.exception,
			timestamp = excluded.timestamp`,
		recordID,
		formatTime(now),
		formatTime(now),
		identifierID,
		source,
		operation,
		status,
		nullString(exception),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert coverage record: %w", err)
	}

	return s.GetCoverageRecord(ctx, identifierID, source, operation)
}

// GetCoverageRecord retrieves the recorded outcome for (identifier, source,
// operation). Returns store.ErrNotFound if the operation was never attempted.
func (s *Store) GetCoverageRecord(ctx context.Context, identifierID string, source domain.DataSource, operation string) (*domain.CoverageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, identifier_id, source, operation,
			status, exception, timestamp
		FROM coverage_records
		WHERE identifier_id = ? AND source = ? AND operation = ?`,
		identifierID, source, operation)

	var r domain.CoverageRecord
	var createdAt, updatedAt, timestamp string
	var exception sql.NullString
	err := row.Scan(&r.ID, &createdAt, &updatedAt, &r.IdentifierID, &r.Source,
		&r.Operation, &r.Status, &exception, &timestamp)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	r.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	r.Exception = exception.String

	return &r, nil
}

// IdentifiersNeedingCoverage returns identifiers that have no successful
// coverage record for (source, operation), up to limit. Transient failures
// qualify for retry; persistent failures do not.
func (s *Store) IdentifiersNeedingCoverage(ctx context.Context, source domain.DataSource, operation string, limit int) ([]*domain.Identifier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns("i", identifierColumns)+`
		FROM identifiers i
		LEFT JOIN coverage_records c
			ON c.identifier_id = i.id AND c.source = ? AND c.operation = ?
		WHERE c.id IS NULL OR c.status = ?
		ORDER BY i.id ASC
		LIMIT ?`,
		source, operation, domain.CoverageTransientFailure, limit)
	if err != nil {
		return nil, fmt.Errorf("query identifiers needing coverage: %w", err)
	}
	defer rows.Close()

	var identifiers []*domain.Identifier
	for rows.Next() {
		i, err := scanIdentifier(rows)
		if err != nil {
			return nil, err
		}
		identifiers = append(identifiers, i)
	}
	return identifiers, rows.Err()
}
