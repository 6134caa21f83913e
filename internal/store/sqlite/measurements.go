package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/id"
)

// AddMeasurement inserts a new measurement and demotes any previous
// measurement of the same quantity from the same source, so aggregation only
// ever sees one current value per (source, quantity).
func (s *Store) AddMeasurement(ctx context.Context, m *domain.Measurement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE measurements SET most_recent = 0, updated_at = ?
		WHERE identifier_id = ? AND source = ? AND quantity = ? AND most_recent = 1`,
		formatTime(time.Now()), m.IdentifierID, m.Source, m.Quantity)
	if err != nil {
		return fmt.Errorf("demote measurements: %w", err)
	}

	m.MostRecent = true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO measurements (
			id, created_at, updated_at, identifier_id, source, quantity,
			value, weight, most_recent, taken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		m.ID,
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
		m.IdentifierID,
		m.Source,
		m.Quantity,
		m.Value,
		m.Weight,
		formatTime(m.TakenAt),
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}

	return tx.Commit()
}

// MeasurementsForIdentifiers returns the current measurements attached to
// any identifier in the set.
func (s *Store) MeasurementsForIdentifiers(ctx context.Context, identifierIDs []string) ([]*domain.Measurement, error) {
	if len(identifierIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifierIDs)), ",")
	args := make([]any, len(identifierIDs))
	for i, identifierID := range identifierIDs {
		args[i] = identifierID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, identifier_id, source, quantity,
			value, weight, most_recent, taken_at
		FROM measurements
		WHERE identifier_id IN (`+placeholders+`) AND most_recent = 1`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*domain.Measurement
	for rows.Next() {
		var m domain.Measurement
		var createdAt, updatedAt, takenAt string
		var mostRecent int
		err := rows.Scan(&m.ID, &createdAt, &updatedAt, &m.IdentifierID, &m.Source,
			&m.Quantity, &m.Value, &m.Weight, &mostRecent, &takenAt)
		if err != nil {
			return nil, err
		}
		m.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		m.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		m.TakenAt, err = parseTime(takenAt)
		if err != nil {
			return nil, err
		}
		m.MostRecent = mostRecent != 0
		measurements = append(measurements, &m)
	}
	return measurements, rows.Err()
}

// AddClassification inserts a subject assertion about an identifier.
func (s *Store) AddClassification(ctx context.Context, c *domain.Classification) error {
	if c.ID == "" {
		classificationID, err := id.Generate("cls")
		if err != nil {
			return fmt.Errorf("generate classification ID: %w", err)
		}
		c.ID = classificationID
		c.InitTimestamps()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classifications (
			id, created_at, updated_at, identifier_id, source,
			subject_type, subject_identifier, subject_name, weight
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
		c.IdentifierID,
		c.Source,
		c.SubjectType,
		c.SubjectIdentifier,
		nullString(c.SubjectName),
		c.Weight,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

// ClassificationsForIdentifiers returns every subject assertion attached to
// any identifier in the set, heaviest first.
func (s *Store) ClassificationsForIdentifiers(ctx context.Context, identifierIDs []string) ([]*domain.Classification, error) {
	if len(identifierIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifierIDs)), ",")
	args := make([]any, len(identifierIDs))
	for i, identifierID := range identifierIDs {
		args[i] = identifierID
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, identifier_id, source,
			subject_type, subject_identifier, subject_name, weight
		FROM classifications
		WHERE identifier_id IN (`+placeholders+`)
		ORDER BY weight DESC, id ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	var classifications []*domain.Classification
	for rows.Next() {
		var c domain.Classification
		var createdAt, updatedAt string
		var subjectName sql.NullString
		err := rows.Scan(&c.ID, &createdAt, &updatedAt, &c.IdentifierID, &c.Source,
			&c.SubjectType, &c.SubjectIdentifier, &subjectName, &c.Weight)
		if err != nil {
			return nil, err
		}
		c.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		c.SubjectName = subjectName.String
		classifications = append(classifications, &c)
	}
	return classifications, rows.Err()
}
